package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"avatarstudio/internal/adapter/repo"
	"avatarstudio/internal/domain"
	"avatarstudio/internal/imagegen"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/providers/gemini"
	"avatarstudio/internal/references"
)

// memStore is an in-memory TaskStore and CollectionStore with the same
// compare-and-swap rules as the SQL statements.
type memStore struct {
	mu          sync.Mutex
	seq         int
	tasks       map[string]*domain.GenerationTask
	collections map[string]*domain.Collection
	refreshed   []string
	now         func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		tasks:       map[string]*domain.GenerationTask{},
		collections: map[string]*domain.Collection{},
		now:         time.Now,
	}
}

func (m *memStore) CreatePending(_ context.Context, collectionID, userID string, meta domain.TaskMetadata) (*domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := m.now()
	t := &domain.GenerationTask{
		ID:           fmt.Sprintf("task-%d", m.seq),
		CollectionID: collectionID,
		UserID:       userID,
		Status:       domain.TaskStatusPending,
		Metadata:     meta,
		Attempt:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *memStore) GetForUser(_ context.Context, id, userID string) (*domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Complete(_ context.Context, id string, attempt int, storagePath, url string, meta domain.TaskMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusPending || t.Attempt != attempt {
		return domain.ErrStaleAttempt
	}
	t.Status = domain.TaskStatusCompleted
	t.StoragePath = storagePath
	t.URL = url
	t.Metadata = meta
	t.ErrorMessage = ""
	t.UpdatedAt = m.now()
	return nil
}

func (m *memStore) Fail(_ context.Context, id string, attempt int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != domain.TaskStatusPending || t.Attempt != attempt {
		return domain.ErrStaleAttempt
	}
	t.Status = domain.TaskStatusFailed
	t.ErrorMessage = message
	t.UpdatedAt = m.now()
	return nil
}

func (m *memStore) Retrigger(_ context.Context, id, userID string, attempt int, staleBefore time.Time) (*domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID || t.Attempt != attempt {
		return nil, domain.ErrStaleAttempt
	}
	eligible := t.Status == domain.TaskStatusFailed ||
		(t.Status == domain.TaskStatusPending && t.UpdatedAt.Before(staleBefore))
	if !eligible {
		return nil, domain.ErrStaleAttempt
	}
	t.Status = domain.TaskStatusPending
	t.Attempt++
	t.ErrorMessage = ""
	t.StoragePath = ""
	t.URL = ""
	t.UpdatedAt = m.now()
	cp := *t
	return &cp, nil
}

func (m *memStore) ListByCollection(_ context.Context, collectionID, userID string) ([]domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationTask
	for _, t := range m.tasks {
		if t.CollectionID == collectionID && t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) FailStalePending(_ context.Context, cutoff time.Time, message string) ([]repo.StaleTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repo.StaleTask
	for _, t := range m.tasks {
		if t.Status == domain.TaskStatusPending && t.UpdatedAt.Before(cutoff) {
			t.Status = domain.TaskStatusFailed
			t.ErrorMessage = message
			t.UpdatedAt = m.now()
			out = append(out, repo.StaleTask{ID: t.ID, CollectionID: t.CollectionID})
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, userID, name string) (*domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c := &domain.Collection{ID: fmt.Sprintf("col-%d", m.seq), UserID: userID, Name: name, Status: domain.CollectionStatusProcessing}
	m.collections[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) getCollection(_ context.Context, id, userID string) (*domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) RefreshStatus(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, id)
	return nil
}

func (m *memStore) task(id string) domain.GenerationTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[id]
}

func (m *memStore) setTask(id string, edit func(t *domain.GenerationTask)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit(m.tasks[id])
}

func (m *memStore) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// collectionView adapts memStore to CollectionStore, whose GetForUser
// collides with the task method of the same name.
type collectionView struct{ *memStore }

func (c collectionView) GetForUser(ctx context.Context, id, userID string) (*domain.Collection, error) {
	return c.getCollection(ctx, id, userID)
}

type fakeCredentials struct {
	keys map[string]string
	err  error
}

func (f fakeCredentials) Resolve(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key, ok := f.keys[userID]
	if !ok {
		return "", domain.ErrNoCredential
	}
	return key, nil
}

// fakeModel is a scripted gemini.Client.
type fakeModel struct {
	mu            sync.Mutex
	generate      func(parts []gemini.Part) (*gemini.Response, error)
	generateCalls int
	uploads       int
	deleted       []string
	gone          map[string]bool
	keys          []string
	// onDelete runs before a deletion is recorded.
	onDelete func(name string)
}

func (f *fakeModel) factory() gemini.Factory {
	return func(_ context.Context, apiKey string) (gemini.Client, error) {
		f.mu.Lock()
		f.keys = append(f.keys, apiKey)
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeModel) GenerateContent(_ context.Context, _ string, parts []gemini.Part, _ gemini.GenerateOptions) (*gemini.Response, error) {
	f.mu.Lock()
	f.generateCalls++
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return imageResponse(), nil
	}
	return gen(parts)
}

func (f *fakeModel) UploadFile(_ context.Context, _ []byte, mimeType, _ string) (*gemini.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	name := fmt.Sprintf("files/up-%d", f.uploads)
	return &gemini.RemoteFile{Name: name, URI: "https://" + domain.FilesAPIHost + "/v1beta/" + name, MIMEType: mimeType, State: gemini.FileStateActive}, nil
}

func (f *fakeModel) GetFile(_ context.Context, name string) (*gemini.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[name] {
		return nil, &gemini.ProviderError{Kind: gemini.KindNotFound, Code: 404, Message: name}
	}
	return &gemini.RemoteFile{Name: name, State: gemini.FileStateActive, MIMEType: "image/png"}, nil
}

// DeleteFile records every call and remembers the file as gone, so a later
// GetFile or DeleteFile of the same name reports not found.
func (f *fakeModel) DeleteFile(_ context.Context, name string) error {
	f.mu.Lock()
	hook := f.onDelete
	f.mu.Unlock()
	if hook != nil {
		hook(name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	if f.gone[name] {
		return &gemini.ProviderError{Kind: gemini.KindNotFound, Code: 404, Message: name}
	}
	if f.gone == nil {
		f.gone = map[string]bool{}
	}
	f.gone[name] = true
	return nil
}

func (f *fakeModel) stats() (generateCalls, uploads int, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls, f.uploads, append([]string(nil), f.deleted...)
}

func imageResponse() *gemini.Response {
	return &gemini.Response{Candidates: []gemini.Candidate{{
		Parts: []gemini.Part{{MIMEType: "image/png", Data: []byte("\x89PNG-bytes")}},
	}}}
}

// fakeObjects is an in-memory bucket.
type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.objects[path] = data
	return f.PublicURL(path), nil
}

func (f *fakeObjects) Download(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", domain.ErrStorage, path)
	}
	return data, nil
}

func (f *fakeObjects) PublicURL(path string) string {
	return "https://cdn.test/storage/v1/object/public/avatars/" + path
}

func (f *fakeObjects) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}

// recordingDispatcher captures scheduled refs instead of running them.
type recordingDispatcher struct {
	mu   sync.Mutex
	refs []TaskRef
}

func (d *recordingDispatcher) Schedule(ref TaskRef) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs = append(d.refs, ref)
	return true
}

func (d *recordingDispatcher) scheduled() []TaskRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TaskRef(nil), d.refs...)
}

const testUser = "user-1"

type harness struct {
	store      *memStore
	model      *fakeModel
	objects    *fakeObjects
	dispatcher *recordingDispatcher
	runner     *Runner
	service    *Service
}

func newHarness(creds CredentialResolver) *harness {
	if creds == nil {
		creds = fakeCredentials{keys: map[string]string{testUser: "key-1"}}
	}
	h := &harness{
		store:      newMemStore(),
		model:      &fakeModel{},
		objects:    newFakeObjects(),
		dispatcher: &recordingDispatcher{},
	}
	logger := infra.NopLogger()
	refs := references.NewManager(h.objects, logger, references.WithPolling(2, time.Millisecond),
		references.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	h.runner = NewRunner(RunnerDeps{
		Tasks:       h.store,
		Collections: collectionView{h.store},
		Credentials: creds,
		Clients:     h.model.factory(),
		References:  refs,
		Invoker:     imagegen.NewInvoker(logger),
		Objects:     h.objects,
		Logger:      logger,
	})
	h.service = NewService(ServiceDeps{
		Tasks:        h.store,
		Collections:  collectionView{h.store},
		Dispatcher:   h.dispatcher,
		DefaultModel: "gemini-2.5-flash-image",
		StaleAfter:   15 * time.Minute,
		Logger:       logger,
	})
	return h
}

func (h *harness) submitOne(cfg domain.GenerationConfig) domain.GenerationTask {
	sub, err := h.service.Submit(context.Background(), SubmitRequest{UserID: testUser, Config: cfg})
	if err != nil {
		panic(err)
	}
	return sub.Tasks[0]
}

func refOf(t domain.GenerationTask) TaskRef {
	return TaskRef{ID: t.ID, UserID: t.UserID, Attempt: t.Attempt}
}

var errTransient = errors.New("upstream connection reset")

func basicConfig() domain.GenerationConfig {
	return domain.GenerationConfig{
		ImageCount:  1,
		ShotType:    domain.ShotUpperBody,
		Background:  domain.BackgroundWhite,
		AspectRatio: "1:1",
	}
}
