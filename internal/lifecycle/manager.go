// Package lifecycle deletes collections and images together with their
// stored objects. Storage and remote-file cleanup are best effort; database
// rows are always removed.
package lifecycle

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/providers/gemini"
	"avatarstudio/internal/storage"
)

const (
	remoteCleanupLimit   = 4
	remoteCleanupTimeout = 30 * time.Second
)

// Objects is the storage surface used for cleanup.
type Objects interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, paths []string) error
	ObjectPath(publicURL string) (string, bool)
}

type CollectionStore interface {
	GetForUser(ctx context.Context, id, userID string) (*domain.Collection, error)
	RefreshStatus(ctx context.Context, id string) error
	Delete(ctx context.Context, id, userID string) error
}

type ImageStore interface {
	GetForUser(ctx context.Context, id, userID string) (*domain.GenerationTask, error)
	ListByCollection(ctx context.Context, collectionID, userID string) ([]domain.GenerationTask, error)
	DeleteByCollection(ctx context.Context, collectionID, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

type VideoPromptStore interface {
	DeleteByImage(ctx context.Context, imageID, userID string) error
	DeleteByCollection(ctx context.Context, collectionID, userID string) error
}

type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// Deps wires a Manager. Credentials and Clients are optional; without them
// remote Files API handles are not revisited.
type Deps struct {
	Collections  CollectionStore
	Images       ImageStore
	VideoPrompts VideoPromptStore
	Objects      Objects
	Credentials  CredentialResolver
	Clients      gemini.Factory
	Logger       infra.Logger
}

type Manager struct {
	collections  CollectionStore
	images       ImageStore
	videoPrompts VideoPromptStore
	objects      Objects
	credentials  CredentialResolver
	clients      gemini.Factory
	logger       infra.Logger
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		collections:  deps.Collections,
		images:       deps.Images,
		videoPrompts: deps.VideoPrompts,
		objects:      deps.Objects,
		credentials:  deps.Credentials,
		clients:      deps.Clients,
		logger:       infra.Component(deps.Logger, "lifecycle"),
	}
}

// Deletion summarizes a delete operation.
type Deletion struct {
	ObjectsTargeted []string `json:"objects_targeted"`
	RowsDeleted     int64    `json:"rows_deleted"`
	StorageDegraded bool     `json:"storage_degraded"`
}

// DeleteCollection removes every object under the collection prefix, the
// collection's video prompts and tasks, then the collection row.
func (m *Manager) DeleteCollection(ctx context.Context, userID, collectionID string) (*Deletion, error) {
	col, err := m.collections.GetForUser(ctx, collectionID, userID)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With().Str("collection_id", col.ID).Logger()
	out := &Deletion{}

	tasks, err := m.images.ListByCollection(ctx, col.ID, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("listing tasks for cleanup failed")
		out.StorageDegraded = true
	}

	targets := newPathSet()
	prefix := storage.CollectionPrefix(userID, col.ID)
	names, err := m.objects.List(ctx, prefix)
	if err != nil {
		logger.Warn().Err(err).Str("prefix", prefix).Msg("listing stored objects failed")
		out.StorageDegraded = true
	}
	for _, name := range names {
		targets.add(underPrefix(prefix, name))
		if decoded, err := url.PathUnescape(name); err == nil {
			targets.add(underPrefix(prefix, decoded))
		}
	}
	var remote []string
	for _, t := range tasks {
		targets.add(t.StoragePath)
		remote = append(remote, t.Metadata.RemoteFiles...)
	}

	out.ObjectsTargeted = targets.list()
	if !m.removeObjects(ctx, out.ObjectsTargeted, logger) {
		out.StorageDegraded = true
	}
	m.releaseRemoteFiles(ctx, userID, remote, logger)

	if err := m.videoPrompts.DeleteByCollection(ctx, col.ID, userID); err != nil {
		return nil, err
	}
	rows, err := m.images.DeleteByCollection(ctx, col.ID, userID)
	if err != nil {
		return nil, err
	}
	out.RowsDeleted = rows
	if err := m.collections.Delete(ctx, col.ID, userID); err != nil {
		return nil, err
	}
	logger.Info().
		Int("objects", len(out.ObjectsTargeted)).
		Int64("tasks", rows).
		Bool("storage_degraded", out.StorageDegraded).
		Msg("collection deleted")
	return out, nil
}

// DeleteImage removes the task's output object and any reference images the
// metadata points at inside this application's bucket. External reference
// URLs are left alone.
func (m *Manager) DeleteImage(ctx context.Context, userID, imageID string) (*Deletion, error) {
	task, err := m.images.GetForUser(ctx, imageID, userID)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With().Str("task_id", task.ID).Logger()
	out := &Deletion{}

	targets := newPathSet()
	targets.add(task.StoragePath)
	if task.StoragePath == "" && task.URL != "" {
		if p, ok := m.objects.ObjectPath(task.URL); ok {
			targets.add(p)
		}
	}
	for _, ref := range task.Metadata.ReferenceURLs {
		p, ok := m.objects.ObjectPath(ref)
		if !ok {
			logger.Debug().Str("url", ref).Msg("external reference left untouched")
			continue
		}
		targets.add(p)
	}
	// Pending and failed tasks never recorded ReferenceURLs; their local
	// references are still in the request.
	for _, p := range localReferencePaths(task.Metadata, userID) {
		targets.add(p)
	}

	out.ObjectsTargeted = targets.list()
	if !m.removeObjects(ctx, out.ObjectsTargeted, logger) {
		out.StorageDegraded = true
	}
	m.releaseRemoteFiles(ctx, userID, task.Metadata.RemoteFiles, logger)

	if err := m.videoPrompts.DeleteByImage(ctx, task.ID, userID); err != nil {
		return nil, err
	}
	if err := m.images.Delete(ctx, task.ID, userID); err != nil {
		return nil, err
	}
	out.RowsDeleted = 1
	if err := m.collections.RefreshStatus(ctx, task.CollectionID); err != nil {
		logger.Warn().Err(err).Msg("collection status refresh failed")
	}
	logger.Info().Int("objects", len(out.ObjectsTargeted)).Msg("image deleted")
	return out, nil
}

func (m *Manager) removeObjects(ctx context.Context, paths []string, logger infra.Logger) bool {
	if len(paths) == 0 {
		return true
	}
	if err := m.objects.Remove(ctx, paths); err != nil {
		logger.Warn().Err(err).Int("objects", len(paths)).Msg("storage cleanup failed; continuing")
		return false
	}
	return true
}

// releaseRemoteFiles deletes Files API handles recorded on tasks. Handles the
// pipeline already released come back as not found and are ignored.
func (m *Manager) releaseRemoteFiles(ctx context.Context, userID string, names []string, logger infra.Logger) {
	names = dedupe(names)
	if len(names) == 0 || m.credentials == nil || m.clients == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteCleanupTimeout)
	defer cancel()

	key, err := m.credentials.Resolve(ctx, userID)
	if err != nil {
		logger.Debug().Err(err).Msg("no credential for remote file cleanup")
		return
	}
	client, err := m.clients(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("model client for remote file cleanup failed")
		return
	}

	var g errgroup.Group
	g.SetLimit(remoteCleanupLimit)
	for _, name := range names {
		g.Go(func() error {
			if err := client.DeleteFile(ctx, name); err != nil && !gemini.IsNotFound(err) {
				logger.Warn().Err(err).Str("file", name).Msg("remote file deletion failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// underPrefix joins name onto prefix, returning "" when the result would
// leave the prefix.
func underPrefix(prefix, name string) string {
	joined := path.Join(prefix, name)
	if !strings.HasPrefix(joined, prefix+"/") {
		return ""
	}
	return joined
}

// localReferencePaths returns the storage paths under the owner's prefix
// that meta lists as references.
func localReferencePaths(meta domain.TaskMetadata, userID string) []string {
	prefix := userID + "/"
	var out []string
	for _, list := range [][]string{meta.ReferenceImages, meta.Config.ReferenceImages} {
		for _, raw := range list {
			ref, err := domain.ParseReference(raw)
			if err != nil || ref.Kind != domain.ReferenceLocalPath || !strings.HasPrefix(ref.Path, prefix) {
				continue
			}
			out = append(out, ref.Path)
		}
	}
	return out
}

type pathSet struct {
	seen  map[string]struct{}
	order []string
}

func newPathSet() *pathSet {
	return &pathSet{seen: map[string]struct{}{}}
}

func (s *pathSet) add(p string) {
	if p == "" {
		return
	}
	if _, ok := s.seen[p]; ok {
		return
	}
	s.seen[p] = struct{}{}
	s.order = append(s.order, p)
}

func (s *pathSet) list() []string {
	return s.order
}

func dedupe(in []string) []string {
	set := newPathSet()
	for _, v := range in {
		set.add(v)
	}
	return set.list()
}
