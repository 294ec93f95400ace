// Package references turns the reference identifiers of a generation request
// into provider file parts and releases the provider-side handles afterwards.
package references

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"avatarstudio/internal/domain"
	"avatarstudio/internal/infra"
	"avatarstudio/internal/providers/gemini"
)

const (
	DefaultPollAttempts = 10
	DefaultPollInterval = 2 * time.Second
	releaseTimeout      = 30 * time.Second
	fallbackMIMEType    = "image/png"
)

// Downloader fetches a stored reference image by bucket path.
type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager prepares references for one task attempt.
type Manager struct {
	store        Downloader
	logger       infra.Logger
	pollAttempts int
	pollInterval time.Duration
	sleep        Sleeper
}

type Option func(*Manager)

// WithPolling overrides the readiness poll budget.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.pollAttempts = attempts
		}
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(m *Manager) {
		if s != nil {
			m.sleep = s
		}
	}
}

func NewManager(store Downloader, logger infra.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		logger:       infra.Component(logger, "references"),
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prepared holds the parts handed to the model and the remote handles the
// attempt touched.
type Prepared struct {
	Parts []gemini.Part
	// Consumed lists the raw identifiers in request order.
	Consumed []string
	// LocalPaths lists the bucket paths that were uploaded fresh.
	LocalPaths []string
	// Handles are provider file names created by this attempt. Nobody else
	// references them.
	Handles []string
	// Shared are caller-supplied remote file names. Sibling tasks of the
	// same batch may still need them, so Release leaves them alone.
	Shared []string
}

// Prepare resolves every reference. Remote URIs are polled but never
// re-uploaded; local paths are downloaded and uploaded. On error the
// partially filled Prepared is returned with it so the caller can release
// what was created once the failure is recorded.
func (m *Manager) Prepare(ctx context.Context, client gemini.Client, refs []domain.Reference) (*Prepared, error) {
	prepared := &Prepared{}
	for _, ref := range refs {
		part, err := m.prepareOne(ctx, client, ref, prepared)
		if err != nil {
			return prepared, err
		}
		prepared.Parts = append(prepared.Parts, part)
		prepared.Consumed = append(prepared.Consumed, ref.Raw)
	}
	return prepared, nil
}

func (m *Manager) prepareOne(ctx context.Context, client gemini.Client, ref domain.Reference, prepared *Prepared) (gemini.Part, error) {
	switch ref.Kind {
	case domain.ReferenceRemoteURI:
		prepared.Shared = append(prepared.Shared, ref.FileName)
		file, err := m.awaitActive(ctx, client, ref.FileName)
		if err != nil {
			return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: err}
		}
		mimeType := fallbackMIMEType
		if file != nil && file.MIMEType != "" {
			mimeType = file.MIMEType
		}
		return gemini.FilePart(ref.URI, mimeType), nil

	case domain.ReferenceLocalPath:
		data, err := m.store.Download(ctx, ref.Path)
		if err != nil {
			return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: err}
		}
		if len(data) == 0 {
			return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: errors.New("reference image is empty")}
		}
		mimeType := detectImageType(ref.Path, data)
		file, err := client.UploadFile(ctx, data, mimeType, path.Base(ref.Path))
		if err != nil {
			return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: fmt.Errorf("upload: %w", err)}
		}
		prepared.Handles = append(prepared.Handles, file.Name)
		prepared.LocalPaths = append(prepared.LocalPaths, ref.Path)
		if file.State != gemini.FileStateActive {
			if _, err := m.awaitActive(ctx, client, file.Name); err != nil {
				return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: err}
			}
		}
		if file.MIMEType != "" {
			mimeType = file.MIMEType
		}
		return gemini.FilePart(file.URI, mimeType), nil

	default:
		return gemini.Part{}, &domain.ReferenceError{Reference: ref.Raw, Err: errors.New("unknown reference kind")}
	}
}

// awaitActive polls the file until it is ACTIVE. Exhausting the budget is
// logged and tolerated; a missing or FAILED file is an error.
func (m *Manager) awaitActive(ctx context.Context, client gemini.Client, name string) (*gemini.RemoteFile, error) {
	var last *gemini.RemoteFile
	for attempt := 1; attempt <= m.pollAttempts; attempt++ {
		file, err := client.GetFile(ctx, name)
		switch {
		case err == nil:
			last = file
			switch file.State {
			case gemini.FileStateActive:
				return file, nil
			case gemini.FileStateFailed:
				return nil, fmt.Errorf("file %s failed processing", name)
			}
		case gemini.IsNotFound(err):
			return nil, fmt.Errorf("file %s: %w", name, err)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			m.logger.Debug().Err(err).Str("file", name).Int("attempt", attempt).Msg("file status check failed")
		}
		if attempt == m.pollAttempts {
			break
		}
		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return nil, err
		}
	}
	state := "unknown"
	if last != nil {
		state = string(last.State)
	}
	m.logger.Warn().
		Str("file", name).
		Str("state", state).
		Int("attempts", m.pollAttempts).
		Msg("file not active after polling; continuing")
	return last, nil
}

// Release deletes the handles the attempt created. Shared handles are not
// touched; see ReleaseFiles.
func (m *Manager) Release(ctx context.Context, client gemini.Client, prepared *Prepared) {
	if prepared == nil {
		return
	}
	m.ReleaseFiles(ctx, client, prepared.Handles)
}

// ReleaseFiles deletes the named provider files. Failures are logged only.
// It runs on a context detached from ctx's cancellation so a timed-out
// attempt still cleans up.
func (m *Manager) ReleaseFiles(ctx context.Context, client gemini.Client, names []string) {
	if len(names) == 0 || client == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	for _, name := range names {
		if err := client.DeleteFile(releaseCtx, name); err != nil {
			if gemini.IsNotFound(err) {
				m.logger.Debug().Str("file", name).Msg("remote file already gone")
				continue
			}
			m.logger.Warn().Err(err).Str("file", name).Msg("remote file deletion failed")
			continue
		}
		m.logger.Debug().Str("file", name).Msg("remote file released")
	}
}

func detectImageType(name string, data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return fallbackMIMEType
}
