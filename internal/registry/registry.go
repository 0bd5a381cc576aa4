package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
)

// ErrSessionLimitReached is returned when the configured maximum number
// of concurrent sessions is reached.
var ErrSessionLimitReached = errors.New("session limit reached")

type Config struct {
	Engine ports.Engine
	// Events is the channel the engine reports progress on. Run consumes it.
	Events <-chan domain.ProgressEvent
	Logger *slog.Logger
	// MaxSessions caps concurrent downloads. 0 = unlimited.
	MaxSessions int
}

// Registry holds all download sessions for the lifetime of the process,
// keyed by info hash. Sessions are created by GetOrCreate and mutated
// only by the updater goroutine (Run), which consumes progress events
// from the engine. Readers always get copies.
type Registry struct {
	engine      ports.Engine
	events      <-chan domain.ProgressEvent
	logger      *slog.Logger
	maxSessions int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[domain.InfoHash]*domain.DownloadSession
}

func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		engine:      cfg.Engine,
		events:      cfg.Events,
		logger:      logger,
		maxSessions: cfg.MaxSessions,
		now:         time.Now,
		sessions:    make(map[domain.InfoHash]*domain.DownloadSession),
	}
}

// GetOrCreate returns the existing session for the hash, or registers a
// new one and starts the engine download. The second return value is
// true when a new session was created. Calling it again with the same
// hash is a cheap no-op regardless of how far the download has advanced.
func (r *Registry) GetOrCreate(ctx context.Context, id domain.InfoHash, magnet, name string) (domain.DownloadSession, bool, error) {
	if id.IsZero() {
		return domain.DownloadSession{}, false, domain.ErrInvalidInfoHash
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		snapshot := *existing
		r.mu.Unlock()
		return snapshot, false, nil
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return domain.DownloadSession{}, false, ErrSessionLimitReached
	}

	created := r.now().UTC()
	session := &domain.DownloadSession{
		InfoHash:  id,
		Magnet:    magnet,
		Name:      name,
		State:     domain.StatePending,
		CreatedAt: created,
		UpdatedAt: created,
	}
	r.sessions[id] = session
	snapshot := *session
	r.mu.Unlock()

	if err := r.engine.Start(ctx, id, magnet); err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return domain.DownloadSession{}, false, fmt.Errorf("start download: %w", err)
	}

	r.logger.Info("download session created",
		slog.String("infoHash", string(id)),
		slog.String("name", name),
	)
	return snapshot, true, nil
}

func (r *Registry) Get(id domain.InfoHash) (domain.DownloadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.DownloadSession{}, domain.ErrNotFound
	}
	return *session, nil
}

// List returns snapshots of all sessions ordered by creation time,
// newest first.
func (r *Registry) List() []domain.DownloadSession {
	r.mu.RLock()
	out := make([]domain.DownloadSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		out = append(out, *session)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].InfoHash < out[j].InfoHash
	})
	return out
}

// Remove forgets the session and stops the engine download. Data already
// on disk is left in place. Returns domain.ErrNotFound if the hash is
// not registered.
func (r *Registry) Remove(ctx context.Context, id domain.InfoHash) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}

	if err := r.engine.Stop(id); err != nil {
		r.logger.Warn("engine stop failed",
			slog.String("infoHash", string(id)),
			slog.String("error", err.Error()),
		)
	}
	r.logger.Info("download session removed", slog.String("infoHash", string(id)))
	return nil
}

// Run consumes engine progress events until the context is cancelled or
// the event channel is closed. It is the only writer of session state
// after creation, so handlers never race with engine callbacks.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			r.apply(ev)
		}
	}
}

func (r *Registry) apply(ev domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[ev.InfoHash]
	if !ok {
		// Session was removed while the event was in flight.
		return
	}

	if ev.State != "" && stateRank(ev.State) >= stateRank(session.State) {
		session.State = ev.State
	}
	if ev.Err != nil {
		session.State = domain.StateErrored
		session.Error = ev.Err.Error()
	}
	if ev.Name != "" && session.Name == "" {
		session.Name = ev.Name
	}
	if ev.TotalSize > session.TotalSize {
		session.TotalSize = ev.TotalSize
	}
	if ev.File != nil && session.File == nil {
		file := *ev.File
		session.File = &file
	}

	// Progress and downloaded bytes are high-water marks: the engine can
	// report lower figures while re-verifying pieces after a restart.
	if ev.Progress > session.Progress {
		session.Progress = ev.Progress
	}
	if ev.DownloadedBytes > session.DownloadedBytes {
		session.DownloadedBytes = ev.DownloadedBytes
	}

	session.Peers = ev.Peers
	session.DownloadSpeed = ev.DownloadSpeed

	if !session.PlaybackReady && domain.PlaybackReadyNow(session.Progress, session.DownloadedBytes) {
		session.PlaybackReady = true
		r.logger.Info("playback ready",
			slog.String("infoHash", string(session.InfoHash)),
			slog.Float64("progress", session.Progress),
			slog.Int64("downloaded", session.DownloadedBytes),
		)
	}

	session.UpdatedAt = r.now().UTC()
}

// stateRank orders session states so that progress events arriving out
// of order cannot move a session backwards. Errored outranks everything.
func stateRank(state domain.SessionState) int {
	switch state {
	case domain.StatePending:
		return 0
	case domain.StateMetadataWait:
		return 1
	case domain.StateDownloading:
		return 2
	case domain.StateCompleted:
		return 3
	case domain.StateErrored:
		return 4
	default:
		return 0
	}
}
