package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"magnetcast/internal/domain"
)

var ErrSessionNotFound = domain.ErrNotFound

// addMagnetTimeout caps the time we wait for the anacrolix client to
// accept a magnet link. AddMagnet can block on an internal client mutex
// when the client is busy resolving metadata for another torrent.
const (
	addMagnetTimeout    = 10 * time.Second
	metadataWaitTimeout = 10 * time.Minute
	progressInterval    = time.Second
)

type Config struct {
	DataDir string
	// Events receives progress updates for all torrents. Required.
	Events chan<- domain.ProgressEvent
	Logger *slog.Logger
}

// Engine wraps an anacrolix torrent client. Each download gets a watcher
// goroutine that waits for metadata, focuses piece priorities on the
// playback file and then reports progress once per second on the events
// channel until the file completes or the session is stopped.
type Engine struct {
	client  *torrent.Client
	dataDir string
	events  chan<- domain.ProgressEvent
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[domain.InfoHash]*torrent.Torrent
	cancels  map[domain.InfoHash]context.CancelFunc

	speedMu sync.Mutex
	speeds  map[domain.InfoHash]speedSample
}

func New(cfg Config) (*Engine, error) {
	if cfg.Events == nil {
		return nil, errors.New("events channel is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = cfg.DataDir
	// Per-infohash storage keeps each torrent's files under their own
	// directory, so the stream server can stat them by hash.
	clientConfig.DefaultStorage = storage.NewFileByInfoHash(cfg.DataDir)
	clientConfig.Seed = false

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("torrent client: %w", err)
	}

	return &Engine{
		client:   client,
		dataDir:  cfg.DataDir,
		events:   cfg.Events,
		logger:   cfg.Logger,
		sessions: make(map[domain.InfoHash]*torrent.Torrent),
		cancels:  make(map[domain.InfoHash]context.CancelFunc),
		speeds:   make(map[domain.InfoHash]speedSample),
	}, nil
}

func (e *Engine) Start(ctx context.Context, id domain.InfoHash, magnet string) error {
	if e.client == nil {
		return errors.New("torrent client not configured")
	}

	e.mu.Lock()
	if _, exists := e.sessions[id]; exists {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// Run AddMagnet with a timeout so we never block the HTTP handler
	// indefinitely if the anacrolix client is busy.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, err := e.client.AddMagnet(magnet)
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("add magnet: %w", res.err)
		}
		t = res.t
	case <-time.After(addMagnetTimeout):
		// The goroutine may still complete AddMagnet after we return.
		// Drop the orphaned torrent when it does.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return ctx.Err()
	}

	if got := domain.InfoHash(t.InfoHash().HexString()); got != id {
		t.Drop()
		return fmt.Errorf("%w: magnet resolves to %s, expected %s", domain.ErrInvalidInfoHash, got, id)
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if _, exists := e.sessions[id]; exists {
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.sessions[id] = t
	e.cancels[id] = cancel
	e.mu.Unlock()

	e.emit(watchCtx, domain.ProgressEvent{
		InfoHash: id,
		State:    domain.StateMetadataWait,
		Peers:    t.Stats().ActivePeers,
	})

	go e.watch(watchCtx, id, t)
	return nil
}

// Stop cancels the watcher and drops the torrent from the client. Data
// already written to disk is kept.
func (e *Engine) Stop(id domain.InfoHash) error {
	e.mu.Lock()
	t, ok := e.sessions[id]
	cancel := e.cancels[id]
	delete(e.sessions, id)
	delete(e.cancels, id)
	e.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if cancel != nil {
		cancel()
	}
	e.forgetSpeed(id)
	t.Drop()

	e.logger.Info("torrent dropped", slog.String("infoHash", string(id)))
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	for id, cancel := range e.cancels {
		cancel()
		delete(e.cancels, id)
	}
	e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// watch waits for torrent metadata, selects the playback file, applies
// the piece priority bands and then reports progress until the file is
// complete or the session is stopped.
func (e *Engine) watch(ctx context.Context, id domain.InfoHash, t *torrent.Torrent) {
	select {
	case <-t.GotInfo():
	case <-time.After(metadataWaitTimeout):
		e.logger.Warn("metadata wait timed out", slog.String("infoHash", string(id)))
		e.emit(ctx, domain.ProgressEvent{
			InfoHash: id,
			Err:      errors.New("timed out waiting for torrent metadata"),
		})
		_ = e.Stop(id)
		return
	case <-ctx.Done():
		return
	}

	files := t.Files()
	index := pickPlaybackFile(fileCandidates(files))
	if index < 0 {
		e.emit(ctx, domain.ProgressEvent{
			InfoHash: id,
			Err:      errors.New("torrent has no files"),
		})
		_ = e.Stop(id)
		return
	}
	file := files[index]

	selected := &domain.SelectedFile{
		Index:    index,
		Path:     file.Path(),
		DiskPath: filepath.Join(e.dataDir, string(id), filepath.FromSlash(file.Path())),
		Length:   file.Length(),
	}

	e.applyPriorityBands(t, file, files)

	e.logger.Info("metadata resolved",
		slog.String("infoHash", string(id)),
		slog.String("name", t.Name()),
		slog.String("file", selected.Path),
		slog.Int64("length", selected.Length),
	)

	e.emit(ctx, domain.ProgressEvent{
		InfoHash:  id,
		State:     domain.StateDownloading,
		Name:      t.Name(),
		Peers:     t.Stats().ActivePeers,
		TotalSize: selected.Length,
		File:      selected,
	})

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			completed := file.BytesCompleted()
			length := file.Length()
			progress := float64(0)
			if length > 0 {
				progress = float64(completed) / float64(length) * 100
			}
			stats := t.Stats()
			speed := e.sampleSpeed(id, stats, time.Now())

			state := domain.StateDownloading
			if length > 0 && completed >= length {
				state = domain.StateCompleted
			}

			e.emit(ctx, domain.ProgressEvent{
				InfoHash:        id,
				State:           state,
				Name:            t.Name(),
				Progress:        progress,
				Peers:           stats.ActivePeers,
				DownloadSpeed:   speed,
				TotalSize:       length,
				DownloadedBytes: completed,
				File:            selected,
			})

			if state == domain.StateCompleted {
				e.logger.Info("download completed",
					slog.String("infoHash", string(id)),
					slog.String("file", selected.Path),
				)
				return
			}
		}
	}
}

// emit delivers an event to the registry, giving up if the session's
// context is cancelled while the channel is full.
func (e *Engine) emit(ctx context.Context, ev domain.ProgressEvent) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

type speedSample struct {
	at        time.Time
	bytesRead int64
}

// sampleSpeed derives a bytes-per-second download rate from the delta of
// useful payload bytes between consecutive samples.
func (e *Engine) sampleSpeed(id domain.InfoHash, stats torrent.TorrentStats, now time.Time) int64 {
	currentRead := stats.BytesReadUsefulData.Int64()

	e.speedMu.Lock()
	defer e.speedMu.Unlock()

	prev, ok := e.speeds[id]
	e.speeds[id] = speedSample{at: now, bytesRead: currentRead}

	if !ok || prev.at.IsZero() {
		return 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0
	}
	delta := currentRead - prev.bytesRead
	if delta < 0 {
		delta = 0
	}
	return int64(float64(delta) / dt)
}

func (e *Engine) forgetSpeed(id domain.InfoHash) {
	e.speedMu.Lock()
	delete(e.speeds, id)
	e.speedMu.Unlock()
}
