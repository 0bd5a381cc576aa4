package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"magnetcast/internal/domain"
)

type fakeEngine struct {
	mu       sync.Mutex
	started  []domain.InfoHash
	stopped  []domain.InfoHash
	startErr error
}

func (f *fakeEngine) Start(ctx context.Context, id domain.InfoHash, magnet string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeEngine) Stop(id domain.InfoHash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

const testHash = domain.InfoHash("a1b2c3d4e5f60718293a4b5c6d7e8f9012345678")
const testMagnet = "magnet:?xt=urn:btih:a1b2c3d4e5f60718293a4b5c6d7e8f9012345678"

func newTestRegistry(engine *fakeEngine, events <-chan domain.ProgressEvent) *Registry {
	return New(Config{
		Engine: engine,
		Events: events,
		Logger: slog.New(slog.NewTextHandler(new(discardWriter), nil)),
	})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGetOrCreateIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	first, created, err := r.GetOrCreate(context.Background(), testHash, testMagnet, "movie")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the session")
	}
	if first.State != domain.StatePending {
		t.Fatalf("expected pending state, got %q", first.State)
	}

	second, created, err := r.GetOrCreate(context.Background(), testHash, testMagnet, "movie")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected second call to return the existing session")
	}
	if second.InfoHash != first.InfoHash {
		t.Fatalf("got %q, want %q", second.InfoHash, first.InfoHash)
	}
	if engine.startCount() != 1 {
		t.Fatalf("expected a single engine start, got %d", engine.startCount())
	}
}

func TestGetOrCreateEngineFailure(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("client busy")}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err == nil {
		t.Fatal("expected error when engine start fails")
	}

	// A failed start must not leave a phantom session behind.
	if _, err := r.Get(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	const workers = 16
	var wg sync.WaitGroup
	var createdCount int64
	var countMu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.GetOrCreate(context.Background(), testHash, testMagnet, "")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if created {
				countMu.Lock()
				createdCount++
				countMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Fatalf("expected exactly one creation, got %d", createdCount)
	}
	if engine.startCount() != 1 {
		t.Fatalf("expected a single engine start, got %d", engine.startCount())
	}
}

func TestGetOrCreateSessionLimit(t *testing.T) {
	engine := &fakeEngine{}
	r := New(Config{
		Engine:      engine,
		Logger:      slog.New(slog.NewTextHandler(new(discardWriter), nil)),
		MaxSessions: 1,
	})

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := domain.InfoHash("0000000000000000000000000000000000000abc")
	if _, _, err := r.GetOrCreate(context.Background(), other, testMagnet, ""); !errors.Is(err, ErrSessionLimitReached) {
		t.Fatalf("expected ErrSessionLimitReached, got %v", err)
	}

	// The existing session is still returned despite the limit.
	if _, created, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil || created {
		t.Fatalf("expected existing session, got created=%v err=%v", created, err)
	}
}

func TestGetNotFound(t *testing.T) {
	r := newTestRegistry(&fakeEngine{}, nil)
	if _, err := r.Get(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Remove(context.Background(), testHash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
	if len(engine.stopped) != 1 || engine.stopped[0] != testHash {
		t.Fatalf("expected engine stop for %q, got %v", testHash, engine.stopped)
	}

	if err := r.Remove(context.Background(), testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second removal, got %v", err)
	}
	if len(engine.stopped) != 1 {
		t.Fatalf("expected no additional engine stop, got %d", len(engine.stopped))
	}
}

func TestApplyProgressEvents(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.apply(domain.ProgressEvent{
		InfoHash: testHash,
		State:    domain.StateMetadataWait,
		Peers:    2,
	})
	r.apply(domain.ProgressEvent{
		InfoHash:        testHash,
		State:           domain.StateDownloading,
		Name:            "movie.mkv",
		Progress:        1.5,
		Peers:           12,
		DownloadSpeed:   2 << 20,
		TotalSize:       700 << 20,
		DownloadedBytes: 10 << 20,
		File:            &domain.SelectedFile{Index: 0, Path: "movie.mkv", Length: 700 << 20},
	})

	session, err := r.Get(testHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != domain.StateDownloading {
		t.Fatalf("expected downloading, got %q", session.State)
	}
	if session.Name != "movie.mkv" {
		t.Fatalf("expected name from event, got %q", session.Name)
	}
	if session.Peers != 12 || session.DownloadSpeed != 2<<20 {
		t.Fatalf("unexpected peers/speed: %d / %d", session.Peers, session.DownloadSpeed)
	}
	if session.File == nil || session.File.Path != "movie.mkv" {
		t.Fatalf("expected selected file, got %+v", session.File)
	}
	// 10 MiB downloaded clears the byte threshold.
	if !session.PlaybackReady {
		t.Fatal("expected playback ready latch to be set")
	}
}

func TestApplyMonotonicProgress(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.apply(domain.ProgressEvent{InfoHash: testHash, State: domain.StateDownloading, Progress: 40, DownloadedBytes: 400})
	r.apply(domain.ProgressEvent{InfoHash: testHash, State: domain.StateDownloading, Progress: 25, DownloadedBytes: 250})

	session, err := r.Get(testHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Progress != 40 {
		t.Fatalf("progress regressed: got %v, want 40", session.Progress)
	}
	if session.DownloadedBytes != 400 {
		t.Fatalf("downloaded bytes regressed: got %d, want 400", session.DownloadedBytes)
	}
}

func TestApplyStateNeverRegresses(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.apply(domain.ProgressEvent{InfoHash: testHash, State: domain.StateCompleted, Progress: 100})
	r.apply(domain.ProgressEvent{InfoHash: testHash, State: domain.StateDownloading, Progress: 99})

	session, err := r.Get(testHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != domain.StateCompleted {
		t.Fatalf("state regressed: got %q", session.State)
	}
}

func TestApplyErrorEvent(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.apply(domain.ProgressEvent{InfoHash: testHash, Err: errors.New("metadata timeout")})

	session, err := r.Get(testHash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != domain.StateErrored {
		t.Fatalf("expected errored, got %q", session.State)
	}
	if session.Error != "metadata timeout" {
		t.Fatalf("expected error message, got %q", session.Error)
	}
}

func TestApplyIgnoresRemovedSession(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	// Must not panic or resurrect the session.
	r.apply(domain.ProgressEvent{InfoHash: testHash, State: domain.StateDownloading, Progress: 10})
	if _, err := r.Get(testHash); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunConsumesEvents(t *testing.T) {
	engine := &fakeEngine{}
	events := make(chan domain.ProgressEvent, 4)
	r := newTestRegistry(engine, events)

	if _, _, err := r.GetOrCreate(context.Background(), testHash, testMagnet, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	events <- domain.ProgressEvent{InfoHash: testHash, State: domain.StateDownloading, Progress: 3}

	deadline := time.After(2 * time.Second)
	for {
		session, err := r.Get(testHash)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.State == domain.StateDownloading {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for event to be applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestListOrder(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRegistry(engine, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	r.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	older := domain.InfoHash("0000000000000000000000000000000000000001")
	newer := domain.InfoHash("0000000000000000000000000000000000000002")
	for _, id := range []domain.InfoHash{older, newer} {
		if _, _, err := r.GetOrCreate(context.Background(), id, testMagnet, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].InfoHash != newer {
		t.Fatalf("expected newest first, got %q", list[0].InfoHash)
	}
}
