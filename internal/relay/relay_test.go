package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwaiseghegift/tg-utils-bot/internal/probe"
	"github.com/mwaiseghegift/tg-utils-bot/internal/storage"
	"github.com/stretchr/testify/require"
)

// captureUploader implements Uploader and records what it received.
type captureUploader struct {
	mu       sync.Mutex
	called   bool
	last     *UploadRequest
	uploadFn func(ctx context.Context, req *UploadRequest) error
}

func (c *captureUploader) Upload(ctx context.Context, req *UploadRequest) error {
	c.mu.Lock()
	c.called = true
	c.last = req
	fn := c.uploadFn
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	return nil
}

func (c *captureUploader) wasCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.called
}

func (c *captureUploader) request() *UploadRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// captureSink implements Sink and records emissions.
type captureSink struct {
	mu        sync.Mutex
	progress  []*Snapshot
	terminals []*Outcome
}

func (c *captureSink) OnProgress(_ context.Context, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.progress = append(c.progress, snap)
}

func (c *captureSink) OnTerminal(_ context.Context, out *Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.terminals = append(c.terminals, out)
}

func (c *captureSink) terminalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.terminals)
}

func (c *captureSink) lastTerminal() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.terminals) == 0 {
		return nil
	}

	return c.terminals[len(c.terminals)-1]
}

// captureRepo implements storage.TransferWriteRepository.
type captureRepo struct {
	mu      sync.Mutex
	records []*storage.TransferRecord
}

func (c *captureRepo) RecordTransfer(_ context.Context, rec *storage.TransferRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, rec)

	return nil
}

func (c *captureRepo) lastRecord() *storage.TransferRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	return c.records[len(c.records)-1]
}

func testConfig() ServiceConfig {
	return ServiceConfig{
		MaxTransferSize:  1 << 20,
		ChunkSize:        1024,
		ProgressInterval: 50 * time.Millisecond,
		StreamTimeout:    10 * time.Second,
	}
}

func newTestService(t *testing.T, cfg ServiceConfig, up Uploader, repo storage.TransferWriteRepository, sink Sink) *Service {
	t.Helper()

	return NewService(cfg, probe.NewClient(5*time.Second), up, repo, sink, nil)
}

func waitForTerminal(t *testing.T, s *Session) {
	t.Helper()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not reach a terminal state in time")
	}
}

func waitForRelease(t *testing.T, svc *Service) {
	t.Helper()

	require.Eventually(t, func() bool {
		return svc.Registry().Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSubmit_InvalidURL(t *testing.T) {
	up := &captureUploader{}
	svc := newTestService(t, testConfig(), up, nil, nil)

	for _, url := range []string{"", "ftp://example.com/a", "example.com/a", "file:///etc/passwd"} {
		_, err := svc.Submit(context.Background(), "alice", url)

		var invalid *InvalidInputError
		require.ErrorAs(t, err, &invalid, "url=%q", url)
	}

	require.Equal(t, 0, svc.Registry().Len())
	require.False(t, up.wasCalled())
}

func TestSubmit_CompletesAndUploads(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 2500) // not a multiple of the chunk size

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))

		if r.Method == http.MethodHead {
			return
		}

		_, _ = w.Write(payload)
	}))
	defer origin.Close()

	up := &captureUploader{}
	sink := &captureSink{}
	repo := &captureRepo{}
	svc := newTestService(t, testConfig(), up, repo, sink)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/clip.mp4")
	require.NoError(t, err)

	waitForTerminal(t, s)
	waitForRelease(t, svc)

	snap := s.Snapshot()
	require.Equal(t, StateCompleted, snap.State)
	require.Equal(t, int64(len(payload)), snap.BytesTransferred)
	require.Equal(t, "transfer completed", snap.Reason)

	req := up.request()
	require.NotNil(t, req)
	require.Equal(t, payload, req.Data)
	require.Equal(t, "clip.mp4", req.Filename)
	require.Equal(t, "video", req.Category.String())
	require.Equal(t, "clip.mp4 (2.4 KB)", req.Caption)

	require.Eventually(t, func() bool { return sink.terminalCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, StateCompleted, sink.lastTerminal().State)

	rec := repo.lastRecord()
	require.NotNil(t, rec)
	require.Equal(t, "completed", rec.Status)
	require.Equal(t, "alice", rec.OwnerID)
	require.Equal(t, int64(len(payload)), rec.Bytes)

	_, err = time.Parse(time.RFC3339, rec.FinishedAt)
	require.NoError(t, err)
}

func TestSubmit_EmptyBodyCompletes(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
	}))
	defer origin.Close()

	up := &captureUploader{}
	svc := newTestService(t, testConfig(), up, nil, nil)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/empty.bin")
	require.NoError(t, err)

	waitForTerminal(t, s)

	snap := s.Snapshot()
	require.Equal(t, StateCompleted, snap.State)
	require.Equal(t, int64(0), snap.BytesTransferred)

	req := up.request()
	require.NotNil(t, req)
	require.Empty(t, req.Data)
	require.Equal(t, "document", req.Category.String())
}

func TestSubmit_RejectsOversizedBeforeStreaming(t *testing.T) {
	var streamed atomic.Bool

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			streamed.Store(true)
		}

		w.Header().Set("Content-Length", strconv.FormatInt(3<<30, 10))
	}))
	defer origin.Close()

	up := &captureUploader{}
	cfg := testConfig()
	cfg.MaxTransferSize = 2 << 30
	svc := newTestService(t, cfg, up, nil, nil)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/huge.mkv")
	require.NoError(t, err)

	waitForTerminal(t, s)
	waitForRelease(t, svc)

	snap := s.Snapshot()
	require.Equal(t, StateRejected, snap.State)
	require.Equal(t, int64(0), snap.BytesTransferred)
	require.Contains(t, snap.Reason, "file too large")

	require.False(t, streamed.Load())
	require.False(t, up.wasCalled())
}

func TestSubmit_SecondOwnerSubmissionDenied(t *testing.T) {
	release := make(chan struct{})

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")

		if r.Method == http.MethodHead {
			return
		}

		<-release
	}))

	t.Cleanup(func() {
		close(release)
		origin.Close()
	})

	svc := newTestService(t, testConfig(), &captureUploader{}, nil, nil)

	_, err := svc.Submit(context.Background(), "alice", origin.URL+"/a.bin")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "alice", origin.URL+"/b.bin")

	var active *AlreadyActiveError
	require.ErrorAs(t, err, &active)
	require.Equal(t, "alice", active.OwnerID)

	// Another owner is admitted normally.
	_, err = svc.Submit(context.Background(), "bob", origin.URL+"/c.bin")
	require.NoError(t, err)
}

func TestSubmit_CancelBetweenChunksStopsAccumulation(t *testing.T) {
	firstChunkSent := make(chan struct{})
	resume := make(chan struct{})

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")

		if r.Method == http.MethodHead {
			return
		}

		flusher := w.(http.Flusher)

		_, _ = w.Write(bytes.Repeat([]byte("a"), 1024))
		flusher.Flush()
		close(firstChunkSent)

		<-resume

		_, _ = w.Write(bytes.Repeat([]byte("b"), 1024))
	}))

	t.Cleanup(origin.Close)

	up := &captureUploader{}
	svc := newTestService(t, testConfig(), up, nil, nil)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/two-chunks.bin")
	require.NoError(t, err)

	<-firstChunkSent

	// Wait until the first chunk has been accumulated, then cancel before the
	// origin is allowed to send the second one.
	require.Eventually(t, func() bool {
		return s.Snapshot().BytesTransferred == 1024
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Cancel("alice", "alice"))
	close(resume)

	waitForTerminal(t, s)
	waitForRelease(t, svc)

	snap := s.Snapshot()
	require.Equal(t, StateCancelled, snap.State)
	require.Equal(t, int64(1024), snap.BytesTransferred)
	require.Equal(t, "cancelled by owner", snap.Reason)
	require.False(t, up.wasCalled())

	// The owner can start a new transfer after release.
	_, err = svc.Submit(context.Background(), "alice", origin.URL+"/next.bin")
	require.NoError(t, err)
}

func TestSubmit_ProbeFailureFails(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer origin.Close()

	up := &captureUploader{}
	sink := &captureSink{}
	svc := newTestService(t, testConfig(), up, nil, sink)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/gone.bin")
	require.NoError(t, err)

	waitForTerminal(t, s)
	waitForRelease(t, svc)

	require.Equal(t, StateFailed, s.Snapshot().State)
	require.False(t, up.wasCalled())

	require.Eventually(t, func() bool { return sink.terminalCount() == 1 }, time.Second, 5*time.Millisecond)

	var probeErr *ProbeError
	require.ErrorAs(t, sink.lastTerminal().Err, &probeErr)
}

func TestSubmit_StreamErrorStatusFails(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "128")

			return
		}

		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer origin.Close()

	sink := &captureSink{}
	svc := newTestService(t, testConfig(), &captureUploader{}, nil, sink)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/flaky.bin")
	require.NoError(t, err)

	waitForTerminal(t, s)

	require.Equal(t, StateFailed, s.Snapshot().State)

	require.Eventually(t, func() bool { return sink.terminalCount() == 1 }, time.Second, 5*time.Millisecond)

	var netErr *NetworkError
	require.ErrorAs(t, sink.lastTerminal().Err, &netErr)
	require.Equal(t, http.StatusNotFound, netErr.StatusCode)
}

func TestSubmit_UploadFailureFails(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "16")

		if r.Method == http.MethodHead {
			return
		}

		_, _ = w.Write(bytes.Repeat([]byte("z"), 16))
	}))
	defer origin.Close()

	up := &captureUploader{uploadFn: func(context.Context, *UploadRequest) error {
		return errors.New("destination unavailable")
	}}
	svc := newTestService(t, testConfig(), up, nil, nil)

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/doomed.bin")
	require.NoError(t, err)

	waitForTerminal(t, s)
	waitForRelease(t, svc)

	snap := s.Snapshot()
	require.Equal(t, StateFailed, snap.State)
	require.Equal(t, int64(16), snap.BytesTransferred)
	require.True(t, up.wasCalled())
}

func TestSubmit_PanickingSinkDoesNotAbortTransfer(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "32")

		if r.Method == http.MethodHead {
			return
		}

		_, _ = w.Write(bytes.Repeat([]byte("p"), 32))
	}))
	defer origin.Close()

	up := &captureUploader{}
	svc := newTestService(t, testConfig(), up, nil, panickySink{})

	s, err := svc.Submit(context.Background(), "alice", origin.URL+"/sturdy.bin")
	require.NoError(t, err)

	waitForTerminal(t, s)

	require.Equal(t, StateCompleted, s.Snapshot().State)
	require.True(t, up.wasCalled())
}

type panickySink struct{}

func (panickySink) OnProgress(context.Context, *Snapshot) { panic("presentation bug") }

func (panickySink) OnTerminal(context.Context, *Outcome) { panic("presentation bug") }

func TestStatus(t *testing.T) {
	svc := newTestService(t, testConfig(), &captureUploader{}, nil, nil)

	_, ok := svc.Status("nobody")
	require.False(t, ok)
}

func TestSnapshot_SpeedAndETA(t *testing.T) {
	s := newSession("s1", "alice", "https://example.com/a")
	s.setMetadata("a.bin", 0, 10_000)
	s.startedAt = time.Now().Add(-2 * time.Second)
	s.addBytes(5000)

	snap := s.Snapshot()
	require.True(t, snap.SizeKnown())
	require.InDelta(t, 2500, snap.Speed, 300)
	require.Greater(t, snap.ETA, time.Duration(0))
}

func TestSnapshot_UnknownSizeHasNoETA(t *testing.T) {
	s := newSession("s1", "alice", "https://example.com/a")
	s.addBytes(5000)

	snap := s.Snapshot()
	require.False(t, snap.SizeKnown())
	require.Equal(t, time.Duration(0), snap.ETA)
}

func TestShouldEmitProgress_Pacing(t *testing.T) {
	s := newSession("s1", "alice", "https://example.com/a")
	s.setMetadata("a.bin", 0, 2048)

	interval := 100 * time.Millisecond

	s.addBytes(1024)
	require.True(t, s.shouldEmitProgress(interval)) // first emit, nothing recent
	require.False(t, s.shouldEmitProgress(interval))

	// Hitting the declared size forces an emit regardless of pacing.
	s.addBytes(1024)
	require.True(t, s.shouldEmitProgress(interval))
}
