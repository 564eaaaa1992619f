package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwaiseghegift/tg-utils-bot/internal/fileinfo"
	"github.com/mwaiseghegift/tg-utils-bot/internal/probe"
)

// State is the lifecycle state of a transfer session.
type State int

const (
	StateAdmitted State = iota
	StateProbing
	StateSizeCheck
	StateStreaming
	StateUploading
	StateCompleted
	StateCancelled
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateProbing:
		return "probing"
	case StateSizeCheck:
		return "size_check"
	case StateStreaming:
		return "streaming"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions occur from this state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateRejected, StateFailed:
		return true
	default:
		return false
	}
}

// Session is one owner's in-flight transfer. It is mutated only by the owning
// transfer loop; the cancel flag is the single externally writable field.
type Session struct {
	ID      string
	OwnerID string
	URL     string

	startedAt time.Time
	cancel    atomic.Bool
	done      chan struct{}

	mu               sync.Mutex
	state            State
	filename         string
	category         fileinfo.Category
	declaredSize     int64
	bytesTransferred int64
	lastProgressEmit time.Time
	reason           string
}

func newSession(id, ownerID, url string) *Session {
	return &Session{
		ID:           id,
		OwnerID:      ownerID,
		URL:          url,
		startedAt:    time.Now(),
		done:         make(chan struct{}),
		state:        StateAdmitted,
		declaredSize: probe.SizeUnknown,
	}
}

// RequestCancel marks the session for cooperative cancellation. The flag is
// set-once and polled by the transfer loop at chunk boundaries, so the
// in-flight read is never interrupted.
func (s *Session) RequestCancel() {
	s.cancel.Store(true)
}

func (s *Session) cancelRequested() bool {
	return s.cancel.Load()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setMetadata(filename string, category fileinfo.Category, declaredSize int64) {
	s.mu.Lock()
	s.filename = filename
	s.category = category
	s.declaredSize = declaredSize
	s.mu.Unlock()
}

func (s *Session) addBytes(n int) {
	s.mu.Lock()
	s.bytesTransferred += int64(n)
	s.mu.Unlock()
}

func (s *Session) finish(state State, reason string) {
	s.mu.Lock()
	s.state = state
	s.reason = reason
	s.mu.Unlock()
	close(s.done)
}

// Snapshot is a point-in-time view of the session's progress, safe to hand to
// presentation layers.
type Snapshot struct {
	SessionID        string
	OwnerID          string
	URL              string
	Filename         string
	Category         fileinfo.Category
	State            State
	DeclaredSize     int64 // probe.SizeUnknown when the server never said
	BytesTransferred int64
	Speed            float64 // bytes per second averaged since start
	ETA              time.Duration
	Elapsed          time.Duration
	Reason           string
}

// SizeKnown reports whether the origin declared a total size.
func (sn *Snapshot) SizeKnown() bool {
	return sn.DeclaredSize >= 0
}

// Snapshot captures the current progress of the session.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startedAt)

	var speed float64
	if elapsed > 0 {
		speed = float64(s.bytesTransferred) / elapsed.Seconds()
	}

	var eta time.Duration
	if speed > 0 && s.declaredSize >= 0 && s.declaredSize > s.bytesTransferred {
		eta = time.Duration(float64(s.declaredSize-s.bytesTransferred)/speed) * time.Second
	}

	return &Snapshot{
		SessionID:        s.ID,
		OwnerID:          s.OwnerID,
		URL:              s.URL,
		Filename:         s.filename,
		Category:         s.category,
		State:            s.state,
		DeclaredSize:     s.declaredSize,
		BytesTransferred: s.bytesTransferred,
		Speed:            speed,
		ETA:              eta,
		Elapsed:          elapsed,
		Reason:           s.reason,
	}
}

// shouldEmitProgress applies the emit pacing: at most once per interval, or
// immediately when the transfer has just delivered its final declared byte.
func (s *Session) shouldEmitProgress(interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastProgressEmit) >= interval || (s.declaredSize >= 0 && s.bytesTransferred == s.declaredSize) {
		s.lastProgressEmit = now

		return true
	}

	return false
}
