package orchestrator

import (
	"sync"
	"time"

	"github.com/ChaseRain/slidegen/internal/service/delivery"
	"github.com/ChaseRain/slidegen/pkg/errors"
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type BannerKind string

const (
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is a dismissible message shown on the entry view.
type Banner struct {
	Kind    BannerKind
	Message string
	// Timeout is how long the banner stays up; zero means until replaced.
	Timeout time.Duration
}

// View is one render's worth of session state. Taking a View drains the
// pending downloads, so each link is activated once.
type View struct {
	State     State
	Banner    *Banner
	Downloads []delivery.Link
}

// Session is the per-browser state machine. Its banner timer is owned by
// the session and stopped when the session is closed.
type Session struct {
	id string

	mu       sync.Mutex
	state    State
	banner   *Banner
	dismiss  *time.Timer
	seq      uint64
	closed   bool
	lastSeen time.Time

	downloads delivery.LinkQueue
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, lastSeen: now}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Banner() *Banner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.banner == nil {
		return nil
	}
	b := *s.banner
	return &b
}

func (s *Session) View() View {
	s.mu.Lock()
	v := View{State: s.state}
	if s.banner != nil {
		b := *s.banner
		v.Banner = &b
	}
	s.mu.Unlock()

	v.Downloads = s.downloads.Drain()
	return v
}

// begin moves Idle/Success/Failed to Submitting. Any visible banner is
// dropped along with its timer.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New(errors.ErrCodeInternal, "session closed")
	}
	if s.state == StateSubmitting {
		return errors.New(errors.ErrCodeInProgress, "A presentation is already being generated")
	}
	s.cancelDismissLocked()
	s.banner = nil
	s.state = StateSubmitting
	return nil
}

// finish leaves Submitting and schedules the return to Idle.
func (s *Session) finish(state State, banner Banner, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.showLocked(banner, after)
}

// notify shows a banner without changing state.
func (s *Session) notify(banner Banner, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked(banner, after)
}

// reset drops the banner and returns a settled session to Idle.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelDismissLocked()
	s.banner = nil
	if s.state != StateSubmitting {
		s.state = StateIdle
	}
	s.downloads.Drain()
}

func (s *Session) showLocked(banner Banner, after time.Duration) {
	s.cancelDismissLocked()
	if s.closed {
		return
	}
	b := banner
	b.Timeout = after
	s.banner = &b

	if after <= 0 {
		return
	}
	s.seq++
	seq := s.seq
	s.dismiss = time.AfterFunc(after, func() { s.expire(seq) })
}

func (s *Session) expire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a newer banner or a close supersedes this task
	if s.closed || seq != s.seq {
		return
	}
	s.dismiss = nil
	s.banner = nil
	if s.state == StateSuccess || s.state == StateFailed {
		s.state = StateIdle
	}
}

func (s *Session) cancelDismissLocked() {
	s.seq++
	if s.dismiss != nil {
		s.dismiss.Stop()
		s.dismiss = nil
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen), s.state == StateSubmitting
}

// Close stops the dismiss timer; later timer callbacks are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDismissLocked()
	s.closed = true
}
