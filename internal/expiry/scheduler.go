package expiry

import (
	"sync"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/queue"
	"github.com/eduvpn/eduvpn-core/internal/util"
)

// Handler is called with the new status on every refresh point
type Handler func(Status)

// Scheduler calls a handler on the refresh points of a session
// It uses a single timer that is re-armed on the queue after each point
type Scheduler struct {
	queue      *queue.Queue
	handler    Handler
	expiry     time.Time
	canRenewAt *time.Time

	mu      sync.Mutex
	points  []RefreshPoint
	timer   *time.Timer
	stopped bool
}

// Start starts a scheduler for a session that expires at expiry
// The handler is called on q
func Start(q *queue.Queue, expiry time.Time, authenticatedAt *time.Time, handler Handler) *Scheduler {
	s := newScheduler(q, expiry, authenticatedAt, handler,
		ComputeRefreshTimes(util.CurrentTime(), expiry, authenticatedAt))
	q.Dispatch(s.scheduleNext)
	return s
}

func newScheduler(q *queue.Queue, expiry time.Time, authenticatedAt *time.Time, handler Handler, points []RefreshPoint) *Scheduler {
	return &Scheduler{
		queue:      q,
		handler:    handler,
		expiry:     expiry,
		canRenewAt: CanRenewAt(authenticatedAt),
		points:     points,
	}
}

// Remaining returns the number of refresh points that did not fire yet
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// scheduleNext arms the timer for the first point
// It must run on the queue
func (s *Scheduler) scheduleNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.points) == 0 {
		s.timer = nil
		return
	}
	next := s.points[0]
	s.points = s.points[1:]
	d := next.At.Sub(util.CurrentTime())
	if d < 0 {
		d = 0
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.queue.Dispatch(func() { s.fire(t, next) })
	})
	s.timer = t
}

func (s *Scheduler) fire(t *time.Timer, p RefreshPoint) {
	s.mu.Lock()
	if s.stopped || s.timer != t {
		s.mu.Unlock()
		return
	}
	at := util.CurrentTime()
	if at.Before(p.At) {
		at = p.At
	}
	s.pruneBefore(at)
	s.mu.Unlock()

	status := StatusAt(at, s.expiry, s.canRenewAt)
	if p.Status.Expired {
		status = p.Status
	}
	s.handler(status)
	s.scheduleNext()
}

// pruneBefore drops points in the past, these can be left after the system was suspended
// The last point is always kept so that the expired status is reported
func (s *Scheduler) pruneBefore(at time.Time) {
	n := 0
	for n < len(s.points)-1 && s.points[n].At.Before(at) {
		n++
	}
	if n > 0 {
		log.Logger.Debugf("expiry: skipping %d refresh points in the past", n)
	}
	s.points = s.points[n:]
}

// Stop invalidates the timer, the handler is not called anymore
// It can be called from any goroutine
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.points = nil
}
