package server

import (
	"sync"
	"time"

	"github.com/alkime/callcoach/internal/workflow"
)

// defaultSessionIdle is how long an unused controller is kept.
const defaultSessionIdle = 30 * time.Minute

type session struct {
	ctrl     *workflow.Controller
	lastUsed time.Time
	// holders counts open event streams; a held session is never evicted.
	holders int
}

// sessions keeps one workflow controller per user and closes controllers
// that have been idle longer than idle. Idle ones are swept on access.
type sessions struct {
	mu    sync.Mutex
	byID  map[string]*session
	build func(ownerID string) *workflow.Controller
	idle  time.Duration
	now   func() time.Time
}

func newSessions(build func(string) *workflow.Controller, idle time.Duration) *sessions {
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	return &sessions{
		byID:  map[string]*session{},
		build: build,
		idle:  idle,
		now:   time.Now,
	}
}

func (s *sessions) get(ownerID string) *workflow.Controller {
	ctrl, _ := s.use(ownerID, false)
	return ctrl
}

// acquire returns the owner's controller and keeps it from being evicted
// until release is called.
func (s *sessions) acquire(ownerID string) (*workflow.Controller, func()) {
	return s.use(ownerID, true)
}

func (s *sessions) use(ownerID string, hold bool) (*workflow.Controller, func()) {
	s.mu.Lock()
	now := s.now()
	stale := s.sweepLocked(now)

	sess, ok := s.byID[ownerID]
	if !ok {
		sess = &session{ctrl: s.build(ownerID)}
		s.byID[ownerID] = sess
	}
	sess.lastUsed = now
	if hold {
		sess.holders++
	}
	s.mu.Unlock()

	closeControllers(stale)

	if !hold {
		return sess.ctrl, func() {}
	}

	var once sync.Once
	return sess.ctrl, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sess.holders--
			sess.lastUsed = s.now()
		})
	}
}

// sweepLocked removes idle sessions and returns their controllers for the
// caller to close once the lock is released.
func (s *sessions) sweepLocked(now time.Time) []*workflow.Controller {
	var stale []*workflow.Controller
	for id, sess := range s.byID {
		if sess.holders > 0 || now.Sub(sess.lastUsed) < s.idle || sess.ctrl.State().Busy() {
			continue
		}
		stale = append(stale, sess.ctrl)
		delete(s.byID, id)
	}
	return stale
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	ctrls := make([]*workflow.Controller, 0, len(s.byID))
	for id, sess := range s.byID {
		ctrls = append(ctrls, sess.ctrl)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	closeControllers(ctrls)
}

func closeControllers(ctrls []*workflow.Controller) {
	for _, ctrl := range ctrls {
		ctrl.Close()
	}
}
