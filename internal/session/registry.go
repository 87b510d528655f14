package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type attemptKey struct {
	exam    uuid.UUID
	student int
}

// Registry tracks the live controller of every in-flight attempt in this
// process, keyed by (exam, student). Controllers are created on demand,
// reused while the attempt is live, and evicted as soon as they reach a
// terminal phase so orphaned timers cannot drive stale state.
type Registry struct {
	gw    Gateway
	clock Clock
	log   zerolog.Logger
	opts  Options

	mu   sync.Mutex
	live map[attemptKey]*Controller
}

// NewRegistry creates an empty controller registry.
func NewRegistry(gw Gateway, clock Clock, log zerolog.Logger, opts Options) *Registry {
	return &Registry{
		gw:    gw,
		clock: clock,
		log:   log.With().Str("component", "session_registry").Logger(),
		opts:  opts,
		live:  make(map[attemptKey]*Controller),
	}
}

// Load returns the live controller for the attempt, creating and loading a
// fresh one when none exists. A controller that already reached a terminal
// phase is replaced, which is how an interrupted attempt resumes.
func (r *Registry) Load(ctx context.Context, examID uuid.UUID, studentID int) (*Controller, error) {
	k := attemptKey{exam: examID, student: studentID}

	r.mu.Lock()
	if c, ok := r.live[k]; ok {
		if !c.Phase().Terminal() {
			r.mu.Unlock()
			return c, nil
		}
		c.Close()
		delete(r.live, k)
	}

	c := NewController(r.gw, r.clock, r.log, r.opts, examID, studentID)
	r.live[k] = c
	r.mu.Unlock()

	// Evict as soon as the attempt ends, whatever path ended it.
	c.Subscribe(func(s Snapshot) {
		if s.Phase.Terminal() {
			r.drop(k, c)
		}
	})

	if err := c.Load(ctx); err != nil {
		r.Release(examID, studentID)
		return nil, err
	}
	return c, nil
}

// Get returns the live controller for the attempt without creating one.
func (r *Registry) Get(examID uuid.UUID, studentID int) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.live[attemptKey{exam: examID, student: studentID}]
	return c, ok
}

// drop forgets the controller only while it is still the one registered
// for the attempt, so a stale instance can never evict its replacement.
func (r *Registry) drop(k attemptKey, c *Controller) {
	r.mu.Lock()
	if r.live[k] == c {
		delete(r.live, k)
	}
	r.mu.Unlock()
	c.Close()
}

// Release closes and forgets the controller for the attempt, if any.
func (r *Registry) Release(examID uuid.UUID, studentID int) {
	k := attemptKey{exam: examID, student: studentID}
	r.mu.Lock()
	c, ok := r.live[k]
	if ok {
		delete(r.live, k)
	}
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// CloseAll releases every live controller; called on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.live))
	for _, c := range r.live {
		controllers = append(controllers, c)
	}
	r.live = make(map[attemptKey]*Controller)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
	if len(controllers) > 0 {
		r.log.Info().Int("count", len(controllers)).Msg("Released live exam sessions")
	}
}
