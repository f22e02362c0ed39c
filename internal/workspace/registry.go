// Package workspace keeps the views each browser session works with: its
// payment dashboard, its create form and one edit form per schedule.
package workspace

import (
	"log/slog"
	"sync"
	"time"

	"waste-portal/internal/dashboard"
	"waste-portal/internal/form"
	"waste-portal/pkg/logging"
)

const sweepInterval = 1 * time.Minute

// Factory builds fresh views for a session.
type Factory struct {
	Dashboard  func() *dashboard.Dashboard
	CreateForm func() *form.Controller
	EditForm   func() *form.Controller
}

type views struct {
	dashboard *dashboard.Dashboard
	create    *form.Controller
	edits     map[string]*form.Controller
	lastSeen  time.Time
}

func (v *views) close() {
	if v.dashboard != nil {
		v.dashboard.Close()
	}
	if v.create != nil {
		v.create.Close()
	}
	for _, c := range v.edits {
		c.Close()
	}
}

// Registry maps session ids to their views and evicts sessions idle for
// longer than the TTL.
type Registry struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*views

	done chan struct{}
	wg   sync.WaitGroup
	log  *slog.Logger
}

func New(factory Factory, ttl time.Duration) *Registry {
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*views),
		done:     make(chan struct{}),
		log:      logging.Component("workspace"),
	}
}

func (r *Registry) touch(sid string) *views {
	v, ok := r.sessions[sid]
	if !ok {
		v = &views{edits: make(map[string]*form.Controller)}
		r.sessions[sid] = v
	}
	v.lastSeen = r.now()
	return v
}

func (r *Registry) Dashboard(sid string) *dashboard.Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.touch(sid)
	if v.dashboard == nil {
		v.dashboard = r.factory.Dashboard()
	}
	return v.dashboard
}

func (r *Registry) CreateForm(sid string) *form.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.touch(sid)
	if v.create == nil {
		v.create = r.factory.CreateForm()
	}
	return v.create
}

// EditForm returns the edit form of one schedule.
func (r *Registry) EditForm(sid, scheduleID string) *form.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.touch(sid)
	c, ok := v.edits[scheduleID]
	if !ok {
		c = r.factory.EditForm()
		v.edits[scheduleID] = c
	}
	return c
}

// ReleaseEditForm closes and forgets the edit form of a schedule once it is
// saved.
func (r *Registry) ReleaseEditForm(sid, scheduleID string) {
	r.mu.Lock()
	var released *form.Controller
	if v, ok := r.sessions[sid]; ok {
		released = v.edits[scheduleID]
		delete(v.edits, scheduleID)
	}
	r.mu.Unlock()

	if released != nil {
		released.Close()
	}
}

// Drop closes and forgets every view of a session.
func (r *Registry) Drop(sid string) {
	r.mu.Lock()
	v, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()

	if ok {
		v.close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were evicted.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var idle []*views
	for sid, v := range r.sessions {
		if v.lastSeen.Before(cutoff) {
			idle = append(idle, v)
			delete(r.sessions, sid)
		}
	}
	r.mu.Unlock()

	for _, v := range idle {
		v.close()
	}
	return len(idle)
}

func (r *Registry) Start() {
	r.wg.Add(1)
	go r.cleanupLoop()
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Info("evicted idle sessions", "count", n)
			}
		}
	}
}

// Stop ends the cleanup loop and closes every remaining view.
func (r *Registry) Stop() {
	close(r.done)
	r.wg.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*views)
	r.mu.Unlock()

	for _, v := range sessions {
		v.close()
	}
}
