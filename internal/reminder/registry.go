package reminder

import "sync"

// Registry maps reminder ids to their live timer. It holds at most one timer per id.
//
// Every installed timer gets a token. A firing timer must Claim its entry with that token;
// once the entry was cancelled or replaced the claim fails and the callback does nothing.
type Registry struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]timerEntry
}

type timerEntry struct {
	h     Handle
	token uint64
}

func NewRegistry() *Registry {
	return &Registry{timers: map[string]timerEntry{}}
}

// Install cancels any timer registered for id, then registers the handle returned by arm.
// arm runs under the registry lock and receives the token for the new entry, so a callback
// that fires immediately still blocks in Claim until the entry exists.
func (r *Registry) Install(id string, arm func(token uint64) Handle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installLocked(id, arm)
}

// InstallIfAbsent registers arm's handle only when id has no live timer.
func (r *Registry) InstallIfAbsent(id string, arm func(token uint64) Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[id]; ok {
		return false
	}
	r.installLocked(id, arm)
	return true
}

func (r *Registry) installLocked(id string, arm func(token uint64) Handle) uint64 {
	if prev, ok := r.timers[id]; ok && prev.h != nil {
		prev.h.Stop()
	}
	r.seq++
	tok := r.seq
	r.timers[id] = timerEntry{h: arm(tok), token: tok}
	return tok
}

// Claim removes the entry for id without stopping it, if token is still the current one.
func (r *Registry) Claim(id string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[id]
	if !ok || e.token != token {
		return false
	}
	delete(r.timers, id)
	return true
}

// Cancel stops and removes the timer for id. It reports whether one existed.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[id]
	if !ok {
		return false
	}
	delete(r.timers, id)
	if e.h != nil {
		e.h.Stop()
	}
	return true
}

// Remove drops the entry for id without stopping it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[id]
	delete(r.timers, id)
	return ok
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// CancelAll stops every timer and empties the registry.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.timers)
	for id, e := range r.timers {
		if e.h != nil {
			e.h.Stop()
		}
		delete(r.timers, id)
	}
	return n
}
