// Package scope guards asynchronous work against the view it was started for
// having moved on.
package scope

import "sync"

// Guard tracks the identity and generation of the currently observed scope.
// Each Begin invalidates every token handed out before it.
type Guard struct {
	mu  sync.RWMutex
	gen uint64
	id  string
}

// Token captures one scope generation.
type Token struct {
	g   *Guard
	gen uint64
	id  string
}

// Begin moves the guard to a new scope and returns its token.
func (g *Guard) Begin(id string) Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.id = id
	return Token{g: g, gen: g.gen, id: id}
}

// End invalidates all outstanding tokens without starting a new scope.
func (g *Guard) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.id = ""
}

// ID returns the current scope id, or "" after End.
func (g *Guard) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

// Current reports whether the token's scope is still the active one.
func (t Token) Current() bool {
	if t.g == nil {
		return false
	}
	t.g.mu.RLock()
	defer t.g.mu.RUnlock()
	return t.g.gen == t.gen
}

// ID returns the scope id the token was issued for.
func (t Token) ID() string {
	return t.id
}
