package hub

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"groupchat/pkg/interfaces"
)

// Registry tracks live connections, the identities behind them and who is
// typing. Every method runs in one critical section, so callers never see a
// connection without its identity or an identity marked online with no
// connection behind it.
type Registry struct {
	mu         sync.RWMutex
	order      []interfaces.Connection          // join order
	identityOf map[interfaces.Connection]string // conn -> identity
	online     map[string]int                   // identity -> live connection count
	typing     map[string]struct{}
	sealed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identityOf: make(map[interfaces.Connection]string),
		online:     make(map[string]int),
		typing:     make(map[string]struct{}),
	}
}

// Register records conn under identity and marks identity online. It fails
// with ErrShuttingDown once the registry has been sealed.
func (r *Registry) Register(conn interfaces.Connection, identity string) error {
	if conn == nil {
		return ErrNilConnection
	}
	if identity == "" {
		return ErrEmptyIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrShuttingDown
	}
	if _, exists := r.identityOf[conn]; exists {
		return ErrAlreadyRegistered
	}

	r.order = append(r.order, conn)
	r.identityOf[conn] = identity
	r.online[identity]++
	return nil
}

// Unregister removes conn and returns the identity it was registered under.
// ok is false when conn was not registered, which makes repeated calls
// harmless. The identity leaves the online and typing sets only when its
// last connection goes.
func (r *Registry) Unregister(conn interfaces.Connection) (identity string, ok bool) {
	if conn == nil {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok = r.identityOf[conn]
	if !ok {
		return "", false
	}

	delete(r.identityOf, conn)
	r.order = lo.Without(r.order, conn)

	if r.online[identity] <= 1 {
		delete(r.online, identity)
		delete(r.typing, identity)
	} else {
		r.online[identity]--
	}
	return identity, true
}

// SetTyping adds or removes identity from the typing set. Identities that
// are not online are never added.
func (r *Registry) SetTyping(identity string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !typing {
		delete(r.typing, identity)
		return
	}
	if r.online[identity] > 0 {
		r.typing[identity] = struct{}{}
	}
}

// Snapshot returns the live connections in join order. The slice is a copy.
func (r *Registry) Snapshot() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]interfaces.Connection(nil), r.order...)
}

// SnapshotExcept returns live connections not registered under identity.
func (r *Registry) SnapshotExcept(identity string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Filter(r.order, func(conn interfaces.Connection, _ int) bool {
		return r.identityOf[conn] != identity
	})
}

// IdentityOf returns the identity conn is registered under.
func (r *Registry) IdentityOf(conn interfaces.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identityOf[conn]
	return identity, ok
}

// OnlineIdentities returns the online identities, sorted.
func (r *Registry) OnlineIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sorted(lo.Keys(r.online))
}

// TypingIdentities returns the identities currently typing, sorted.
func (r *Registry) TypingIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sorted(lo.Keys(r.typing))
}

// Seal refuses all later registrations and returns the connections live at
// that moment.
func (r *Registry) Seal() []interfaces.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	return append([]interfaces.Connection(nil), r.order...)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sealed
}

// Clear drops every connection, identity and typing flag. The sealed flag
// is kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.identityOf = make(map[interfaces.Connection]string)
	r.online = make(map[string]int)
	r.typing = make(map[string]struct{})
}

// GetStats returns registry counters for health and presence endpoints.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.order),
		"online_users":      len(r.online),
		"typing_users":      len(r.typing),
	}
}

func sorted(identities []string) []string {
	sort.Strings(identities)
	return identities
}
