package channel

import "sync"

// Manager owns the process-wide channel set plus the SSRC allocator
// backing it. All mutation goes through Manager so the registry lock is
// never held across a socket operation.
type Manager struct {
	ssrc *Registry

	mu       sync.RWMutex
	channels map[uint32]*Channel
}

func NewManager() *Manager {
	return &Manager{
		ssrc:     NewRegistry(),
		channels: make(map[uint32]*Channel),
	}
}

// Add registers ch under its SSRC. The SSRC must already have been
// reserved via Allocate.
func (m *Manager) Add(ch *Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.SSRC] = ch
}

// Remove unregisters ssrc and frees it for reuse.
func (m *Manager) Remove(ssrc uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, ssrc)
	m.ssrc.Release(ssrc)
}

// Lookup returns the channel for ssrc, if any.
func (m *Manager) Lookup(ssrc uint32) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[ssrc]
	return ch, ok
}

// Snapshot returns a stable slice of all current channels for iteration
// (e.g. by the RTCP sender or idle sweeper) without holding the lock
// while visiting each one.
func (m *Manager) Snapshot() []*Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}

// Allocate reserves an SSRC for a freshly-derived (or explicitly
// overridden) requested value, reporting whether the value was the
// reserved sentinel (0) and whether the collision-retry budget was
// exhausted. At most one of reserved and exhausted is true per call;
// either means "no channel for this frequency", and ssrc is valid only
// when both are false.
func (m *Manager) Allocate(requested uint32) (ssrc uint32, reserved bool, exhausted bool) {
	if Reserved(requested) {
		return 0, true, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	got, ok := m.ssrc.Reserve(requested)
	if !ok {
		return 0, false, true
	}
	return got, false, false
}

// Count returns the number of live channels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}
