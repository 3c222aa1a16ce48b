package serializer

import "sync"

// Version identifies a committed state of the namespace.
type Version struct {
	Commit string `json:"commit"`
	Tree   string `json:"tree"`
}

// VersionPointer holds the current Version. Any goroutine may Load it;
// only the serializer loop stores into it.
type VersionPointer struct {
	mu      sync.RWMutex
	current Version
}

func (p *VersionPointer) Load() Version {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *VersionPointer) store(v Version) {
	p.mu.Lock()
	p.current = v
	p.mu.Unlock()
}
