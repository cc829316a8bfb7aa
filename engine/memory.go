package engine

import (
	"net/url"
	"sync"
	"time"
)

// memoryEntry stores the preferred engine for a domain with a TTL.
type memoryEntry struct {
	engineName string
	expiresAt  time.Time
}

// Memory remembers which engine last captured each domain successfully,
// so the capture stage can try that engine first on the next visit.
// Entries expire after the configured TTL and are pruned periodically.
type Memory struct {
	store sync.Map // domain (string) -> *memoryEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewMemory creates a Memory with the given TTL and starts a background
// goroutine that prunes expired entries every hour.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the remembered engine name for a domain, or "" if not found
// or expired.
func (m *Memory) Get(domain string) string {
	val, ok := m.store.Load(domain)
	if !ok {
		return ""
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.store.Delete(domain)
		return ""
	}
	return entry.engineName
}

// Set records which engine succeeded for a domain.
func (m *Memory) Set(domain, engineName string) {
	m.store.Store(domain, &memoryEntry{
		engineName: engineName,
		expiresAt:  time.Now().Add(m.ttl),
	})
}

// Delete removes the memory for a domain (e.g. after the remembered engine
// fails).
func (m *Memory) Delete(domain string) {
	m.store.Delete(domain)
}

// Stop terminates the background cleanup goroutine.
func (m *Memory) Stop() {
	close(m.done)
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.store.Range(func(key, value any) bool {
				entry := value.(*memoryEntry)
				if now.After(entry.expiresAt) {
					m.store.Delete(key)
				}
				return true
			})
		}
	}
}

// Domain parses the hostname from a URL string.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
