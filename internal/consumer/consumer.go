// Package consumer implements the per-queue consumer set and the
// broker-wide consumer manager described in spec §4.6/§4.7: an ordered,
// round-robin list of consumer records per queue, registered under a
// manager keyed by queue name. It is grounded on the original
// implementation's consumer_table (server/consumer.hpp), generalized from
// its raw pointer list to a Go slice guarded by a mutex.
package consumer

import (
	"sync"

	xlog "go.bryk.io/hive/log"
)

// Callback delivers a pushed message to the consumer; invoked by the
// delivery task with the message id and body already framed for the wire.
type Callback func(messageID string, routingKey string, body []byte)

// Record describes a single registered consumer.
type Record struct {
	Tag       string
	Queue     string
	ChannelID string
	AutoAck   bool
	Deliver   Callback
}

// Set is an ordered list of consumer records for one queue, plus a
// monotonic round-robin counter. The counter is never reset except by
// Clear; removals shift the modular sequence and that shift is accepted,
// per spec §4.6.
type Set struct {
	mu      sync.Mutex
	records []Record
	counter uint64
}

// NewSet returns an empty consumer set.
func NewSet() *Set {
	return &Set{}
}

// Create appends a new consumer record. It fails (returns false) if `tag`
// is already present in the set.
func (s *Set) Create(r Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Tag == r.Tag {
			return false
		}
	}
	s.records = append(s.records, r)
	return true
}

// Remove deletes the first record matching `tag`. It returns false if no
// such record exists.
func (s *Set) Remove(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.Tag == tag {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return true
		}
	}
	return false
}

// Choose returns the next consumer in round-robin order, or false if the
// set is empty.
func (s *Set) Choose() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return Record{}, false
	}
	idx := s.counter % uint64(len(s.records))
	s.counter++
	return s.records[idx], true
}

// Exists reports whether `tag` is present in the set.
func (s *Set) Exists(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Tag == tag {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no consumers.
func (s *Set) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) == 0
}

// Clear removes every consumer and resets the round-robin counter.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.counter = 0
}

// Count reports the number of registered consumers.
func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Manager is a registry of consumer sets keyed by queue name.
type Manager struct {
	mu   sync.Mutex
	sets map[string]*Set
	log  xlog.Logger
}

// NewManager returns an empty consumer manager.
func NewManager(log xlog.Logger) *Manager {
	return &Manager{sets: make(map[string]*Set), log: log}
}

// InitQueueConsumer creates an empty consumer set for `queue`. It is
// idempotent: calling it again for an already-registered queue is a no-op.
func (m *Manager) InitQueueConsumer(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[queue]; ok {
		return
	}
	m.sets[queue] = NewSet()
}

// DestroyQueueConsumer removes the consumer set registered for `queue`, if
// any.
func (m *Manager) DestroyQueueConsumer(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, queue)
}

func (m *Manager) lookup(queue string) (*Set, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[queue]
	return s, ok
}

// Create delegates to the set registered for `queue`. A missing queue is a
// neutral failure: it returns false and logs a warning, per spec §4.7.
func (m *Manager) Create(queue string, r Record) bool {
	s, ok := m.lookup(queue)
	if !ok {
		m.warnMissingQueue("create", queue)
		return false
	}
	return s.Create(r)
}

// Remove delegates to the set registered for `queue`.
func (m *Manager) Remove(queue, tag string) bool {
	s, ok := m.lookup(queue)
	if !ok {
		m.warnMissingQueue("remove", queue)
		return false
	}
	return s.Remove(tag)
}

// Choose delegates to the set registered for `queue`.
func (m *Manager) Choose(queue string) (Record, bool) {
	s, ok := m.lookup(queue)
	if !ok {
		m.warnMissingQueue("choose", queue)
		return Record{}, false
	}
	return s.Choose()
}

// Exists delegates to the set registered for `queue`.
func (m *Manager) Exists(queue, tag string) bool {
	s, ok := m.lookup(queue)
	if !ok {
		m.warnMissingQueue("exists", queue)
		return false
	}
	return s.Exists(tag)
}

// Empty delegates to the set registered for `queue`. A queue with no
// registered set is vacuously empty.
func (m *Manager) Empty(queue string) bool {
	s, ok := m.lookup(queue)
	if !ok {
		return true
	}
	return s.Empty()
}

// Count reports the number of registered consumers for `queue`, or 0 if the
// queue has no registered set.
func (m *Manager) Count(queue string) int {
	s, ok := m.lookup(queue)
	if !ok {
		return 0
	}
	return s.Count()
}

func (m *Manager) warnMissingQueue(op, queue string) {
	if m.log == nil {
		return
	}
	m.log.WithFields(map[string]any{"op": op, "queue": queue}).
		Warning("consumer manager: operation against unregistered queue")
}
