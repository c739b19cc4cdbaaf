// Package pipeline implements the per-queue message manager described in
// spec §4.5: a ready list (FIFO), a pending-ack map and, for durable queues,
// an on-disk log plus an index of durably-persisted messages kept in sync
// with it. It is grounded on the original implementation's message manager
// (server/queue.hpp's message bookkeeping), generalized from its in-process
// list/map pair to the same shape guarded by a single mutex, with the
// append-only log delegated to package mlog.
package pipeline

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"go.bryk.io/hive/errors"
	"go.bryk.io/hive/internal/mlog"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
)

// durableEntry tracks the on-disk location of a persisted message, keyed by
// message id, so ack can invalidate it and compaction can relocate it.
type durableEntry struct {
	offset int64
	length int64
}

// Pipeline owns the ready list, pending-ack map and durable index for a
// single queue. A Pipeline is created once per queue and lives for as long
// as the queue exists.
type Pipeline struct {
	mu sync.Mutex

	queue   string
	durable bool
	log     *mlog.Log // nil for non-durable queues
	xlog    xlog.Logger

	ready      *list.List // of model.Message
	pendingAck map[string]model.Message
	durableIdx map[string]durableEntry

	total int
	valid int

	compactions int
}

// Open constructs the pipeline for `queue`. When durable is true, basedir's
// on-disk log is opened (or created) and replayed per spec §4.5's startup
// recovery: compact first, then rebuild the durable index and ready list
// from the surviving valid records, with total = valid = len(records).
func Open(basedir, queue string, durable bool, log xlog.Logger) (*Pipeline, error) {
	p := &Pipeline{
		queue:      queue,
		durable:    durable,
		xlog:       log,
		ready:      list.New(),
		pendingAck: make(map[string]model.Message),
		durableIdx: make(map[string]durableEntry),
	}
	if !durable {
		return p, nil
	}

	l, err := mlog.Open(basedir, queue)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open log for queue %s: %w", queue, err)
	}
	p.log = l

	entries, err := l.Compact(queue)
	if err != nil {
		return nil, fmt.Errorf("pipeline: recovery compaction for queue %s: %w", queue, err)
	}
	for _, e := range entries {
		p.durableIdx[e.Message.Properties.ID] = durableEntry{offset: e.Offset, length: e.Length}
		m := e.Message
		m.Queue = queue
		m.Offset, m.Length, m.Valid = e.Offset, e.Length, true
		p.ready.PushBack(m)
	}
	p.total = len(entries)
	p.valid = len(entries)
	return p, nil
}

// Close releases the underlying log handle, if any.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.log == nil {
		return nil
	}
	return p.log.Close()
}

// Remove closes and deletes the underlying log file; used when the owning
// queue is destroyed.
func (p *Pipeline) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.log == nil {
		return nil
	}
	return p.log.Remove()
}

// Insert allocates an id if `properties.ID` is empty, resolves the delivery
// mode (properties take precedence over defaultMode), persists the message
// to disk when it resolves to durable, and unconditionally appends it to the
// ready list.
func (p *Pipeline) Insert(properties model.BasicProperties, body []byte, defaultMode model.DeliveryMode) (model.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if properties.ID == "" {
		properties.ID = uuid.NewString()
	}
	mode := properties.DeliveryMode
	if mode == model.DeliveryUnknown {
		mode = defaultMode
	}
	properties.DeliveryMode = mode

	m := model.Message{
		Queue:      p.queue,
		Properties: properties,
		Body:       body,
		Valid:      true,
	}

	if mode == model.DeliveryDurable && p.log != nil {
		offset, length, err := p.log.Append(m)
		if err != nil {
			return model.Message{}, fmt.Errorf("pipeline: append to queue %s: %w", p.queue, err)
		}
		m.Offset, m.Length = offset, length
		p.durableIdx[properties.ID] = durableEntry{offset: offset, length: length}
		p.total++
		p.valid++
	}

	p.ready.PushBack(m)
	return m, nil
}

// Front pops the head of the ready list into the pending-ack map and returns
// it. It returns false if the ready list is empty.
func (p *Pipeline) Front() (model.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	front := p.ready.Front()
	if front == nil {
		return model.Message{}, false
	}
	p.ready.Remove(front)
	m := front.Value.(model.Message)
	p.pendingAck[m.Properties.ID] = m
	return m, true
}

// Ack acknowledges message `id`: if the queue is durable, the on-disk record
// is invalidated and the durable index entry dropped before considering
// compaction. It returns false if `id` is not in the pending-ack map.
func (p *Pipeline) Ack(id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.pendingAck[id]
	if !ok {
		return false, nil
	}

	if m.Properties.DeliveryMode == model.DeliveryDurable && p.log != nil {
		entry, ok := p.durableIdx[id]
		if ok {
			if err := p.log.Invalidate(entry.offset, entry.length); err != nil {
				wrapped := fmt.Errorf("pipeline: invalidate %s/%s: %w", p.queue, id, err)
				if errors.Is(err, mlog.ErrSchemaDrift) {
					// Spec §7: a length mismatch on in-place invalidation means the
					// on-disk record and the in-memory index have diverged in a way
					// that ordinary error handling can't recover from. Abort rather
					// than reporting an ordinary ack failure.
					p.xlog.WithFields(map[string]any{"queue": p.queue, "id": id}).Errorf("fatal: %v", wrapped)
					errors.Fatal(wrapped)
				}
				return false, wrapped
			}
			p.valid--
			delete(p.durableIdx, id)
		}
		if err := p.maybeCompact(); err != nil {
			return false, err
		}
	}

	delete(p.pendingAck, id)
	return true, nil
}

// maybeCompact triggers log compaction when mlog.ShouldCompact signals the
// current total/valid ratio warrants it, relocating the surviving durable
// index entries to their new on-disk offsets. Any valid record recovered by
// compaction but not referenced by the durable index (a benign recovery
// situation per spec §4.5) is re-appended to the ready list and logged.
// Caller must hold p.mu.
func (p *Pipeline) maybeCompact() error {
	if p.log == nil || !mlog.ShouldCompact(p.total, p.valid) {
		return nil
	}

	relocated, err := p.log.Compact(p.queue)
	if err != nil {
		return fmt.Errorf("pipeline: compact queue %s: %w", p.queue, err)
	}

	seen := make(map[string]bool, len(relocated))
	for _, e := range relocated {
		id := e.Message.Properties.ID
		seen[id] = true
		if _, tracked := p.durableIdx[id]; tracked {
			p.durableIdx[id] = durableEntry{offset: e.Offset, length: e.Length}
			continue
		}
		if _, pending := p.pendingAck[id]; pending {
			continue
		}
		m := e.Message
		m.Queue = p.queue
		m.Offset, m.Length, m.Valid = e.Offset, e.Length, true
		p.ready.PushBack(m)
		if p.xlog != nil {
			p.xlog.WithFields(map[string]any{"queue": p.queue, "id": id}).
				Warning("compaction recovered a valid record untracked by the durable index; re-queued")
		}
	}
	p.total = len(relocated)
	p.valid = len(relocated)
	p.compactions++
	return nil
}

// Stats reports the current ready-list length, pending-ack count and the
// total/valid on-disk record counters (used by tests and metrics).
func (p *Pipeline) Stats() (ready, pending, total, valid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready.Len(), len(p.pendingAck), p.total, p.valid
}

// Compactions reports how many times this pipeline's log has been compacted
// since it was opened; sampled by the metrics layer to derive a counter.
func (p *Pipeline) Compactions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.compactions
}
