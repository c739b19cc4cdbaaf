// Package vhost implements the virtual host façade described in spec §4.3:
// the single entry point for exchange, queue, binding and message
// operations, coordinating the metadata store, the entity indexes, the
// per-queue message pipelines and the consumer manager. It is grounded on
// the original implementation's VirtualHost (server/broker.hpp), generalized
// from its single global-lock design to one mutex per manager, with no lock
// held across a callback into user code, per spec §5.
package vhost

import (
	"fmt"
	"sync"

	"go.bryk.io/hive/internal/consumer"
	"go.bryk.io/hive/internal/metrics"
	"go.bryk.io/hive/internal/pipeline"
	"go.bryk.io/hive/internal/router"
	"go.bryk.io/hive/internal/store"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
)

// VirtualHost is the authoritative in-memory model of exchanges, queues,
// bindings and messages. Every higher layer mutates broker state only
// through it.
type VirtualHost struct {
	store *store.Store
	log   xlog.Logger

	basedir string
	pool    *consumer.Manager

	exchangesMu sync.Mutex
	exchanges   map[string]model.Exchange

	queuesMu sync.Mutex
	queues   map[string]model.Queue

	// bindingsMu guards both bindings and the exchangeBindings index, which
	// are always updated together (§[FULL] 4 "exchangeBindings lookup").
	bindingsMu       sync.Mutex
	bindings         map[string]map[string]model.Binding // exchange -> queue -> binding
	exchangeBindings map[string]map[string]string        // exchange -> queue -> key

	pipelinesMu sync.Mutex
	pipelines   map[string]*pipeline.Pipeline

	metrics           *metrics.Registry
	compactionsSeenMu sync.Mutex
	compactionsSeen   map[string]int
}

// Open constructs a VirtualHost backed by the metadata store at `storePath`
// and per-queue message logs under `basedir`, recovering every durable
// queue's pipeline from its on-disk log.
func Open(storePath, basedir string, log xlog.Logger) (*VirtualHost, error) {
	s, err := store.Open(storePath, log)
	if err != nil {
		return nil, fmt.Errorf("vhost: open metadata store: %w", err)
	}

	vh := &VirtualHost{
		store:            s,
		log:              log,
		basedir:          basedir,
		pool:             consumer.NewManager(log),
		bindings:         make(map[string]map[string]model.Binding),
		exchangeBindings: make(map[string]map[string]string),
		pipelines:        make(map[string]*pipeline.Pipeline),
		compactionsSeen:  make(map[string]int),
	}

	vh.exchanges, err = s.Exchanges().All()
	if err != nil {
		return nil, fmt.Errorf("vhost: recover exchanges: %w", err)
	}
	vh.queues, err = s.Queues().All()
	if err != nil {
		return nil, fmt.Errorf("vhost: recover queues: %w", err)
	}
	bindings, err := s.Bindings().All()
	if err != nil {
		return nil, fmt.Errorf("vhost: recover bindings: %w", err)
	}
	vh.bindings = bindings
	for ex, byQueue := range bindings {
		vh.exchangeBindings[ex] = make(map[string]string, len(byQueue))
		for q, b := range byQueue {
			vh.exchangeBindings[ex][q] = b.Key
		}
	}

	for name, q := range vh.queues {
		p, err := pipeline.Open(basedir, name, q.Durable, log)
		if err != nil {
			return nil, fmt.Errorf("vhost: recover pipeline for queue %s: %w", name, err)
		}
		vh.pipelines[name] = p
		vh.pool.InitQueueConsumer(name)
	}
	return vh, nil
}

// Close releases the metadata store and every open pipeline.
func (vh *VirtualHost) Close() error {
	vh.pipelinesMu.Lock()
	for _, p := range vh.pipelines {
		_ = p.Close()
	}
	vh.pipelinesMu.Unlock()
	return vh.store.Close()
}

// ConsumerManager exposes the consumer manager to the session layer, which
// drives subscribe/cancel/choose outside the virtual host's own methods.
func (vh *VirtualHost) ConsumerManager() *consumer.Manager {
	return vh.pool
}

// SetMetrics attaches a metrics registry; publish/ack/delivery counters and
// the queue-depth/consumer-count gauges are populated only once one is set.
// Left unset, every metrics call site below is a cheap nil check.
func (vh *VirtualHost) SetMetrics(m *metrics.Registry) {
	vh.metrics = m
}

// Metrics exposes the attached registry, or nil if none was set; used by the
// session layer to record per-exchange publish counts it alone observes.
func (vh *VirtualHost) Metrics() *metrics.Registry {
	return vh.metrics
}

// SampleMetrics refreshes the queue-depth, pending-ack and consumer-count
// gauges, and advances the compaction counters, for every known queue. It is
// a no-op if no registry was attached. Intended to be called periodically
// (e.g. on a ticker in cmd/hive-broker) rather than on every operation, since
// gauges reflect point-in-time state rather than deltas.
func (vh *VirtualHost) SampleMetrics() {
	if vh.metrics == nil {
		return
	}
	vh.pipelinesMu.Lock()
	pipelines := make(map[string]*pipeline.Pipeline, len(vh.pipelines))
	for name, p := range vh.pipelines {
		pipelines[name] = p
	}
	vh.pipelinesMu.Unlock()

	vh.compactionsSeenMu.Lock()
	defer vh.compactionsSeenMu.Unlock()
	for name, p := range pipelines {
		ready, pending, _, _ := p.Stats()
		vh.metrics.QueueReady.WithLabelValues(name).Set(float64(ready))
		vh.metrics.QueuePending.WithLabelValues(name).Set(float64(pending))
		vh.metrics.ConsumerCount.WithLabelValues(name).Set(float64(vh.pool.Count(name)))

		current := p.Compactions()
		if delta := current - vh.compactionsSeen[name]; delta > 0 {
			vh.metrics.CompactionRuns.WithLabelValues(name).Add(float64(delta))
		}
		vh.compactionsSeen[name] = current
	}
}

// DeclareExchange performs an idempotent insert. A durable exchange is
// persisted first; the in-memory index is updated only on success.
func (vh *VirtualHost) DeclareExchange(name string, kind model.ExchangeType, durable, autoDelete bool, args model.Args) bool {
	e := model.Exchange{Name: name, Type: kind, Durable: durable, AutoDelete: autoDelete, Args: args}
	if durable {
		if err := vh.store.Exchanges().Insert(e); err != nil {
			return false
		}
	}
	vh.exchangesMu.Lock()
	vh.exchanges[name] = e
	vh.exchangesMu.Unlock()
	return true
}

// DeleteExchange removes the exchange and every binding referencing it,
// bindings first, per spec §4.3's deletion ordering. Best-effort: store
// failures are logged but do not prevent the in-memory removal.
func (vh *VirtualHost) DeleteExchange(name string) {
	vh.bindingsMu.Lock()
	delete(vh.bindings, name)
	delete(vh.exchangeBindings, name)
	vh.bindingsMu.Unlock()
	if err := vh.store.Bindings().DeleteByExchange(name); err != nil {
		vh.log.WithField("exchange", name).Warning("failed to delete persisted bindings for exchange")
	}

	vh.exchangesMu.Lock()
	delete(vh.exchanges, name)
	vh.exchangesMu.Unlock()
	if err := vh.store.Exchanges().Delete(name); err != nil {
		vh.log.WithField("exchange", name).Warning("failed to delete persisted exchange")
	}
}

// DeclareQueue performs an idempotent insert and, on first declaration,
// initializes the queue's message pipeline and consumer set.
func (vh *VirtualHost) DeclareQueue(name string, durable, exclusive, autoDelete bool, args model.Args) bool {
	q := model.Queue{Name: name, Durable: durable, Exclusive: exclusive, AutoDelete: autoDelete, Args: args}
	if durable {
		if err := vh.store.Queues().Insert(q); err != nil {
			return false
		}
	}

	vh.queuesMu.Lock()
	_, existed := vh.queues[name]
	vh.queues[name] = q
	vh.queuesMu.Unlock()
	if existed {
		return true
	}

	p, err := pipeline.Open(vh.basedir, name, durable, vh.log)
	if err != nil {
		vh.log.WithField("queue", name).Errorf("failed to open pipeline: %v", err)
		vh.queuesMu.Lock()
		delete(vh.queues, name)
		vh.queuesMu.Unlock()
		return false
	}
	vh.pipelinesMu.Lock()
	vh.pipelines[name] = p
	vh.pipelinesMu.Unlock()
	vh.pool.InitQueueConsumer(name)
	return true
}

// DeleteQueue destroys the queue's message pipeline, removes every binding
// referencing it and removes the entity, best-effort.
func (vh *VirtualHost) DeleteQueue(name string) {
	vh.pool.DestroyQueueConsumer(name)

	vh.pipelinesMu.Lock()
	p, ok := vh.pipelines[name]
	delete(vh.pipelines, name)
	vh.pipelinesMu.Unlock()
	if ok {
		if err := p.Remove(); err != nil {
			vh.log.WithField("queue", name).Warning("failed to remove message log")
		}
	}

	vh.bindingsMu.Lock()
	for ex := range vh.bindings {
		delete(vh.bindings[ex], name)
		delete(vh.exchangeBindings[ex], name)
	}
	vh.bindingsMu.Unlock()
	if err := vh.store.Bindings().DeleteByQueue(name); err != nil {
		vh.log.WithField("queue", name).Warning("failed to delete persisted bindings for queue")
	}

	vh.queuesMu.Lock()
	delete(vh.queues, name)
	vh.queuesMu.Unlock()
	if err := vh.store.Queues().Delete(name); err != nil {
		vh.log.WithField("queue", name).Warning("failed to delete persisted queue")
	}
}

// Bind validates the binding key, then inserts the binding if absent.
// Re-binding an existing (exchange, queue) pair with the same key is a
// no-op success; with a different key, it replaces the stored key. The
// binding is durable iff both endpoints are durable.
func (vh *VirtualHost) Bind(exchange, queue, key string) bool {
	if !router.IsLegalBindingKey(key) {
		return false
	}

	vh.exchangesMu.Lock()
	ex, exOK := vh.exchanges[exchange]
	vh.exchangesMu.Unlock()
	vh.queuesMu.Lock()
	q, qOK := vh.queues[queue]
	vh.queuesMu.Unlock()
	if !exOK || !qOK {
		return false
	}

	b := model.Binding{Exchange: exchange, Queue: queue, Key: key}
	if b.Durable(ex.Durable, q.Durable) {
		if err := vh.store.Bindings().Insert(b); err != nil {
			return false
		}
	}

	vh.bindingsMu.Lock()
	if vh.bindings[exchange] == nil {
		vh.bindings[exchange] = make(map[string]model.Binding)
		vh.exchangeBindings[exchange] = make(map[string]string)
	}
	vh.bindings[exchange][queue] = b
	vh.exchangeBindings[exchange][queue] = key
	vh.bindingsMu.Unlock()
	return true
}

// Unbind removes the single binding for the (exchange, queue) pair; a no-op
// if absent.
func (vh *VirtualHost) Unbind(exchange, queue string) {
	vh.bindingsMu.Lock()
	if vh.bindings[exchange] != nil {
		delete(vh.bindings[exchange], queue)
		delete(vh.exchangeBindings[exchange], queue)
	}
	vh.bindingsMu.Unlock()
	if err := vh.store.Bindings().Delete(exchange, queue); err != nil {
		vh.log.WithFields(map[string]any{"exchange": exchange, "queue": queue}).
			Warning("failed to delete persisted binding")
	}
}

// ExchangeBindings returns the queue -> binding-key map for `exchange`; the
// supplemented lookup used internally by publish dispatch and exposed for
// tests/tooling.
func (vh *VirtualHost) ExchangeBindings(exchange string) map[string]string {
	vh.bindingsMu.Lock()
	defer vh.bindingsMu.Unlock()
	out := make(map[string]string, len(vh.exchangeBindings[exchange]))
	for q, k := range vh.exchangeBindings[exchange] {
		out[q] = k
	}
	return out
}

// Exchange looks up an exchange by name.
func (vh *VirtualHost) Exchange(name string) (model.Exchange, bool) {
	vh.exchangesMu.Lock()
	defer vh.exchangesMu.Unlock()
	e, ok := vh.exchanges[name]
	return e, ok
}

// Queue looks up a queue by name.
func (vh *VirtualHost) Queue(name string) (model.Queue, bool) {
	vh.queuesMu.Lock()
	defer vh.queuesMu.Unlock()
	q, ok := vh.queues[name]
	return q, ok
}

// BasicPublish materializes a message (assigning a UUID if properties.ID is
// empty) and appends it to the named queue's pipeline; it is persisted iff
// the queue is durable and properties.DeliveryMode resolves to DURABLE. It
// fails if the queue is missing or the routing key is malformed — this
// module takes the strict reading of the routing-key-validation open
// question and rejects ill-formed keys at publish time.
func (vh *VirtualHost) BasicPublish(queue string, properties model.BasicProperties, body []byte) bool {
	if !router.IsLegalRoutingKey(properties.RoutingKey) {
		return false
	}

	vh.queuesMu.Lock()
	_, ok := vh.queues[queue]
	vh.queuesMu.Unlock()
	if !ok {
		return false
	}

	vh.pipelinesMu.Lock()
	p := vh.pipelines[queue]
	vh.pipelinesMu.Unlock()
	if p == nil {
		return false
	}

	// Messages default to undurable when the publisher omits a delivery
	// mode; a non-durable queue's pipeline has no log, so a DURABLE mode is
	// silently downgraded to in-memory-only regardless, per spec §4.3.
	if _, err := p.Insert(properties, body, model.DeliveryUndurable); err != nil {
		vh.log.WithField("queue", queue).Errorf("failed to publish message: %v", err)
		return false
	}
	return true
}

// BasicConsume pops and returns the head message of `queue`, moving it to
// the pending-ack map. It returns false if the queue is missing or empty.
func (vh *VirtualHost) BasicConsume(queue string) (model.Message, bool) {
	vh.pipelinesMu.Lock()
	p := vh.pipelines[queue]
	vh.pipelinesMu.Unlock()
	if p == nil {
		return model.Message{}, false
	}
	m, ok := p.Front()
	if ok && vh.metrics != nil {
		vh.metrics.DeliveryTotal.WithLabelValues(queue).Inc()
	}
	return m, ok
}

// BasicAck removes `msgID` from the pending-ack map of `queue`, invalidating
// its durable copy if any and considering compaction. A no-op if absent.
func (vh *VirtualHost) BasicAck(queue, msgID string) bool {
	vh.pipelinesMu.Lock()
	p := vh.pipelines[queue]
	vh.pipelinesMu.Unlock()
	if p == nil {
		return false
	}
	// A schema-drift invalidation error (spec §7) never reaches here: Pipeline.Ack
	// routes it to errors.Fatal and aborts the process before returning. Any error
	// surfacing at this layer is an ordinary I/O failure on the durable log.
	ok, err := p.Ack(msgID)
	if err != nil {
		vh.log.WithFields(map[string]any{"queue": queue, "id": msgID}).Errorf("failed to ack message: %v", err)
		return false
	}
	if ok && vh.metrics != nil {
		vh.metrics.AckTotal.WithLabelValues(queue).Inc()
	}
	return ok
}
