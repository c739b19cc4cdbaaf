package store

import (
	"fmt"

	"go.bryk.io/hive/model"
)

// BindingMapper persists Binding rows and rebuilds the in-memory binding
// index, keyed by exchange then queue, on startup.
type BindingMapper struct {
	s *Store
}

// Bindings returns the binding mapper bound to this store.
func (s *Store) Bindings() *BindingMapper {
	return &BindingMapper{s: s}
}

// Insert persists `b`. A binding is uniquely identified by the
// (exchange, queue) pair; re-inserting the same pair replaces its key.
func (m *BindingMapper) Insert(b model.Binding) error {
	_, err := m.s.db.Exec(
		`INSERT OR REPLACE INTO binding(exchange_name, queue_name, binding_key) VALUES (?, ?, ?)`,
		b.Exchange, b.Queue, b.Key,
	)
	if err != nil {
		m.s.log.WithFields(map[string]any{"exchange": b.Exchange, "queue": b.Queue}).
			Errorf("failed to persist binding: %v", err)
		return fmt.Errorf("store: insert binding %s/%s: %w", b.Exchange, b.Queue, err)
	}
	return nil
}

// Delete removes the single binding row for the (exchange, queue) pair.
func (m *BindingMapper) Delete(exchange, queue string) error {
	_, err := m.s.db.Exec(
		`DELETE FROM binding WHERE exchange_name = ? AND queue_name = ?`, exchange, queue,
	)
	if err != nil {
		m.s.log.Errorf("failed to delete binding %s/%s: %v", exchange, queue, err)
		return fmt.Errorf("store: delete binding %s/%s: %w", exchange, queue, err)
	}
	return nil
}

// DeleteByExchange removes every binding referencing `exchange`.
func (m *BindingMapper) DeleteByExchange(exchange string) error {
	_, err := m.s.db.Exec(`DELETE FROM binding WHERE exchange_name = ?`, exchange)
	if err != nil {
		return fmt.Errorf("store: delete bindings for exchange %s: %w", exchange, err)
	}
	return nil
}

// DeleteByQueue removes every binding referencing `queue`.
func (m *BindingMapper) DeleteByQueue(queue string) error {
	_, err := m.s.db.Exec(`DELETE FROM binding WHERE queue_name = ?`, queue)
	if err != nil {
		return fmt.Errorf("store: delete bindings for queue %s: %w", queue, err)
	}
	return nil
}

// All performs a full scan, rebuilding an in-memory index keyed by exchange
// then queue.
func (m *BindingMapper) All() (map[string]map[string]model.Binding, error) {
	rows, err := m.s.db.Query(`SELECT exchange_name, queue_name, binding_key FROM binding`)
	if err != nil {
		return nil, fmt.Errorf("store: scan bindings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]model.Binding)
	for rows.Next() {
		var b model.Binding
		if err := rows.Scan(&b.Exchange, &b.Queue, &b.Key); err != nil {
			return nil, fmt.Errorf("store: scan binding row: %w", err)
		}
		if out[b.Exchange] == nil {
			out[b.Exchange] = make(map[string]model.Binding)
		}
		out[b.Exchange][b.Queue] = b
	}
	return out, rows.Err()
}
