package store

import (
	"fmt"

	"go.bryk.io/hive/model"
)

// QueueMapper persists Queue rows and rebuilds the in-memory queue index on
// startup, per spec §4.1.
type QueueMapper struct {
	s *Store
}

// Queues returns the queue mapper bound to this store.
func (s *Store) Queues() *QueueMapper {
	return &QueueMapper{s: s}
}

// Insert persists `q`.
func (m *QueueMapper) Insert(q model.Queue) error {
	_, err := m.s.db.Exec(
		`INSERT OR REPLACE INTO queue(name, durable, exclusive, auto_delete, args) VALUES (?, ?, ?, ?, ?)`,
		q.Name, boolToInt(q.Durable), boolToInt(q.Exclusive), boolToInt(q.AutoDelete), model.EncodeArgs(q.Args),
	)
	if err != nil {
		m.s.log.WithField("queue", q.Name).Errorf("failed to persist queue: %v", err)
		return fmt.Errorf("store: insert queue %s: %w", q.Name, err)
	}
	return nil
}

// Delete removes the queue row named `name`.
func (m *QueueMapper) Delete(name string) error {
	_, err := m.s.db.Exec(`DELETE FROM queue WHERE name = ?`, name)
	if err != nil {
		m.s.log.WithField("queue", name).Errorf("failed to delete queue: %v", err)
		return fmt.Errorf("store: delete queue %s: %w", name, err)
	}
	return nil
}

// All performs a full scan, rebuilding an in-memory index keyed by name.
func (m *QueueMapper) All() (map[string]model.Queue, error) {
	rows, err := m.s.db.Query(`SELECT name, durable, exclusive, auto_delete, args FROM queue`)
	if err != nil {
		return nil, fmt.Errorf("store: scan queues: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Queue)
	for rows.Next() {
		var (
			name                        string
			durable, exclusive, autoDel int
			args                        string
		)
		if err := rows.Scan(&name, &durable, &exclusive, &autoDel, &args); err != nil {
			return nil, fmt.Errorf("store: scan queue row: %w", err)
		}
		out[name] = model.Queue{
			Name:       name,
			Durable:    durable != 0,
			Exclusive:  exclusive != 0,
			AutoDelete: autoDel != 0,
			Args:       model.DecodeArgs(args),
		}
	}
	return out, rows.Err()
}
