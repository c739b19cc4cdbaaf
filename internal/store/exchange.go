package store

import (
	"fmt"

	"go.bryk.io/hive/model"
)

// ExchangeMapper persists Exchange rows and rebuilds the in-memory exchange
// index on startup, per spec §4.1.
type ExchangeMapper struct {
	s *Store
}

// Exchanges returns the exchange mapper bound to this store.
func (s *Store) Exchanges() *ExchangeMapper {
	return &ExchangeMapper{s: s}
}

// Insert persists `e`. A storage failure is logged and returned; the caller
// must not apply the corresponding in-memory update.
func (m *ExchangeMapper) Insert(e model.Exchange) error {
	_, err := m.s.db.Exec(
		`INSERT OR REPLACE INTO exchange(name, type, durable, auto_delete, args) VALUES (?, ?, ?, ?, ?)`,
		e.Name, int(e.Type), boolToInt(e.Durable), boolToInt(e.AutoDelete), model.EncodeArgs(e.Args),
	)
	if err != nil {
		m.s.log.WithField("exchange", e.Name).Errorf("failed to persist exchange: %v", err)
		return fmt.Errorf("store: insert exchange %s: %w", e.Name, err)
	}
	return nil
}

// Delete removes the exchange row named `name`.
func (m *ExchangeMapper) Delete(name string) error {
	_, err := m.s.db.Exec(`DELETE FROM exchange WHERE name = ?`, name)
	if err != nil {
		m.s.log.WithField("exchange", name).Errorf("failed to delete exchange: %v", err)
		return fmt.Errorf("store: delete exchange %s: %w", name, err)
	}
	return nil
}

// All performs a full scan, rebuilding an in-memory index keyed by name.
func (m *ExchangeMapper) All() (map[string]model.Exchange, error) {
	rows, err := m.s.db.Query(`SELECT name, type, durable, auto_delete, args FROM exchange`)
	if err != nil {
		return nil, fmt.Errorf("store: scan exchanges: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Exchange)
	for rows.Next() {
		var (
			name             string
			kind             int
			durable, autoDel int
			args             string
		)
		if err := rows.Scan(&name, &kind, &durable, &autoDel, &args); err != nil {
			return nil, fmt.Errorf("store: scan exchange row: %w", err)
		}
		out[name] = model.Exchange{
			Name:       name,
			Type:       model.ExchangeType(kind),
			Durable:    durable != 0,
			AutoDelete: autoDel != 0,
			Args:       model.DecodeArgs(args),
		}
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
