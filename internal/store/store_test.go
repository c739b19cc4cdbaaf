package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bryk.io/hive/internal/store"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := store.Open(path, xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExchangeMapperRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ex := model.Exchange{Name: "e1", Type: model.ExchangeTopic, Durable: true, Args: model.Args{"k": "v"}}
	require.NoError(t, s.Exchanges().Insert(ex))

	all, err := s.Exchanges().All()
	require.NoError(t, err)
	require.Equal(t, ex, all["e1"])

	require.NoError(t, s.Exchanges().Delete("e1"))
	all, err = s.Exchanges().All()
	require.NoError(t, err)
	require.NotContains(t, all, "e1")
}

func TestQueueMapperRoundTrip(t *testing.T) {
	s := openTestStore(t)
	q := model.Queue{Name: "q1", Durable: true, Exclusive: false, AutoDelete: false, Args: model.Args{}}
	require.NoError(t, s.Queues().Insert(q))

	all, err := s.Queues().All()
	require.NoError(t, err)
	require.Equal(t, q, all["q1"])
}

func TestBindingMapperRoundTrip(t *testing.T) {
	s := openTestStore(t)
	b := model.Binding{Exchange: "e1", Queue: "q1", Key: "news.#"}
	require.NoError(t, s.Bindings().Insert(b))

	all, err := s.Bindings().All()
	require.NoError(t, err)
	require.Equal(t, b, all["e1"]["q1"])

	// re-binding the same pair with a different key replaces it (no duplicate row)
	b.Key = "news.music.#"
	require.NoError(t, s.Bindings().Insert(b))
	all, err = s.Bindings().All()
	require.NoError(t, err)
	require.Len(t, all["e1"], 1)
	require.Equal(t, "news.music.#", all["e1"]["q1"].Key)

	require.NoError(t, s.Bindings().DeleteByExchange("e1"))
	all, err = s.Bindings().All()
	require.NoError(t, err)
	require.NotContains(t, all, "e1")
}
