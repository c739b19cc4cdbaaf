package pipeline_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/pipeline"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
)

func openTestPipeline(t *testing.T, durable bool) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Open(t.TempDir(), "orders", durable, xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestInsertFrontAckUndurable(t *testing.T) {
	p := openTestPipeline(t, false)

	m, err := p.Insert(model.BasicProperties{RoutingKey: "news.sport"}, []byte("body"), model.DeliveryUndurable)
	require.NoError(t, err)
	require.NotEmpty(t, m.Properties.ID)

	ready, pending, total, valid := p.Stats()
	require.Equal(t, 1, ready)
	require.Equal(t, 0, pending)
	require.Equal(t, 0, total)
	require.Equal(t, 0, valid)

	front, ok := p.Front()
	require.True(t, ok)
	require.Equal(t, m.Properties.ID, front.Properties.ID)

	acked, err := p.Ack(front.Properties.ID)
	require.NoError(t, err)
	require.True(t, acked)

	ready, pending, _, _ = p.Stats()
	require.Equal(t, 0, ready)
	require.Equal(t, 0, pending)
}

func TestFrontEmptyReturnsFalse(t *testing.T) {
	p := openTestPipeline(t, false)
	_, ok := p.Front()
	require.False(t, ok)
}

func TestAckUnknownIDReturnsFalse(t *testing.T) {
	p := openTestPipeline(t, false)
	ok, err := p.Ack("does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDurableInsertPersistsAndAckInvalidates(t *testing.T) {
	p := openTestPipeline(t, true)

	m, err := p.Insert(model.BasicProperties{RoutingKey: "news.sport"}, []byte("body"), model.DeliveryDurable)
	require.NoError(t, err)

	_, _, total, valid := p.Stats()
	require.Equal(t, 1, total)
	require.Equal(t, 1, valid)

	front, ok := p.Front()
	require.True(t, ok)
	require.Equal(t, m.Properties.ID, front.Properties.ID)

	acked, err := p.Ack(front.Properties.ID)
	require.NoError(t, err)
	require.True(t, acked)

	_, _, total, valid = p.Stats()
	require.Equal(t, 1, total)
	require.Equal(t, 0, valid)
}

func TestRecoveryRebuildsReadyListFromDurableLog(t *testing.T) {
	dir := t.TempDir()
	p, err := pipeline.Open(dir, "orders", true, xlog.Discard())
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := p.Insert(model.BasicProperties{RoutingKey: "news.sport"}, []byte(fmt.Sprintf("msg-%d", i)), model.DeliveryDurable)
		require.NoError(t, err)
		ids = append(ids, m.Properties.ID)
	}
	// deliver and ack the first two; leave the rest pending.
	for i := 0; i < 2; i++ {
		front, ok := p.Front()
		require.True(t, ok)
		acked, err := p.Ack(front.Properties.ID)
		require.NoError(t, err)
		require.True(t, acked)
	}
	require.NoError(t, p.Close())

	recovered, err := pipeline.Open(dir, "orders", true, xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = recovered.Close() })

	ready, pending, total, valid := recovered.Stats()
	require.Equal(t, 3, ready)
	require.Equal(t, 0, pending)
	require.Equal(t, 3, total)
	require.Equal(t, 3, valid)

	for i := 0; i < 3; i++ {
		front, ok := recovered.Front()
		require.True(t, ok)
		require.Contains(t, ids[2:], front.Properties.ID)
	}
}

func TestCompactionTriggersOnAckThreshold(t *testing.T) {
	dir := t.TempDir()
	p, err := pipeline.Open(dir, "orders", true, xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	const n = 3000
	for i := 0; i < n; i++ {
		_, err := p.Insert(model.BasicProperties{RoutingKey: "news"}, []byte("x"), model.DeliveryDurable)
		require.NoError(t, err)
	}

	// front and ack 1800 of the 3000 messages; the in-flight compaction
	// trigger fires partway through, once valid/total crosses below 0.5.
	for i := 0; i < 1800; i++ {
		front, ok := p.Front()
		require.True(t, ok)
		acked, err := p.Ack(front.Properties.ID)
		require.NoError(t, err)
		require.True(t, acked)
	}

	// total=1499, valid=1200: compaction (total > 2000 and valid/total < 0.5)
	// fires once, on the 1501st ack, when valid drops to 1499, and resets
	// total = valid = 1499. From then on total is at most 2000, so no further
	// compaction runs; the remaining 299 acks bring valid down to 1200 while
	// total stays at 1499.
	_, _, total, valid := p.Stats()
	require.Equal(t, 1499, total)
	require.Equal(t, 1200, valid)
}
