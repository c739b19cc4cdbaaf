package consumer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/consumer"
	xlog "go.bryk.io/hive/log"
)

func TestSetCreateRejectsDuplicateTag(t *testing.T) {
	s := consumer.NewSet()
	require.True(t, s.Create(consumer.Record{Tag: "c1", Queue: "q"}))
	require.False(t, s.Create(consumer.Record{Tag: "c1", Queue: "q"}))
}

func TestSetChooseRoundRobin(t *testing.T) {
	s := consumer.NewSet()
	require.True(t, s.Create(consumer.Record{Tag: "a"}))
	require.True(t, s.Create(consumer.Record{Tag: "b"}))
	require.True(t, s.Create(consumer.Record{Tag: "c"}))

	order := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		r, ok := s.Choose()
		require.True(t, ok)
		order = append(order, r.Tag)
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
}

func TestSetChooseEmpty(t *testing.T) {
	s := consumer.NewSet()
	_, ok := s.Choose()
	require.False(t, ok)
}

func TestSetRemoveShiftsSequenceWithoutReset(t *testing.T) {
	s := consumer.NewSet()
	require.True(t, s.Create(consumer.Record{Tag: "a"}))
	require.True(t, s.Create(consumer.Record{Tag: "b"}))

	r, ok := s.Choose()
	require.True(t, ok)
	require.Equal(t, "a", r.Tag)

	require.True(t, s.Remove("a"))
	r, ok = s.Choose() // counter is now 1; only "b" remains at index 1%1=0
	require.True(t, ok)
	require.Equal(t, "b", r.Tag)
}

func TestSetClearResetsCounter(t *testing.T) {
	s := consumer.NewSet()
	require.True(t, s.Create(consumer.Record{Tag: "a"}))
	_, _ = s.Choose()
	s.Clear()
	require.True(t, s.Empty())

	require.True(t, s.Create(consumer.Record{Tag: "a"}))
	r, ok := s.Choose()
	require.True(t, ok)
	require.Equal(t, "a", r.Tag)
}

func TestManagerDelegatesToRegisteredQueue(t *testing.T) {
	m := consumer.NewManager(xlog.Discard())
	m.InitQueueConsumer("orders")
	m.InitQueueConsumer("orders") // idempotent

	require.True(t, m.Create("orders", consumer.Record{Tag: "c1"}))
	require.True(t, m.Exists("orders", "c1"))
	require.False(t, m.Empty("orders"))

	r, ok := m.Choose("orders")
	require.True(t, ok)
	require.Equal(t, "c1", r.Tag)

	require.True(t, m.Remove("orders", "c1"))
	require.True(t, m.Empty("orders"))
}

func TestManagerMissingQueueIsNeutralFailure(t *testing.T) {
	m := consumer.NewManager(xlog.Discard())
	require.False(t, m.Create("ghost", consumer.Record{Tag: "c1"}))
	require.False(t, m.Remove("ghost", "c1"))
	_, ok := m.Choose("ghost")
	require.False(t, ok)
	require.False(t, m.Exists("ghost", "c1"))
	require.True(t, m.Empty("ghost"))
}

func TestManagerDestroyQueueConsumer(t *testing.T) {
	m := consumer.NewManager(xlog.Discard())
	m.InitQueueConsumer("orders")
	require.True(t, m.Create("orders", consumer.Record{Tag: "c1"}))

	m.DestroyQueueConsumer("orders")
	require.False(t, m.Create("orders", consumer.Record{Tag: "c2"}))
}
