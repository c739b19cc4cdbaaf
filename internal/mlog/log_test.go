package mlog_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.bryk.io/hive/internal/mlog"
	"go.bryk.io/hive/model"
)

func newMessage(body string) model.Message {
	return model.Message{
		Properties: model.BasicProperties{
			ID:           uuid.NewString(),
			DeliveryMode: model.DeliveryDurable,
			RoutingKey:   "rk",
		},
		Body:  []byte(body),
		Valid: true,
	}
}

func TestAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	l, err := mlog.Open(dir, "q1")
	require.NoError(t, err)
	defer l.Close()

	var offsets, lengths []int64
	for i := 0; i < 5; i++ {
		off, n, err := l.Append(newMessage("payload"))
		require.NoError(t, err)
		offsets = append(offsets, off)
		lengths = append(lengths, n)
	}

	entries, err := l.LoadValid("q1")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, offsets[i], e.Offset)
		require.Equal(t, lengths[i], e.Length)
		require.True(t, e.Message.Valid)
	}
}

func TestInvalidatePreservesLength(t *testing.T) {
	dir := t.TempDir()
	l, err := mlog.Open(dir, "q1")
	require.NoError(t, err)
	defer l.Close()

	off, n, err := l.Append(newMessage("hello world"))
	require.NoError(t, err)
	require.NoError(t, l.Invalidate(off, n))

	entries, err := l.LoadValid("q1")
	require.NoError(t, err)
	require.Len(t, entries, 0)

	total, valid, err := l.Stats("q1")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, 0, valid)
}

func TestCompactionPreservesValidSet(t *testing.T) {
	dir := t.TempDir()
	l, err := mlog.Open(dir, "q1")
	require.NoError(t, err)
	defer l.Close()

	const total = 3000
	var toInvalidate []struct{ off, length int64 }
	for i := 0; i < total; i++ {
		off, n, err := l.Append(newMessage("x"))
		require.NoError(t, err)
		if i < 1800 {
			toInvalidate = append(toInvalidate, struct{ off, length int64 }{off, n})
		}
	}
	for _, e := range toInvalidate {
		require.NoError(t, l.Invalidate(e.off, e.length))
	}

	beforeTotal, beforeValid, err := l.Stats("q1")
	require.NoError(t, err)
	require.Equal(t, total, beforeTotal)
	require.Equal(t, total-len(toInvalidate), beforeValid)
	require.True(t, mlog.ShouldCompact(beforeTotal, beforeValid))

	relocated, err := l.Compact("q1")
	require.NoError(t, err)
	require.Len(t, relocated, beforeValid)

	afterTotal, afterValid, err := l.Stats("q1")
	require.NoError(t, err)
	require.Equal(t, afterValid, afterTotal)
	require.Equal(t, beforeValid, afterTotal)
}
