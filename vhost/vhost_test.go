package vhost_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
	"go.bryk.io/hive/vhost"
)

func openTestVhost(t *testing.T) *vhost.VirtualHost {
	t.Helper()
	dir := t.TempDir()
	vh, err := vhost.Open(filepath.Join(dir, "meta.db"), filepath.Join(dir, "queues"), xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vh.Close() })
	return vh
}

func TestDeclareExchangeAndQueue(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareExchange("news", model.ExchangeTopic, true, false, nil))
	require.True(t, vh.DeclareQueue("sports", true, false, false, nil))

	ex, ok := vh.Exchange("news")
	require.True(t, ok)
	require.Equal(t, model.ExchangeTopic, ex.Type)

	q, ok := vh.Queue("sports")
	require.True(t, ok)
	require.True(t, q.Durable)
}

func TestBindRejectsMalformedKeyAndMissingEndpoints(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareExchange("news", model.ExchangeTopic, false, false, nil))
	require.True(t, vh.DeclareQueue("sports", false, false, false, nil))

	require.False(t, vh.Bind("news", "sports", "news.#.*"))  // forbidden adjacent wildcards
	require.False(t, vh.Bind("ghost", "sports", "news.*"))   // missing exchange
	require.False(t, vh.Bind("news", "ghost", "news.*"))     // missing queue
	require.True(t, vh.Bind("news", "sports", "news.sport.*"))
}

func TestBindRebindSameKeyIsNoOp(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareExchange("news", model.ExchangeTopic, false, false, nil))
	require.True(t, vh.DeclareQueue("sports", false, false, false, nil))
	require.True(t, vh.Bind("news", "sports", "news.sport.#"))
	require.True(t, vh.Bind("news", "sports", "news.sport.#"))

	bindings := vh.ExchangeBindings("news")
	require.Len(t, bindings, 1)
	require.Equal(t, "news.sport.#", bindings["sports"])
}

func TestPublishConsumeAckUndurable(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareQueue("sports", false, false, false, nil))

	require.True(t, vh.BasicPublish("sports", model.BasicProperties{RoutingKey: "news.sport"}, []byte("hello")))
	require.False(t, vh.BasicPublish("ghost", model.BasicProperties{RoutingKey: "news.sport"}, []byte("x")))
	require.False(t, vh.BasicPublish("sports", model.BasicProperties{RoutingKey: "bad key!"}, []byte("x")))

	m, ok := vh.BasicConsume("sports")
	require.True(t, ok)
	require.Equal(t, "hello", string(m.Body))

	_, ok = vh.BasicConsume("sports")
	require.False(t, ok)

	require.True(t, vh.BasicAck("sports", m.Properties.ID))
	require.False(t, vh.BasicAck("sports", "unknown-id"))
}

func TestDeleteExchangeRemovesBindings(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareExchange("news", model.ExchangeTopic, false, false, nil))
	require.True(t, vh.DeclareQueue("sports", false, false, false, nil))
	require.True(t, vh.Bind("news", "sports", "news.#"))

	vh.DeleteExchange("news")
	_, ok := vh.Exchange("news")
	require.False(t, ok)
	require.Empty(t, vh.ExchangeBindings("news"))
}

func TestDeleteQueueDestroysPipelineAndBindings(t *testing.T) {
	vh := openTestVhost(t)
	require.True(t, vh.DeclareExchange("news", model.ExchangeTopic, false, false, nil))
	require.True(t, vh.DeclareQueue("sports", false, false, false, nil))
	require.True(t, vh.Bind("news", "sports", "news.#"))

	vh.DeleteQueue("sports")
	_, ok := vh.Queue("sports")
	require.False(t, ok)
	require.Empty(t, vh.ExchangeBindings("news"))
	require.False(t, vh.BasicPublish("sports", model.BasicProperties{RoutingKey: "news.sport"}, []byte("x")))
}

func TestDurableQueueRecoversPipelineAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "meta.db")
	basedir := filepath.Join(dir, "queues")

	vh, err := vhost.Open(storePath, basedir, xlog.Discard())
	require.NoError(t, err)
	require.True(t, vh.DeclareQueue("sports", true, false, false, nil))
	require.True(t, vh.BasicPublish("sports", model.BasicProperties{RoutingKey: "news.sport", DeliveryMode: model.DeliveryDurable}, []byte("hello")))
	require.NoError(t, vh.Close())

	reopened, err := vhost.Open(storePath, basedir, xlog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	q, ok := reopened.Queue("sports")
	require.True(t, ok)
	require.True(t, q.Durable)

	m, ok := reopened.BasicConsume("sports")
	require.True(t, ok)
	require.Equal(t, "hello", string(m.Body))
}
