package session_test

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/pool"
	"go.bryk.io/hive/internal/wire"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/model"
	"go.bryk.io/hive/session"
	"go.bryk.io/hive/vhost"
)

func startTestServer(t *testing.T) (net.Addr, func()) {
	t.Helper()
	dir := t.TempDir()
	vh, err := vhost.Open(filepath.Join(dir, "meta.db"), filepath.Join(dir, "queues"), xlog.Discard())
	require.NoError(t, err)

	workers := pool.New(4, 64)
	srv := session.NewServer(vh, workers, xlog.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.Serve(ln) }()

	cleanup := func() {
		_ = srv.Close()
		workers.Stop()
		_ = vh.Close()
	}
	return ln.Addr(), cleanup
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, kind wire.Kind, payload []byte) (wire.Kind, []byte) {
	t.Helper()
	require.NoError(t, wire.WriteFrame(conn, kind, payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	k, p, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	return k, p
}

func TestDeclareBindPublishConsumeAckOverWire(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()
	conn := dial(t, addr)

	open := wire.OpenChannel{RID: "r0", CID: "ch1"}
	_, p := roundTrip(t, conn, wire.KindOpenChannel, open.Encode())
	resp, err := wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK)

	declEx := wire.DeclareExchange{RID: "r1", CID: "ch1", Name: "news", Type: model.ExchangeTopic}
	_, p = roundTrip(t, conn, wire.KindDeclareExchange, declEx.Encode())
	resp, err = wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK)

	declQ := wire.DeclareQueue{RID: "r2", CID: "ch1", Name: "sports"}
	_, p = roundTrip(t, conn, wire.KindDeclareQueue, declQ.Encode())
	resp, err = wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK)

	bind := wire.QueueBind{RID: "r3", CID: "ch1", Exchange: "news", Queue: "sports", BindingKey: "news.sport.*"}
	_, p = roundTrip(t, conn, wire.KindQueueBind, bind.Encode())
	resp, err = wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK)

	consume := wire.BasicConsume{RID: "r4", CID: "ch1", Queue: "sports", ConsumerTag: "tag1", AutoAck: true}
	_, p = roundTrip(t, conn, wire.KindBasicConsume, consume.Encode())
	resp, err = wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK)

	pub := wire.BasicPublish{
		RID: "r5", CID: "ch1", Exchange: "news",
		Properties: model.BasicProperties{RoutingKey: "news.sport.pop"},
		Body:       []byte("hello"),
	}
	require.NoError(t, wire.WriteFrame(conn, wire.KindBasicPublish, pub.Encode()))

	// The publish ack and the asynchronous consume-push may interleave; read
	// both frames and sort by kind.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var sawAck, sawPush bool
	for i := 0; i < 2; i++ {
		k, payload, err := wire.ReadFrame(conn)
		require.NoError(t, err)
		switch k {
		case wire.KindBasicResponse:
			r, err := wire.DecodeBasicResponse(payload)
			require.NoError(t, err)
			require.True(t, r.OK)
			sawAck = true
		case wire.KindBasicConsumeResponse:
			push, err := wire.DecodeBasicConsumeResponse(payload)
			require.NoError(t, err)
			require.Equal(t, "hello", string(push.Body))
			require.Equal(t, "tag1", push.ConsumerTag)
			sawPush = true
		}
	}
	require.True(t, sawAck)
	require.True(t, sawPush)
}

func TestPublishToUnboundQueueDeliversNothing(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()
	conn := dial(t, addr)

	roundTrip(t, conn, wire.KindOpenChannel, wire.OpenChannel{RID: "r0", CID: "ch1"}.Encode())
	roundTrip(t, conn, wire.KindDeclareExchange, wire.DeclareExchange{RID: "r1", CID: "ch1", Name: "news", Type: model.ExchangeDirect}.Encode())

	pub := wire.BasicPublish{RID: "r2", CID: "ch1", Exchange: "news", Properties: model.BasicProperties{RoutingKey: "q1"}, Body: []byte("x")}
	_, p := roundTrip(t, conn, wire.KindBasicPublish, pub.Encode())
	resp, err := wire.DecodeBasicResponse(p)
	require.NoError(t, err)
	require.True(t, resp.OK) // single response regardless of fan-out count
}

func TestRequestOnUnknownChannelTearsDownConnection(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()
	conn := dial(t, addr)

	declQ := wire.DeclareQueue{RID: "r1", CID: "ghost-channel", Name: "q1"}
	require.NoError(t, wire.WriteFrame(conn, wire.KindDeclareQueue, declQ.Encode()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := wire.ReadFrame(conn)
	require.Error(t, err) // connection torn down, no response frame
}
