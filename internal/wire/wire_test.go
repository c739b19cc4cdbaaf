package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"go.bryk.io/hive/internal/wire"
	"go.bryk.io/hive/model"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := wire.DeclareExchange{
		RID: "r1", CID: "c1", Name: "news",
		Type: model.ExchangeTopic, Durable: true, AutoDelete: false,
		Args: model.Args{"a": "b"},
	}
	require.NoError(t, wire.WriteFrame(&buf, wire.KindDeclareExchange, req.Encode()))

	kind, payload, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.KindDeclareExchange, kind)

	decoded, err := wire.Decode(kind, payload)
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestBasicPublishRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := wire.BasicPublish{
		RID: "r1", CID: "c1", Exchange: "news",
		Properties: model.BasicProperties{ID: "abc", DeliveryMode: model.DeliveryDurable, RoutingKey: "news.sport"},
		Body:       []byte("hello world"),
	}
	require.NoError(t, wire.WriteFrame(&buf, wire.KindBasicPublish, req.Encode()))

	kind, payload, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	decoded, err := wire.Decode(kind, payload)
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestBasicConsumeResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	push := wire.BasicConsumeResponse{
		CID: "c1", ConsumerTag: "tag1",
		Properties: model.BasicProperties{ID: "abc", RoutingKey: "news.sport"},
		Body:       []byte("payload"),
	}
	require.NoError(t, wire.WriteFrame(&buf, wire.KindBasicConsumeResponse, push.Encode()))

	kind, payload, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	decoded, err := wire.Decode(kind, payload)
	require.NoError(t, err)
	require.Equal(t, push, decoded)
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	open := wire.OpenChannel{RID: "r1", CID: "c1"}
	ack := wire.BasicAck{RID: "r2", CID: "c1", Queue: "q1", MsgID: "m1"}
	require.NoError(t, wire.WriteFrame(&buf, wire.KindOpenChannel, open.Encode()))
	require.NoError(t, wire.WriteFrame(&buf, wire.KindBasicAck, ack.Encode()))

	kind1, p1, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.KindOpenChannel, kind1)
	d1, err := wire.Decode(kind1, p1)
	require.NoError(t, err)
	require.Equal(t, open, d1)

	kind2, p2, err := wire.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, wire.KindBasicAck, kind2)
	d2, err := wire.Decode(kind2, p2)
	require.NoError(t, err)
	require.Equal(t, ack, d2)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 0xff, 0xff, 0xff}) // ~2GiB declared length
	_, _, err := wire.ReadFrame(&buf)
	require.Error(t, err)
}
