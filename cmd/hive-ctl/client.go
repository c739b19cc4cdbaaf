package main

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.bryk.io/hive/internal/wire"
	"go.bryk.io/hive/model"
)

// client is a minimal synchronous driver for the broker's wire protocol: one
// request awaits its matching response by RID while a background reader
// routes unsolicited pushes (basicConsumeResponse frames) to an optional
// onPush callback. It exists purely to exercise the protocol end-to-end from
// a CLI, the way the original implementation's own client tooling did.
type client struct {
	conn net.Conn

	mu      sync.Mutex
	pending map[string]chan wire.BasicResponse

	onPush func(wire.BasicConsumeResponse)
}

// onMessage registers a callback invoked for every asynchronous delivery
// push received from the broker.
func (c *client) onMessage(fn func(msgID, routingKey string, body []byte)) {
	c.onPush = func(push wire.BasicConsumeResponse) {
		fn(push.Properties.ID, push.Properties.RoutingKey, push.Body)
	}
}

// dial connects to a broker listening at addr.
func dial(addr string) (*client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("hive-ctl: dial %s: %w", addr, err)
	}
	c := &client{conn: conn, pending: make(map[string]chan wire.BasicResponse)}
	go c.readLoop()
	return c, nil
}

// Close closes the underlying connection.
func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) readLoop() {
	for {
		kind, payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			c.failAllPending(err)
			return
		}
		switch kind {
		case wire.KindBasicResponse:
			resp, err := wire.DecodeBasicResponse(payload)
			if err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RID]
			delete(c.pending, resp.RID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		case wire.KindBasicConsumeResponse:
			push, err := wire.DecodeBasicConsumeResponse(payload)
			if err != nil {
				continue
			}
			if c.onPush != nil {
				c.onPush(push)
			}
		}
	}
}

func (c *client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for rid, ch := range c.pending {
		close(ch)
		delete(c.pending, rid)
	}
	_ = err
}

// request sends `kind`/`payload` (which must carry a fresh RID) and blocks
// until the matching basicResponse frame arrives or `timeout` elapses.
func (c *client) request(kind wire.Kind, rid string, payload []byte, timeout time.Duration) (wire.BasicResponse, error) {
	ch := make(chan wire.BasicResponse, 1)
	c.mu.Lock()
	c.pending[rid] = ch
	c.mu.Unlock()

	if err := wire.WriteFrame(c.conn, kind, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, rid)
		c.mu.Unlock()
		return wire.BasicResponse{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return wire.BasicResponse{}, fmt.Errorf("hive-ctl: connection closed while awaiting response")
		}
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, rid)
		c.mu.Unlock()
		return wire.BasicResponse{}, fmt.Errorf("hive-ctl: timed out waiting for response to %s", rid)
	}
}

const defaultTimeout = 5 * time.Second

func newRID() string { return uuid.NewString() }

func (c *client) openChannel(cid string) (wire.BasicResponse, error) {
	rid := newRID()
	return c.request(wire.KindOpenChannel, rid, wire.OpenChannel{RID: rid, CID: cid}.Encode(), defaultTimeout)
}

func (c *client) declareExchange(cid, name string, kind model.ExchangeType, durable, autoDelete bool) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.DeclareExchange{RID: rid, CID: cid, Name: name, Type: kind, Durable: durable, AutoDelete: autoDelete}
	return c.request(wire.KindDeclareExchange, rid, req.Encode(), defaultTimeout)
}

func (c *client) deleteExchange(cid, name string) (wire.BasicResponse, error) {
	rid := newRID()
	return c.request(wire.KindDeleteExchange, rid, wire.DeleteExchange{RID: rid, CID: cid, Name: name}.Encode(), defaultTimeout)
}

func (c *client) declareQueue(cid, name string, durable, exclusive, autoDelete bool) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.DeclareQueue{RID: rid, CID: cid, Name: name, Durable: durable, Exclusive: exclusive, AutoDelete: autoDelete}
	return c.request(wire.KindDeclareQueue, rid, req.Encode(), defaultTimeout)
}

func (c *client) deleteQueue(cid, name string) (wire.BasicResponse, error) {
	rid := newRID()
	return c.request(wire.KindDeleteQueue, rid, wire.DeleteQueue{RID: rid, CID: cid, Name: name}.Encode(), defaultTimeout)
}

func (c *client) bind(cid, exchange, queue, key string) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.QueueBind{RID: rid, CID: cid, Exchange: exchange, Queue: queue, BindingKey: key}
	return c.request(wire.KindQueueBind, rid, req.Encode(), defaultTimeout)
}

func (c *client) unbind(cid, exchange, queue string) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.QueueUnbind{RID: rid, CID: cid, Exchange: exchange, Queue: queue}
	return c.request(wire.KindQueueUnbind, rid, req.Encode(), defaultTimeout)
}

func (c *client) publish(cid, exchange, routingKey string, durable bool, body []byte) (wire.BasicResponse, error) {
	rid := newRID()
	mode := model.DeliveryUndurable
	if durable {
		mode = model.DeliveryDurable
	}
	req := wire.BasicPublish{
		RID: rid, CID: cid, Exchange: exchange,
		Properties: model.BasicProperties{RoutingKey: routingKey, DeliveryMode: mode},
		Body:       body,
	}
	return c.request(wire.KindBasicPublish, rid, req.Encode(), defaultTimeout)
}

func (c *client) ack(cid, queue, msgID string) (wire.BasicResponse, error) {
	rid := newRID()
	return c.request(wire.KindBasicAck, rid, wire.BasicAck{RID: rid, CID: cid, Queue: queue, MsgID: msgID}.Encode(), defaultTimeout)
}

func (c *client) consume(cid, queue, tag string, autoAck bool) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.BasicConsume{RID: rid, CID: cid, Queue: queue, ConsumerTag: tag, AutoAck: autoAck}
	return c.request(wire.KindBasicConsume, rid, req.Encode(), defaultTimeout)
}

func (c *client) cancel(cid, queue, tag string) (wire.BasicResponse, error) {
	rid := newRID()
	req := wire.BasicCancel{RID: rid, CID: cid, Queue: queue, ConsumerTag: tag}
	return c.request(wire.KindBasicCancel, rid, req.Encode(), defaultTimeout)
}
