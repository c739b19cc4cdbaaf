// Package session implements the connection → channel → consumer hierarchy
// and the request/response dispatch described in spec §4.8: on TCP connect,
// a Connection owns an empty channel registry plus references to the
// virtual host, consumer manager, codec and worker pool; on TCP disconnect,
// it is dropped from the registry and its destruction cancels every
// channel. It is grounded on the original implementation's Session
// (server/session.hpp), generalized from its single-threaded read loop to a
// per-connection goroutine writing responses serially over a guarded
// writer, matching spec §5's "responses on a single channel are framed in
// the order their requests were decoded on that connection."
package session

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"go.bryk.io/hive/internal/pool"
	"go.bryk.io/hive/internal/wire"
	xlog "go.bryk.io/hive/log"
	"go.bryk.io/hive/ulid"
	"go.bryk.io/hive/vhost"
)

// Connection owns one network connection's channel registry and drives its
// decode/dispatch/respond loop.
type Connection struct {
	id   string
	conn net.Conn
	vh   *vhost.VirtualHost
	pool *pool.Pool
	log  xlog.Logger

	writeMu sync.Mutex

	channelsMu sync.Mutex
	channels   map[string]*Channel
}

func newConnection(c net.Conn, vh *vhost.VirtualHost, p *pool.Pool, log xlog.Logger) *Connection {
	return &Connection{
		id:       connectionID(log),
		conn:     c,
		vh:       vh,
		pool:     p,
		log:      log,
		channels: make(map[string]*Channel),
	}
}

// connectionID mints a lexicographically sortable identifier so log lines
// from the same broker instance order by connection age. Falls back to a
// UUID on the essentially unreachable case of an entropy-source failure.
func connectionID(log xlog.Logger) string {
	id, err := ulid.New()
	if err != nil {
		if log != nil {
			log.Warning("ulid generation failed, falling back to uuid for connection id")
		}
		return uuid.NewString()
	}
	return id.String()
}

// Serve runs the decode/dispatch loop until the connection is closed or a
// fatal protocol error occurs (spec §7: an unknown channel/connection
// reference may trigger connection teardown).
func (c *Connection) Serve() {
	defer c.close()
	for {
		kind, payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				c.log.WithField("connection", c.id).Warning("connection read error, tearing down")
			}
			return
		}
		record, err := wire.Decode(kind, payload)
		if err != nil {
			c.log.WithField("connection", c.id).Warning("malformed frame, tearing down")
			return
		}
		if !c.dispatch(kind, record) {
			c.log.WithField("connection", c.id).Warning("request for unknown channel, tearing down")
			return
		}
	}
}

// dispatch routes a decoded record to its Channel method and writes the
// response frame. It returns false on a protocol error that should tear
// down the connection (an operation addressed to a channel id this
// connection does not own).
func (c *Connection) dispatch(kind wire.Kind, record any) bool {
	switch kind {
	case wire.KindOpenChannel:
		req := record.(wire.OpenChannel)
		c.openChannel(req.CID)
		c.respond(wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true})
		return true
	case wire.KindCloseChannel:
		req := record.(wire.CloseChannel)
		c.closeChannel(req.CID)
		c.respond(wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true})
		return true
	case wire.KindDeclareExchange:
		req := record.(wire.DeclareExchange)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.DeclareExchange(req)) })
	case wire.KindDeleteExchange:
		req := record.(wire.DeleteExchange)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.DeleteExchange(req)) })
	case wire.KindDeclareQueue:
		req := record.(wire.DeclareQueue)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.DeclareQueue(req)) })
	case wire.KindDeleteQueue:
		req := record.(wire.DeleteQueue)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.DeleteQueue(req)) })
	case wire.KindQueueBind:
		req := record.(wire.QueueBind)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.QueueBind(req)) })
	case wire.KindQueueUnbind:
		req := record.(wire.QueueUnbind)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.QueueUnbind(req)) })
	case wire.KindBasicPublish:
		req := record.(wire.BasicPublish)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.BasicPublish(req)) })
	case wire.KindBasicAck:
		req := record.(wire.BasicAck)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.BasicAck(req)) })
	case wire.KindBasicConsume:
		req := record.(wire.BasicConsume)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.BasicConsume(req)) })
	case wire.KindBasicCancel:
		req := record.(wire.BasicCancel)
		return c.withChannel(req.CID, func(ch *Channel) { c.respond(ch.BasicCancel(req)) })
	default:
		return false
	}
}

func (c *Connection) openChannel(id string) {
	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	if _, ok := c.channels[id]; ok {
		return
	}
	c.channels[id] = newChannel(id, c)
}

func (c *Connection) closeChannel(id string) {
	c.channelsMu.Lock()
	ch, ok := c.channels[id]
	delete(c.channels, id)
	c.channelsMu.Unlock()
	if ok {
		ch.Close()
	}
}

func (c *Connection) withChannel(id string, fn func(ch *Channel)) bool {
	c.channelsMu.Lock()
	ch, ok := c.channels[id]
	c.channelsMu.Unlock()
	if !ok {
		return false
	}
	fn(ch)
	return true
}

func (c *Connection) respond(resp wire.BasicResponse) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(c.conn, wire.KindBasicResponse, resp.Encode()); err != nil {
		c.log.WithField("connection", c.id).Warning("failed to write response frame")
	}
}

// push frames a server-initiated basicConsumeResponse, serialized against
// any concurrent response write on this connection.
func (c *Connection) push(msg wire.BasicConsumeResponse) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(c.conn, wire.KindBasicConsumeResponse, msg.Encode()); err != nil {
		c.log.WithField("connection", c.id).Warning("failed to write push frame")
	}
}

// deliver is the delivery task body for `queue`. Per the Open Question
// decision recorded in SPEC_FULL.md §[FULL] 5, it does not pop a message
// until a consumer is known to exist; `choose` may still return nothing if
// the last consumer cancels between the existence check and the call
// (no stickiness guarantee), in which case the message remains in
// pending-ack.
func (c *Connection) deliver(queue string) {
	if c.vh.ConsumerManager().Empty(queue) {
		return
	}
	msg, ok := c.vh.BasicConsume(queue)
	if !ok {
		return
	}
	rec, ok := c.vh.ConsumerManager().Choose(queue)
	if !ok {
		c.log.WithField("queue", queue).Warning("delivery task found no consumer after popping; message remains pending-ack")
		return
	}
	rec.Deliver(msg.Properties.ID, msg.Properties.RoutingKey, msg.Body)
	if rec.AutoAck {
		c.vh.BasicAck(queue, msg.Properties.ID)
	}
}

func (c *Connection) close() {
	c.channelsMu.Lock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channels = make(map[string]*Channel)
	c.channelsMu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	_ = c.conn.Close()
}
