package session

import (
	"context"

	"go.bryk.io/hive/internal/consumer"
	"go.bryk.io/hive/internal/router"
	"go.bryk.io/hive/internal/wire"
	"go.bryk.io/hive/model"
)

// Channel binds a (connection, channel-id) pair. It exposes one method per
// protocol request (spec §6); each performs the requested mutation via the
// virtual host or the consumer manager and returns the basicResponse to
// send back. A channel holds at most one consumer; on destruction, if a
// consumer exists, it is removed from the consumer manager.
type Channel struct {
	id   string
	conn *Connection

	consumerTag   string
	consumerQueue string
}

func newChannel(id string, conn *Connection) *Channel {
	return &Channel{id: id, conn: conn}
}

// ID returns the channel identifier.
func (c *Channel) ID() string { return c.id }

// Close cancels the channel's consumer, if any.
func (c *Channel) Close() {
	if c.consumerTag == "" {
		return
	}
	c.conn.vh.ConsumerManager().Remove(c.consumerQueue, c.consumerTag)
	c.consumerTag, c.consumerQueue = "", ""
}

// DeclareExchange handles a declareExchange request.
func (c *Channel) DeclareExchange(req wire.DeclareExchange) wire.BasicResponse {
	ok := c.conn.vh.DeclareExchange(req.Name, req.Type, req.Durable, req.AutoDelete, req.Args)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}

// DeleteExchange handles a deleteExchange request.
func (c *Channel) DeleteExchange(req wire.DeleteExchange) wire.BasicResponse {
	c.conn.vh.DeleteExchange(req.Name)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true}
}

// DeclareQueue handles a declareQueue request.
func (c *Channel) DeclareQueue(req wire.DeclareQueue) wire.BasicResponse {
	ok := c.conn.vh.DeclareQueue(req.Name, req.Durable, req.Exclusive, req.AutoDelete, req.Args)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}

// DeleteQueue handles a deleteQueue request.
func (c *Channel) DeleteQueue(req wire.DeleteQueue) wire.BasicResponse {
	c.conn.vh.DeleteQueue(req.Name)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true}
}

// QueueBind handles a queueBind request.
func (c *Channel) QueueBind(req wire.QueueBind) wire.BasicResponse {
	ok := c.conn.vh.Bind(req.Exchange, req.Queue, req.BindingKey)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}

// QueueUnbind handles a queueUnbind request.
func (c *Channel) QueueUnbind(req wire.QueueUnbind) wire.BasicResponse {
	c.conn.vh.Unbind(req.Exchange, req.Queue)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true}
}

// BasicPublish handles a basicPublish request: it looks up the exchange,
// fetches its bindings, routes the message against every binding key, and
// for each match publishes into the bound queue and enqueues one delivery
// task. It responds exactly once, after the full fan-out completes (spec
// §9's single-response-per-publish directive).
func (c *Channel) BasicPublish(req wire.BasicPublish) wire.BasicResponse {
	ex, ok := c.conn.vh.Exchange(req.Exchange)
	if !ok {
		return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: false}
	}

	if m := c.conn.vh.Metrics(); m != nil {
		m.PublishTotal.WithLabelValues(req.Exchange).Inc()
	}

	for queue, bindingKey := range c.conn.vh.ExchangeBindings(req.Exchange) {
		if !router.Route(ex.Type, req.Properties.RoutingKey, bindingKey) {
			continue
		}
		if !c.conn.vh.BasicPublish(queue, req.Properties, req.Body) {
			continue
		}
		target := queue
		if err := c.conn.pool.Submit(func(_ context.Context) { c.conn.deliver(target) }); err != nil {
			c.conn.log.WithField("queue", target).Warning("failed to enqueue delivery task")
		}
	}
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: true}
}

// BasicAck handles a basicAck request.
func (c *Channel) BasicAck(req wire.BasicAck) wire.BasicResponse {
	ok := c.conn.vh.BasicAck(req.Queue, req.MsgID)
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}

// BasicConsume handles a basicConsume request. It fails if this channel
// already holds a consumer.
func (c *Channel) BasicConsume(req wire.BasicConsume) wire.BasicResponse {
	if c.consumerTag != "" {
		return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: false}
	}

	rec := consumer.Record{
		Tag:       req.ConsumerTag,
		Queue:     req.Queue,
		ChannelID: c.id,
		AutoAck:   req.AutoAck,
		Deliver: func(messageID, routingKey string, body []byte) {
			c.conn.push(wire.BasicConsumeResponse{
				CID:         c.id,
				ConsumerTag: req.ConsumerTag,
				Properties:  model.BasicProperties{ID: messageID, RoutingKey: routingKey},
				Body:        body,
			})
		},
	}
	ok := c.conn.vh.ConsumerManager().Create(req.Queue, rec)
	if ok {
		c.consumerTag = req.ConsumerTag
		c.consumerQueue = req.Queue
	}
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}

// BasicCancel handles a basicCancel request.
func (c *Channel) BasicCancel(req wire.BasicCancel) wire.BasicResponse {
	ok := c.conn.vh.ConsumerManager().Remove(req.Queue, req.ConsumerTag)
	if ok && c.consumerTag == req.ConsumerTag {
		c.consumerTag, c.consumerQueue = "", ""
	}
	return wire.BasicResponse{RID: req.RID, CID: req.CID, OK: ok}
}
