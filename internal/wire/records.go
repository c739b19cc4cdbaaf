package wire

import (
	"fmt"

	"go.bryk.io/hive/model"
)

// OpenChannel requests a new channel on the connection.
type OpenChannel struct {
	RID, CID string
}

// Encode serializes the record.
func (r OpenChannel) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	return e.buf
}

// DecodeOpenChannel parses an OpenChannel record.
func DecodeOpenChannel(buf []byte) (OpenChannel, error) {
	d := &dec{buf: buf}
	var r OpenChannel
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	r.CID, err = d.string()
	return r, err
}

// CloseChannel requests that a channel be torn down.
type CloseChannel struct {
	RID, CID string
}

// Encode serializes the record.
func (r CloseChannel) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	return e.buf
}

// DecodeCloseChannel parses a CloseChannel record.
func DecodeCloseChannel(buf []byte) (CloseChannel, error) {
	d := &dec{buf: buf}
	var r CloseChannel
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	r.CID, err = d.string()
	return r, err
}

// DeclareExchange requests exchange declaration.
type DeclareExchange struct {
	RID, CID   string
	Name       string
	Type       model.ExchangeType
	Durable    bool
	AutoDelete bool
	Args       model.Args
}

// Encode serializes the record.
func (r DeclareExchange) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Name)
	e.uint8(uint8(r.Type))
	e.bool(r.Durable)
	e.bool(r.AutoDelete)
	encodeArgs(e, r.Args)
	return e.buf
}

// DecodeDeclareExchange parses a DeclareExchange record.
func DecodeDeclareExchange(buf []byte) (DeclareExchange, error) {
	d := &dec{buf: buf}
	var r DeclareExchange
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Name, err = d.string(); err != nil {
		return r, err
	}
	kind, err := d.uint8()
	if err != nil {
		return r, err
	}
	r.Type = model.ExchangeType(kind)
	if r.Durable, err = d.bool(); err != nil {
		return r, err
	}
	if r.AutoDelete, err = d.bool(); err != nil {
		return r, err
	}
	r.Args, err = decodeArgs(d)
	return r, err
}

// DeleteExchange requests exchange deletion.
type DeleteExchange struct {
	RID, CID string
	Name     string
}

// Encode serializes the record.
func (r DeleteExchange) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Name)
	return e.buf
}

// DecodeDeleteExchange parses a DeleteExchange record.
func DecodeDeleteExchange(buf []byte) (DeleteExchange, error) {
	d := &dec{buf: buf}
	var r DeleteExchange
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	r.Name, err = d.string()
	return r, err
}

// DeclareQueue requests queue declaration.
type DeclareQueue struct {
	RID, CID   string
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Args       model.Args
}

// Encode serializes the record.
func (r DeclareQueue) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Name)
	e.bool(r.Durable)
	e.bool(r.Exclusive)
	e.bool(r.AutoDelete)
	encodeArgs(e, r.Args)
	return e.buf
}

// DecodeDeclareQueue parses a DeclareQueue record.
func DecodeDeclareQueue(buf []byte) (DeclareQueue, error) {
	d := &dec{buf: buf}
	var r DeclareQueue
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Name, err = d.string(); err != nil {
		return r, err
	}
	if r.Durable, err = d.bool(); err != nil {
		return r, err
	}
	if r.Exclusive, err = d.bool(); err != nil {
		return r, err
	}
	if r.AutoDelete, err = d.bool(); err != nil {
		return r, err
	}
	r.Args, err = decodeArgs(d)
	return r, err
}

// DeleteQueue requests queue deletion.
type DeleteQueue struct {
	RID, CID string
	Name     string
}

// Encode serializes the record.
func (r DeleteQueue) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Name)
	return e.buf
}

// DecodeDeleteQueue parses a DeleteQueue record.
func DecodeDeleteQueue(buf []byte) (DeleteQueue, error) {
	d := &dec{buf: buf}
	var r DeleteQueue
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	r.Name, err = d.string()
	return r, err
}

// QueueBind requests a binding between an exchange and a queue.
type QueueBind struct {
	RID, CID          string
	Exchange, Queue   string
	BindingKey        string
}

// Encode serializes the record.
func (r QueueBind) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Exchange)
	e.string(r.Queue)
	e.string(r.BindingKey)
	return e.buf
}

// DecodeQueueBind parses a QueueBind record.
func DecodeQueueBind(buf []byte) (QueueBind, error) {
	d := &dec{buf: buf}
	var r QueueBind
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Exchange, err = d.string(); err != nil {
		return r, err
	}
	if r.Queue, err = d.string(); err != nil {
		return r, err
	}
	r.BindingKey, err = d.string()
	return r, err
}

// QueueUnbind requests removal of the binding between an exchange and a
// queue.
type QueueUnbind struct {
	RID, CID        string
	Exchange, Queue string
}

// Encode serializes the record.
func (r QueueUnbind) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Exchange)
	e.string(r.Queue)
	return e.buf
}

// DecodeQueueUnbind parses a QueueUnbind record.
func DecodeQueueUnbind(buf []byte) (QueueUnbind, error) {
	d := &dec{buf: buf}
	var r QueueUnbind
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Exchange, err = d.string(); err != nil {
		return r, err
	}
	r.Queue, err = d.string()
	return r, err
}

// BasicPublish requests that a message be routed and delivered from the
// named exchange.
type BasicPublish struct {
	RID, CID     string
	Exchange     string
	Properties   model.BasicProperties
	Body         []byte
}

// Encode serializes the record.
func (r BasicPublish) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Exchange)
	e.string(r.Properties.ID)
	e.uint8(uint8(r.Properties.DeliveryMode))
	e.string(r.Properties.RoutingKey)
	e.bytes(r.Body)
	return e.buf
}

// DecodeBasicPublish parses a BasicPublish record.
func DecodeBasicPublish(buf []byte) (BasicPublish, error) {
	d := &dec{buf: buf}
	var r BasicPublish
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Exchange, err = d.string(); err != nil {
		return r, err
	}
	if r.Properties.ID, err = d.string(); err != nil {
		return r, err
	}
	mode, err := d.uint8()
	if err != nil {
		return r, err
	}
	r.Properties.DeliveryMode = model.DeliveryMode(mode)
	if r.Properties.RoutingKey, err = d.string(); err != nil {
		return r, err
	}
	r.Body, err = d.bytes()
	return r, err
}

// BasicAck acknowledges a delivered message.
type BasicAck struct {
	RID, CID string
	Queue    string
	MsgID    string
}

// Encode serializes the record.
func (r BasicAck) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Queue)
	e.string(r.MsgID)
	return e.buf
}

// DecodeBasicAck parses a BasicAck record.
func DecodeBasicAck(buf []byte) (BasicAck, error) {
	d := &dec{buf: buf}
	var r BasicAck
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Queue, err = d.string(); err != nil {
		return r, err
	}
	r.MsgID, err = d.string()
	return r, err
}

// BasicConsume subscribes a channel to a queue.
type BasicConsume struct {
	RID, CID    string
	Queue       string
	ConsumerTag string
	AutoAck     bool
}

// Encode serializes the record.
func (r BasicConsume) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Queue)
	e.string(r.ConsumerTag)
	e.bool(r.AutoAck)
	return e.buf
}

// DecodeBasicConsume parses a BasicConsume record.
func DecodeBasicConsume(buf []byte) (BasicConsume, error) {
	d := &dec{buf: buf}
	var r BasicConsume
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Queue, err = d.string(); err != nil {
		return r, err
	}
	if r.ConsumerTag, err = d.string(); err != nil {
		return r, err
	}
	r.AutoAck, err = d.bool()
	return r, err
}

// BasicCancel cancels a previously established subscription.
type BasicCancel struct {
	RID, CID    string
	Queue       string
	ConsumerTag string
}

// Encode serializes the record.
func (r BasicCancel) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.string(r.Queue)
	e.string(r.ConsumerTag)
	return e.buf
}

// DecodeBasicCancel parses a BasicCancel record.
func DecodeBasicCancel(buf []byte) (BasicCancel, error) {
	d := &dec{buf: buf}
	var r BasicCancel
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.Queue, err = d.string(); err != nil {
		return r, err
	}
	r.ConsumerTag, err = d.string()
	return r, err
}

// BasicResponse is the uniform response record for every request above.
type BasicResponse struct {
	RID, CID string
	OK       bool
}

// Encode serializes the record.
func (r BasicResponse) Encode() []byte {
	e := &enc{}
	e.string(r.RID)
	e.string(r.CID)
	e.bool(r.OK)
	return e.buf
}

// DecodeBasicResponse parses a BasicResponse record.
func DecodeBasicResponse(buf []byte) (BasicResponse, error) {
	d := &dec{buf: buf}
	var r BasicResponse
	var err error
	if r.RID, err = d.string(); err != nil {
		return r, err
	}
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	r.OK, err = d.bool()
	return r, err
}

// BasicConsumeResponse is the server-initiated push frame delivering a
// message to a consumer.
type BasicConsumeResponse struct {
	CID         string
	ConsumerTag string
	Properties  model.BasicProperties
	Body        []byte
}

// Encode serializes the record.
func (r BasicConsumeResponse) Encode() []byte {
	e := &enc{}
	e.string(r.CID)
	e.string(r.ConsumerTag)
	e.string(r.Properties.ID)
	e.uint8(uint8(r.Properties.DeliveryMode))
	e.string(r.Properties.RoutingKey)
	e.bytes(r.Body)
	return e.buf
}

// DecodeBasicConsumeResponse parses a BasicConsumeResponse record.
func DecodeBasicConsumeResponse(buf []byte) (BasicConsumeResponse, error) {
	d := &dec{buf: buf}
	var r BasicConsumeResponse
	var err error
	if r.CID, err = d.string(); err != nil {
		return r, err
	}
	if r.ConsumerTag, err = d.string(); err != nil {
		return r, err
	}
	if r.Properties.ID, err = d.string(); err != nil {
		return r, err
	}
	mode, err := d.uint8()
	if err != nil {
		return r, err
	}
	r.Properties.DeliveryMode = model.DeliveryMode(mode)
	if r.Properties.RoutingKey, err = d.string(); err != nil {
		return r, err
	}
	r.Body, err = d.bytes()
	return r, err
}

// Decode dispatches to the record decoder matching `kind`, returning the
// decoded record as `any`. Callers type-switch or type-assert on the
// concrete type matching the kind they expect.
func Decode(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindOpenChannel:
		return DecodeOpenChannel(payload)
	case KindCloseChannel:
		return DecodeCloseChannel(payload)
	case KindDeclareExchange:
		return DecodeDeclareExchange(payload)
	case KindDeleteExchange:
		return DecodeDeleteExchange(payload)
	case KindDeclareQueue:
		return DecodeDeclareQueue(payload)
	case KindDeleteQueue:
		return DecodeDeleteQueue(payload)
	case KindQueueBind:
		return DecodeQueueBind(payload)
	case KindQueueUnbind:
		return DecodeQueueUnbind(payload)
	case KindBasicPublish:
		return DecodeBasicPublish(payload)
	case KindBasicAck:
		return DecodeBasicAck(payload)
	case KindBasicConsume:
		return DecodeBasicConsume(payload)
	case KindBasicCancel:
		return DecodeBasicCancel(payload)
	case KindBasicResponse:
		return DecodeBasicResponse(payload)
	case KindBasicConsumeResponse:
		return DecodeBasicConsumeResponse(payload)
	default:
		return nil, fmt.Errorf("wire: unknown record kind %d", kind)
	}
}
