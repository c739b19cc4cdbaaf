package mlog

import (
	"encoding/binary"
	"fmt"

	"go.bryk.io/hive/model"
)

// record is the on-disk payload for a single message. The `valid` flag is
// kept as the very first, fixed-width byte so that invalidating a message
// (ack) never changes the serialized length: only that byte is rewritten in
// place, by design (see spec §4.2).
type record struct {
	valid        bool
	deliveryMode model.DeliveryMode
	id           string
	routingKey   string
	body         []byte
}

// encode serializes a record as:
//
//	[1B valid][1B mode][2B idLen][id][2B rkLen][routingKey][8B bodyLen][body]
func (r record) encode() []byte {
	buf := make([]byte, 0, 1+1+2+len(r.id)+2+len(r.routingKey)+8+len(r.body))
	if r.valid {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(r.deliveryMode))

	idLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(idLen, uint16(len(r.id)))
	buf = append(buf, idLen...)
	buf = append(buf, r.id...)

	rkLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(rkLen, uint16(len(r.routingKey)))
	buf = append(buf, rkLen...)
	buf = append(buf, r.routingKey...)

	bodyLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(bodyLen, uint64(len(r.body)))
	buf = append(buf, bodyLen...)
	buf = append(buf, r.body...)
	return buf
}

func decodeRecord(buf []byte) (record, error) {
	var r record
	if len(buf) < 2 {
		return r, fmt.Errorf("mlog: truncated record header")
	}
	r.valid = buf[0] == 1
	r.deliveryMode = model.DeliveryMode(buf[1])
	off := 2

	idLen, err := readUint16(buf, off)
	if err != nil {
		return r, err
	}
	off += 2
	if off+int(idLen) > len(buf) {
		return r, fmt.Errorf("mlog: truncated record id")
	}
	r.id = string(buf[off : off+int(idLen)])
	off += int(idLen)

	rkLen, err := readUint16(buf, off)
	if err != nil {
		return r, err
	}
	off += 2
	if off+int(rkLen) > len(buf) {
		return r, fmt.Errorf("mlog: truncated record routing key")
	}
	r.routingKey = string(buf[off : off+int(rkLen)])
	off += int(rkLen)

	if off+8 > len(buf) {
		return r, fmt.Errorf("mlog: truncated record body length")
	}
	bodyLen := binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	if off+int(bodyLen) > len(buf) {
		return r, fmt.Errorf("mlog: truncated record body")
	}
	r.body = append([]byte(nil), buf[off:off+int(bodyLen)]...)
	return r, nil
}

func readUint16(buf []byte, off int) (uint16, error) {
	if off+2 > len(buf) {
		return 0, fmt.Errorf("mlog: truncated uint16 field")
	}
	return binary.LittleEndian.Uint16(buf[off : off+2]), nil
}

func recordFromMessage(m model.Message) record {
	return record{
		valid:        m.Valid,
		deliveryMode: m.Properties.DeliveryMode,
		id:           m.Properties.ID,
		routingKey:   m.Properties.RoutingKey,
		body:         m.Body,
	}
}

func (r record) toProperties(queue string) model.Message {
	return model.Message{
		Queue: queue,
		Properties: model.BasicProperties{
			ID:           r.id,
			DeliveryMode: r.deliveryMode,
			RoutingKey:   r.routingKey,
		},
		Body:  r.body,
		Valid: r.valid,
	}
}
