// Package model defines the broker's core entity and message types, shared
// by the virtual host, the router, the message pipeline and the wire codec.
package model

import (
	"sort"
	"time"
)

// ExchangeType enumerates the supported routing strategies for an exchange.
type ExchangeType uint8

// Supported exchange types.
const (
	ExchangeUnknown ExchangeType = iota
	ExchangeDirect
	ExchangeFanout
	ExchangeTopic
)

// String returns a textual representation of the exchange type.
func (t ExchangeType) String() string {
	switch t {
	case ExchangeDirect:
		return "direct"
	case ExchangeFanout:
		return "fanout"
	case ExchangeTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// DeliveryMode controls whether a message is persisted to the queue's
// message log.
type DeliveryMode uint8

// Supported delivery modes.
const (
	DeliveryUnknown DeliveryMode = iota
	DeliveryUndurable
	DeliveryDurable
)

// Args is a string-to-string property bag attached to exchanges, queues and
// bindings. It is serialized for storage/wire transport as `k1=v1&k2=v2&...`
// (see EncodeArgs/DecodeArgs); keys and values must not themselves contain
// '=' or '&'.
type Args map[string]string

// Exchange is a named routing point. Exchange names are unique broker-wide.
type Exchange struct {
	Name       string
	Type       ExchangeType
	Durable    bool
	AutoDelete bool
	Args       Args
}

// Queue is an ordered buffer of undelivered messages with an attached
// consumer set. Queue names are unique broker-wide.
type Queue struct {
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Args       Args
}

// Binding connects a queue to an exchange using a binding key. A binding is
// identified by the (Exchange, Queue) pair; at most one key is kept per pair.
type Binding struct {
	Exchange string
	Queue    string
	Key      string
}

// Durable reports whether the binding should be persisted: true iff both
// endpoint entities are themselves durable.
func (b Binding) Durable(exchangeDurable, queueDurable bool) bool {
	return exchangeDurable && queueDurable
}

// BasicProperties carries the metadata attached to a published message.
type BasicProperties struct {
	ID           string
	DeliveryMode DeliveryMode
	RoutingKey   string
}

// Message is a unit of data flowing through a queue.
type Message struct {
	Queue      string
	Properties BasicProperties
	Body       []byte

	// Offset/Length locate the serialized record in the queue's on-disk log.
	// Both are zero for non-durable messages.
	Offset int64
	Length int64
	Valid  bool

	// EnqueuedAt is informational only (logs/metrics); no TTL or ordering
	// semantics attach to it.
	EnqueuedAt time.Time
}

// EncodeArgs serializes an Args map using the `k1=v1&k2=v2&...` convention.
// An empty/nil map yields the empty string. Key ordering is irrelevant to
// correctness but is sorted for deterministic output (tests, logs).
func EncodeArgs(a Args) string {
	if len(a) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "&"
		}
		out += k + "=" + a[k]
	}
	return out
}

// DecodeArgs parses the `k1=v1&k2=v2&...` convention back into an Args map.
// The empty string decodes to an empty, non-nil map.
func DecodeArgs(s string) Args {
	a := make(Args)
	if s == "" {
		return a
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '&' {
			pair := s[start:i]
			start = i + 1
			if pair == "" {
				continue
			}
			for j := 0; j < len(pair); j++ {
				if pair[j] == '=' {
					a[pair[:j]] = pair[j+1:]
					break
				}
			}
		}
	}
	return a
}
