// Package bus defines the minimal pub/sub contract spec.md §6 describes as
// the aggregator's sole transport dependency: subscribe(topic, handler),
// publish(topic, payload), unsubscribe. The core never imports a concrete
// broker; production wiring (Kafka, NATS, …) lives outside this module.
package bus

import "github.com/google/uuid"

// Handler processes one published payload. Per spec.md §5, handlers run to
// completion with no suspension points and must never panic; MemoryBus
// recovers a panicking handler defensively but the contract assumes well-
// behaved handlers.
type Handler func(topic string, payload any)

// Token is the opaque subscription handle returned by Subscribe, used to
// key unsubscription for languages (and handler closures) without
// reference equality — spec.md §9 Design Note.
type Token string

func newToken() Token {
	return Token(uuid.NewString())
}

// EventBus is the narrow transport contract the aggregator depends on.
type EventBus interface {
	Subscribe(topic string, handler Handler) Token
	Unsubscribe(topic string, token Token)
	Publish(topic string, payload any)
}
