package bus

import (
	"sort"
	"sync"
)

type subscription struct {
	token   Token
	handler Handler
}

// MemoryBus is an in-process, synchronous EventBus implementation. Publish
// copies the subscriber list for topic under the bus lock, then invokes
// each subscriber synchronously, in subscription order, after releasing
// it — so a handler may itself publish or subscribe. Serialising delivery
// to one aggregator instance is the aggregator's own job (its withLock).
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]subscription
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for topic and returns a token that later
// unsubscribes exactly that registration.
func (b *MemoryBus) Subscribe(topic string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := newToken()
	b.subs[topic] = append(b.subs[topic], subscription{token: tok, handler: handler})
	return tok
}

// Unsubscribe removes the subscription identified by token from topic, if
// present. Unsubscribing an unknown or already-removed token is a no-op,
// matching spec.md §5's idempotent-teardown requirement.
func (b *MemoryBus) Unsubscribe(topic string, token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.token == token {
			b.subs[topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every current subscriber of topic, in
// subscription order, synchronously. A handler that panics is recovered
// and swallowed so one misbehaving subscriber cannot take down the
// publisher or starve the rest of the subscriber list.
func (b *MemoryBus) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := append([]subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, s := range handlers {
		b.invoke(s.handler, topic, payload)
	}
}

func (b *MemoryBus) invoke(h Handler, topic string, payload any) {
	defer func() {
		recover() // a misbehaving subscriber must not take down the publisher
	}()
	h(topic, payload)
}

// Topics returns the currently-subscribed topic names, sorted, for
// diagnostics (e.g. a cmd/marketready health probe).
func (b *MemoryBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for t, subs := range b.subs {
		if len(subs) > 0 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
