package upstream

import (
	"encoding/json"
)

// Subscription is a live upstream subscription. Items are delivered in the
// order the upstream sent them. Items is closed when the upstream ends the
// subscription cleanly, a value on Err ends it with a failure.
type Subscription interface {
	Items() <-chan json.RawMessage
	Err() <-chan error
	// Unsubscribe stops delivery and cancels the subscription upstream,
	// it is safe to call more than once
	Unsubscribe()
}

type subscription struct {
	client      *Client
	unsubscribe string
	id          json.RawMessage
	key         string

	items chan json.RawMessage
	errs  chan error

	// guarded by client.mu
	finished bool
}

var _ Subscription = (*subscription)(nil)

func newSubscription(client *Client, unsubscribe string, bufferSize int) *subscription {
	return &subscription{
		client:      client,
		unsubscribe: unsubscribe,
		items:       make(chan json.RawMessage, bufferSize),
		errs:        make(chan error, 1),
	}
}

func (s *subscription) Items() <-chan json.RawMessage {
	return s.items
}

func (s *subscription) Err() <-chan error {
	return s.errs
}

func (s *subscription) Unsubscribe() {
	s.client.mu.Lock()
	active := !s.finished
	s.finished = true
	if s.client.subs[s.key] == s {
		delete(s.client.subs, s.key)
	}
	s.client.mu.Unlock()

	if active {
		s.client.unsubscribeUpstream(s.unsubscribe, s.id)
	}
}

// finish ends delivery, closing items when err is nil.
// Must be called with client.mu held.
func (s *subscription) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true

	if err != nil {
		s.errs <- err
		return
	}
	close(s.items)
}

// deliver hands an item to the consumer without blocking,
// returning false when the consumer has fallen behind.
// Must be called with client.mu held.
func (s *subscription) deliver(item json.RawMessage) bool {
	if s.finished {
		return true
	}

	select {
	case s.items <- item:
		return true
	default:
		return false
	}
}
