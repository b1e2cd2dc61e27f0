package broker

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Consumer reads messages for one consumer group.
//
// A group sees each message at most once: Poll advances the group's fetch
// position, so two consumers in the same group split the stream, while
// consumers in different groups each see everything. Commit persists the
// current position; a later Subscribe for the same group resumes from the
// last committed offsets, replaying anything polled but never committed.
type Consumer struct {
	broker *Broker
	group  string
	topics []string
	signal chan struct{}
	closed bool
}

// Subscribe creates a consumer for the given group and topics.
// Unknown topics are an error; subscribe after the topic exists (or
// CreateTopic first) so test typos fail loudly.
func (b *Broker) Subscribe(groupName string, topics ...string) (*Consumer, error) {
	if groupName == "" {
		return nil, &Error{Code: ErrCodeBadGroup, Message: "group name is required"}
	}
	if len(topics) == 0 {
		return nil, &Error{Code: ErrCodeBadTopic, Message: "at least one topic is required", Group: groupName}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, &Error{Code: ErrCodeClosed, Message: "broker is closed", Group: groupName}
	}

	for _, name := range topics {
		if _, ok := b.topics[name]; !ok {
			return nil, &Error{Code: ErrCodeUnknownTopic, Message: "unknown topic", Topic: name, Group: groupName}
		}
	}

	g, ok := b.groups[groupName]
	if !ok {
		g = &group{
			name:      groupName,
			position:  make(map[topicPartition]int64),
			committed: make(map[topicPartition]int64),
		}
		b.groups[groupName] = g
	} else {
		// Re-subscribe resumes from committed offsets: anything polled but
		// not committed is replayed.
		for _, name := range topics {
			t := b.topics[name]
			for p := range t.partitions {
				tp := topicPartition{topic: name, partition: p}
				g.position[tp] = g.committed[tp]
			}
		}
	}

	sorted := append([]string(nil), topics...)
	sort.Strings(sorted)

	c := &Consumer{
		broker: b,
		group:  groupName,
		topics: sorted,
		signal: make(chan struct{}, 1),
	}
	b.waiters[c] = c.signal
	return c, nil
}

// Poll blocks until a message is available for this group or ctx is done.
// Topics and partitions are scanned in deterministic order.
func (c *Consumer) Poll(ctx context.Context) (Message, error) {
	for {
		msg, ok, err := c.tryFetch()
		if err != nil {
			return Message{}, err
		}
		if ok {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case _, open := <-c.signal:
			if !open {
				return Message{}, &Error{Code: ErrCodeClosed, Message: "broker is closed", Group: c.group}
			}
		}
	}
}

// Expect polls with a timeout and wraps the deadline error with the topics
// being waited on. The assertion helper for "this flow must publish".
func (c *Consumer) Expect(timeout time.Duration) (Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	msg, err := c.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, fmt.Errorf("timed out after %v waiting for a message on %v (group %s)",
				timeout, c.topics, c.group)
		}
		return Message{}, err
	}
	return msg, nil
}

// Commit persists the group's current fetch position. A consumer created
// later for the same group resumes from here.
func (c *Consumer) Commit() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return &Error{Code: ErrCodeClosed, Message: "consumer is closed", Group: c.group}
	}
	g := c.broker.groups[c.group]
	for tp, off := range g.position {
		g.committed[tp] = off
	}
	return nil
}

// Close unregisters the consumer from the broker. Poll after Close fails.
func (c *Consumer) Close() {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	delete(c.broker.waiters, c)
}

// tryFetch returns the next unread message for the group, if any.
func (c *Consumer) tryFetch() (Message, bool, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return Message{}, false, &Error{Code: ErrCodeClosed, Message: "consumer is closed", Group: c.group}
	}
	if c.broker.closed {
		return Message{}, false, &Error{Code: ErrCodeClosed, Message: "broker is closed", Group: c.group}
	}

	g := c.broker.groups[c.group]
	for _, name := range c.topics {
		t := c.broker.topics[name]
		for p := range t.partitions {
			tp := topicPartition{topic: name, partition: p}
			pos := g.position[tp]
			if pos < int64(len(t.partitions[p])) {
				msg := t.partitions[p][pos]
				g.position[tp] = pos + 1
				return msg, true, nil
			}
		}
	}
	return Message{}, false, nil
}
