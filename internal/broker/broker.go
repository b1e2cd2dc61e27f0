// Package broker is an in-process message broker for tests.
//
// It models the surface an integration test needs from a Kafka-style
// broker (named topics, keyed partitioning, per-partition offsets, and
// consumer groups with committed positions) without any network or
// external process, the same way miniredis models Redis. Tests exercise
// produce/consume flows hermetically and assert on delivery order,
// partition assignment, and group progress.
package broker

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

// DefaultPartitions is the partition count for auto-created topics.
const DefaultPartitions = 1

// Message is a single record on a topic.
type Message struct {
	Topic     string            `json:"topic"`
	Key       string            `json:"key,omitempty"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
}

// Broker holds topics and consumer-group state.
//
// All methods are safe for concurrent use. Blocked consumers are woken by
// a per-consumer signal channel (buffered, size 1, sends coalesce) so one
// publish cannot starve waiters in other groups.
type Broker struct {
	mu      sync.Mutex
	topics  map[string]*topic
	groups  map[string]*group
	waiters map[*Consumer]chan struct{}
	closed  bool
}

type topic struct {
	name       string
	partitions [][]Message
	nextRR     int // round-robin cursor for unkeyed messages
}

type topicPartition struct {
	topic     string
	partition int
}

type group struct {
	name      string
	position  map[topicPartition]int64 // next offset to fetch
	committed map[topicPartition]int64 // durable position for re-subscribes
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		topics:  make(map[string]*topic),
		groups:  make(map[string]*group),
		waiters: make(map[*Consumer]chan struct{}),
	}
}

// CreateTopic declares a topic with a fixed partition count.
// Declaring an existing topic with the same count is a no-op.
func (b *Broker) CreateTopic(name string, partitions int) error {
	if name == "" {
		return &Error{Code: ErrCodeBadTopic, Message: "topic name is required"}
	}
	if partitions < 1 {
		return &Error{Code: ErrCodeBadPartitions, Message: "partition count must be at least 1", Topic: name}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &Error{Code: ErrCodeClosed, Message: "broker is closed", Topic: name}
	}

	if existing, ok := b.topics[name]; ok {
		if len(existing.partitions) != partitions {
			return &Error{
				Code:    ErrCodeBadPartitions,
				Message: "topic already exists with different partition count",
				Topic:   name,
			}
		}
		return nil
	}

	b.topics[name] = &topic{name: name, partitions: make([][]Message, partitions)}
	return nil
}

// Publish appends a message to its topic and returns it with partition and
// offset assigned. Topics are auto-created with DefaultPartitions.
//
// Partition assignment: FNV-1a hash of the key; messages with the same key
// always land on the same partition. Unkeyed messages round-robin.
func (b *Broker) Publish(ctx context.Context, msg Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if msg.Topic == "" {
		return Message{}, &Error{Code: ErrCodeBadTopic, Message: "message topic is required"}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Message{}, &Error{Code: ErrCodeClosed, Message: "broker is closed", Topic: msg.Topic}
	}

	t, ok := b.topics[msg.Topic]
	if !ok {
		t = &topic{name: msg.Topic, partitions: make([][]Message, DefaultPartitions)}
		b.topics[msg.Topic] = t
	}

	var p int
	if msg.Key != "" {
		p = partitionFor(msg.Key, len(t.partitions))
	} else {
		p = t.nextRR % len(t.partitions)
		t.nextRR++
	}

	msg.Partition = p
	msg.Offset = int64(len(t.partitions[p]))
	t.partitions[p] = append(t.partitions[p], msg)

	// Wake every blocked consumer; sends coalesce per consumer.
	for _, ch := range b.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()

	return msg, nil
}

// Messages returns a snapshot of all messages on a topic, ordered by
// partition then offset. Returns an error for unknown topics so assertion
// typos fail loudly instead of matching zero messages.
func (b *Broker) Messages(name string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownTopic, Message: "unknown topic", Topic: name}
	}

	var out []Message
	for _, partition := range t.partitions {
		out = append(out, partition...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Partition != out[j].Partition {
			return out[i].Partition < out[j].Partition
		}
		return out[i].Offset < out[j].Offset
	})
	return out, nil
}

// Topics returns the sorted topic names.
func (b *Broker) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close marks the broker closed and wakes all blocked consumers.
// Publish and Subscribe after Close fail with ErrCodeClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for c, ch := range b.waiters {
		close(ch)
		delete(b.waiters, c)
	}
}

// partitionFor maps a key to a partition via FNV-1a.
func partitionFor(key string, partitions int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
