package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishAll(t *testing.T, b *Broker, topic string, values ...string) {
	t.Helper()
	ctx := context.Background()
	for _, v := range values {
		_, err := b.Publish(ctx, Message{Topic: topic, Key: "k", Value: []byte(v)})
		require.NoError(t, err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Subscribe("", "orders")
	require.Error(t, err)

	_, err = b.Subscribe("g1")
	require.Error(t, err)

	_, err = b.Subscribe("g1", "missing")
	require.Error(t, err)
	assert.True(t, IsUnknownTopic(err))
}

func TestPoll_FIFOWithinPartition(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))
	publishAll(t, b, "orders", "a", "b", "c")

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		msg, err := c.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Value))
	}
}

func TestPoll_BlocksUntilPublish(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	got := make(chan Message, 1)
	go func() {
		msg, err := c.Poll(context.Background())
		if err == nil {
			got <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	publishAll(t, b, "orders", "late")

	select {
	case msg := <-got:
		assert.Equal(t, "late", string(msg.Value))
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not receive published message")
	}
}

func TestPoll_ContextCancellation(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Poll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGroups_EachGroupSeesEverything(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))
	publishAll(t, b, "orders", "m1", "m2")

	g1, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer g1.Close()
	g2, err := b.Subscribe("g2", "orders")
	require.NoError(t, err)
	defer g2.Close()

	ctx := context.Background()
	for _, c := range []*Consumer{g1, g2} {
		first, err := c.Poll(ctx)
		require.NoError(t, err)
		second, err := c.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, "m1", string(first.Value))
		assert.Equal(t, "m2", string(second.Value))
	}
}

func TestGroups_AtMostOncePerGroup(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))
	publishAll(t, b, "orders", "only")

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Poll(context.Background())
	require.NoError(t, err)

	// The group already consumed the only message; the next poll must block.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Poll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommit_ResumeFromCommitted(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))
	publishAll(t, b, "orders", "m1", "m2", "m3")

	ctx := context.Background()

	c1, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)

	// Poll m1 and commit; poll m2 without committing.
	msg, err := c1.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", string(msg.Value))
	require.NoError(t, c1.Commit())

	msg, err = c1.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m2", string(msg.Value))
	c1.Close()

	// Re-subscribe: m2 was never committed, so it replays.
	c2, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c2.Close()

	msg, err = c2.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m2", string(msg.Value))
}

func TestExpect_Timeout(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Expect(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Contains(t, err.Error(), "orders")
}

func TestExpect_ReceivesMessage(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))
	publishAll(t, b, "orders", "hello")

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	defer c.Close()

	msg, err := c.Expect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg.Value))
}

func TestConsumer_CloseThenPoll(t *testing.T) {
	b := New()
	defer b.Close()
	require.NoError(t, b.CreateTopic("orders", 1))

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)
	c.Close()

	_, err = c.Poll(context.Background())
	require.Error(t, err)
	assert.True(t, IsClosed(err))
}
