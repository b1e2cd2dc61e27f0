package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublish_AutoCreatesTopic(t *testing.T) {
	b := New()
	defer b.Close()

	msg, err := b.Publish(context.Background(), Message{Topic: "orders", Value: []byte("v1")})
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Partition)
	assert.Equal(t, int64(0), msg.Offset)
	assert.Equal(t, []string{"orders"}, b.Topics())
}

func TestPublish_OffsetsPerPartitionAreMonotonic(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg, err := b.Publish(ctx, Message{Topic: "orders", Key: "same-key", Value: []byte("v")})
		require.NoError(t, err)
		assert.Equal(t, int64(i), msg.Offset)
	}
}

func TestPublish_SameKeySamePartition(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.CreateTopic("orders", 4))

	var first int
	for i := 0; i < 10; i++ {
		msg, err := b.Publish(ctx, Message{Topic: "orders", Key: "customer-42", Value: []byte("v")})
		require.NoError(t, err)
		if i == 0 {
			first = msg.Partition
			continue
		}
		assert.Equal(t, first, msg.Partition)
	}
}

func TestPublish_UnkeyedRoundRobin(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.CreateTopic("orders", 3))

	var partitions []int
	for i := 0; i < 6; i++ {
		msg, err := b.Publish(ctx, Message{Topic: "orders", Value: []byte("v")})
		require.NoError(t, err)
		partitions = append(partitions, msg.Partition)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, partitions)
}

func TestCreateTopic_Validation(t *testing.T) {
	b := New()
	defer b.Close()

	require.Error(t, b.CreateTopic("", 1))
	require.Error(t, b.CreateTopic("orders", 0))

	require.NoError(t, b.CreateTopic("orders", 2))
	require.NoError(t, b.CreateTopic("orders", 2), "same partition count is a no-op")

	err := b.CreateTopic("orders", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different partition count")
}

func TestMessages_SnapshotOrdered(t *testing.T) {
	b := New()
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.CreateTopic("orders", 2))
	for i := 0; i < 4; i++ {
		_, err := b.Publish(ctx, Message{Topic: "orders", Value: []byte{byte(i)}})
		require.NoError(t, err)
	}

	msgs, err := b.Messages("orders")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i := 1; i < len(msgs); i++ {
		prev, curr := msgs[i-1], msgs[i]
		assert.True(t, prev.Partition < curr.Partition ||
			(prev.Partition == curr.Partition && prev.Offset < curr.Offset))
	}
}

func TestMessages_UnknownTopic(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Messages("nope")
	require.Error(t, err)
	assert.True(t, IsUnknownTopic(err))
}

func TestPublish_AfterClose(t *testing.T) {
	b := New()
	b.Close()

	_, err := b.Publish(context.Background(), Message{Topic: "orders"})
	require.Error(t, err)
	assert.True(t, IsClosed(err))
}

func TestClose_Idempotent(t *testing.T) {
	b := New()
	b.Close()
	b.Close()
}

func TestClose_WakesBlockedConsumer(t *testing.T) {
	b := New()
	require.NoError(t, b.CreateTopic("orders", 1))

	c, err := b.Subscribe("g1", "orders")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Poll(context.Background())
		done <- err
	}()

	// Give the consumer a moment to block, then close.
	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, IsClosed(err))
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not wake on broker close")
	}
}
