package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, WithBatchTimeout(5*time.Millisecond), WithRequiredAcks(kafka.RequireOne))

	first, err := p.writer("ergolife_activity_events")
	require.NoError(t, err)
	again, err := p.writer("ergolife_activity_events")
	require.NoError(t, err)
	other, err := p.writer("ergolife_wallet_events")
	require.NoError(t, err)

	require.Same(t, first, again)
	require.NotSame(t, first, other)
	require.Equal(t, 5*time.Millisecond, first.BatchTimeout)
	require.Equal(t, kafka.RequireOne, first.RequiredAcks)
	require.IsType(t, &kafka.Hash{}, first.Balancer)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

func TestKafkaProducerRejectsWritesAfterClose(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})
	require.NoError(t, p.Close())

	err := p.WriteMessages(context.Background(), "ergolife_activity_events", kafka.Message{Value: []byte("x")})
	require.ErrorIs(t, err, ErrProducerClosed)
}
