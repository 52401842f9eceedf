package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	testlog "crowdship-engine/internal/testutil"
)

func TestNewPublisher_SkipsWhenNoKafkaConfig(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	got, err := NewPublisher(rec.Logger(), nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestNewPublisher_ReturnsErrorWhenSaramaFails(t *testing.T) {
	t.Parallel()

	orig := newSyncProducer
	t.Cleanup(func() { newSyncProducer = orig })

	sentinel := errors.New("boom")
	newSyncProducer = func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		return nil, sentinel
	}

	rec := testlog.New()
	got, err := NewPublisher(rec.Logger(), []string{"b:9092"})
	require.ErrorIs(t, err, sentinel)
	require.Nil(t, got)
}

func TestPublisher_Close_NilSafe(t *testing.T) {
	t.Parallel()

	var p *Publisher
	require.NoError(t, p.Close())
}
