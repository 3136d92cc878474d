package sink

import (
	"errors"
	"sync"
	"testing"

	"github.com/maxpert/publist/cfg"
	"github.com/maxpert/publist/publisher"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKafkaConfig(t *testing.T) {
	config := DefaultKafkaConfig([]string{"localhost:9092", "localhost:9093"})

	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, config.Brokers)
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, int64(1048576), config.BatchBytes)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
	assert.True(t, config.AutoCreateTopics)
}

func TestNewKafkaSink(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		BatchBytes:   2048,
		RequiredAcks: kafka.RequireOne,
	})
	require.NoError(t, err)
	require.NotNil(t, sink.writer)
	defer sink.Close()

	assert.Equal(t, 50, sink.writer.BatchSize)
	assert.Equal(t, int64(2048), sink.writer.BatchBytes)
	assert.Equal(t, kafka.RequireOne, sink.writer.RequiredAcks)
	assert.False(t, sink.writer.Async, "writes must be synchronous")
	assert.IsType(t, &kafka.Hash{}, sink.writer.Balancer)
}

func TestNewKafkaSinkEmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{})
	assert.Error(t, err)
}

func TestKafkaSinkClose(t *testing.T) {
	sink, err := NewKafkaSink(DefaultKafkaConfig([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
	assert.NoError(t, (&KafkaSink{}).Close())
}

func TestKafkaFactoryAppliesBatchSize(t *testing.T) {
	snk, err := publisher.NewSink(cfg.SinkConfiguration{
		Name:      "events",
		Type:      "kafka",
		Brokers:   []string{"localhost:9092"},
		BatchSize: 25,
	})
	require.NoError(t, err)
	defer snk.Close()

	kafkaSink, ok := snk.(*KafkaSink)
	require.True(t, ok)
	assert.Equal(t, 25, kafkaSink.writer.BatchSize)
}

func TestNatsFactoryRequiresURL(t *testing.T) {
	_, err := publisher.NewSink(cfg.SinkConfiguration{Name: "events", Type: "nats"})
	assert.Error(t, err)
}

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "publist_publishlist", sanitizeStreamName("publist.publishlist"))
	assert.Equal(t, "a_b_c", sanitizeStreamName("a.b>c"))
	assert.Equal(t, "publishlist", sanitizeStreamName("publishlist"))
}

func TestMockSinkPublish(t *testing.T) {
	mock := &MockSink{}

	require.NoError(t, mock.Publish("publist.publishlist", "/site/a.html", []byte(`{"op":"upsert"}`)))

	msgs := mock.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, MockMessage{Topic: "publist.publishlist", Key: "/site/a.html", Value: []byte(`{"op":"upsert"}`)}, msgs[0])
}

func TestMockSinkPublishError(t *testing.T) {
	expectedErr := errors.New("publish failed")
	mock := &MockSink{PublishErr: expectedErr}

	assert.Same(t, expectedErr, mock.Publish("topic", "key", []byte("value")))
	assert.Empty(t, mock.Snapshot())
}

func TestMockSinkResetAndClose(t *testing.T) {
	mock := &MockSink{}
	mock.Publish("topic1", "key1", []byte("value1"))
	mock.Publish("topic2", "key2", []byte("value2"))
	require.Len(t, mock.Snapshot(), 2)

	mock.Reset()
	assert.Empty(t, mock.Snapshot())

	require.NoError(t, mock.Close())
	assert.True(t, mock.Closed)
}

func TestMockSinkConcurrent(t *testing.T) {
	mock := &MockSink{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Publish("topic", "key", []byte("value"))
		}()
	}
	wg.Wait()

	assert.Len(t, mock.Snapshot(), 10)
}
