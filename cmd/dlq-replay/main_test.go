package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
)

type fakeOffsets struct {
	partitions []int32
	oldest     map[int32]int64
	newest     map[int32]int64
	err        error
}

func (f *fakeOffsets) Partitions(string) ([]int32, error) {
	return f.partitions, f.err
}

func (f *fakeOffsets) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest[partition], nil
	}
	return f.newest[partition], nil
}

func (f *fakeOffsets) Close() error { return nil }

type fakePartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (p *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartition) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartition) Close() error                             { return nil }

type fakeSource struct {
	byPartition map[int32][]*sarama.ConsumerMessage
}

func (s *fakeSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	msgs := s.byPartition[partition]
	pc := &fakePartition{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		if m.Offset >= offset {
			pc.messages <- m
		}
	}
	return pc, nil
}

func (s *fakeSource) Close() error { return nil }

type published struct {
	topic   string
	key     string
	value   json.RawMessage
	headers []sarama.RecordHeader
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) PublishEvent(topic string, key string, event any, headers ...sarama.RecordHeader) error {
	if p.err != nil {
		return p.err
	}
	raw, ok := event.(json.RawMessage)
	if !ok {
		return errors.New("unexpected event type")
	}
	p.sent = append(p.sent, published{topic: topic, key: key, value: raw, headers: headers})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func consumerLetter(t *testing.T, offset int64, eventType string) *sarama.ConsumerMessage {
	t.Helper()

	original, err := json.Marshal(kafka.Envelope{
		ID:            "evt-1",
		AggregateType: domain.AggregateProduct,
		AggregateID:   "7",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"product_id":7}`),
	})
	require.NoError(t, err)

	value, err := json.Marshal(kafka.DeadLetter{
		OriginalTopic: kafka.TopicCatalogEvents,
		OriginalKey:   "7",
		OriginalValue: string(original),
		ErrorMessage:  "recompute failed",
		RetryCount:    3,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Offset: offset, Value: value}
}

func outboxLetter(t *testing.T, offset int64) *sarama.ConsumerMessage {
	t.Helper()

	dead, err := json.Marshal(outbox.DeadLetterPayload{
		OutboxID:      "out-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "42",
		EventType:     domain.EventOrderCheckedOut,
		Payload:       json.RawMessage(`{"order_id":42}`),
		PublishError:  "broker down",
	})
	require.NoError(t, err)

	value, err := json.Marshal(kafka.Envelope{
		ID:            "out-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "42",
		EventType:     domain.EventOrderCheckedOut,
		Payload:       dead,
	})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeadLetterQueue, Offset: offset, Value: value}
}

func TestParseConfig(t *testing.T) {
	env := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}
	}

	t.Run("defaults with env brokers", func(t *testing.T) {
		cfg, err := parseConfig(nil, env(map[string]string{"KAFKA_BROKERS": "a:9092, b:9092"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.brokers)
		assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
		assert.Equal(t, defaultReplayLimit, cfg.limit)
		assert.False(t, cfg.execute)
		assert.Equal(t, defaultIdleTimeout, cfg.idleTimeout)
	})

	t.Run("flags override env", func(t *testing.T) {
		cfg, err := parseConfig([]string{
			"-brokers", "c:9092", "-event-type", domain.EventVariantWritten,
			"-limit", "5", "-execute", "-idle-timeout", "500ms",
		}, env(map[string]string{"KAFKA_BROKERS": "a:9092"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"c:9092"}, cfg.brokers)
		assert.Equal(t, domain.EventVariantWritten, cfg.eventType)
		assert.Equal(t, 5, cfg.limit)
		assert.True(t, cfg.execute)
		assert.Equal(t, 500*time.Millisecond, cfg.idleTimeout)
	})

	for name, args := range map[string][]string{
		"no brokers":   {},
		"bad limit":    {"-brokers", "a:9092", "-limit", "0"},
		"empty topic":  {"-brokers", "a:9092", "-source-topic", " "},
		"bad timeout":  {"-brokers", "a:9092", "-idle-timeout", "0s"},
		"unknown flag": {"-brokers", "a:9092", "-nope"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args, env(nil))
			assert.Error(t, err)
		})
	}
}

func TestExtractReplay_ConsumerDeadLetter(t *testing.T) {
	msg, err := extractReplay(consumerLetter(t, 0, domain.EventVariantWritten), "")
	require.NoError(t, err)

	assert.Equal(t, kafka.TopicCatalogEvents, msg.topic)
	assert.Equal(t, "7", msg.key)
	assert.Equal(t, domain.EventVariantWritten, msg.eventType)

	var envelope kafka.Envelope
	require.NoError(t, json.Unmarshal(msg.value, &envelope))
	assert.Equal(t, "evt-1", envelope.ID)
}

func TestExtractReplay_OutboxDeadLetter(t *testing.T) {
	msg, err := extractReplay(outboxLetter(t, 0), "")
	require.NoError(t, err)

	assert.Equal(t, kafka.TopicOrderEvents, msg.topic)
	assert.Equal(t, "42", msg.key)
	assert.Equal(t, domain.EventOrderCheckedOut, msg.eventType)

	var envelope kafka.Envelope
	require.NoError(t, json.Unmarshal(msg.value, &envelope))
	assert.Equal(t, "out-1", envelope.ID)
	assert.JSONEq(t, `{"order_id":42}`, string(envelope.Payload))
	assert.False(t, envelope.PublishedAt.IsZero())
}

func TestExtractReplay_Skips(t *testing.T) {
	_, err := extractReplay(consumerLetter(t, 0, domain.EventVariantWritten), domain.EventOrderCheckedOut)
	assert.ErrorIs(t, err, errSkip)

	_, err = extractReplay(&sarama.ConsumerMessage{Value: []byte("not json")}, "")
	assert.ErrorIs(t, err, errSkip)

	broken, _ := json.Marshal(kafka.DeadLetter{OriginalValue: "{broken"})
	_, err = extractReplay(&sarama.ConsumerMessage{Value: broken}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errSkip)
}

func newTestReplayer(cfg config, source *fakeSource, offsets *fakeOffsets, pub *fakePublisher) *replayer {
	r := &replayer{cfg: cfg, client: offsets, source: source, logger: quietLogger()}
	if pub != nil {
		r.publisher = pub
	}
	return r
}

func TestReplayer_ExecuteRepublishes(t *testing.T) {
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {consumerLetter(t, 0, domain.EventVariantWritten), {Offset: 1, Value: []byte("garbage")}},
		1: {outboxLetter(t, 5)},
	}}
	offsets := &fakeOffsets{
		partitions: []int32{1, 0},
		oldest:     map[int32]int64{0: 0, 1: 5},
		newest:     map[int32]int64{0: 2, 1: 6},
	}
	pub := &fakePublisher{}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, execute: true, idleTimeout: time.Second}
	stats, err := newTestReplayer(cfg, source, offsets, pub).run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, replayStats{scanned: 3, replayed: 2, skipped: 1}, stats)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, kafka.TopicCatalogEvents, pub.sent[0].topic)
	assert.Equal(t, kafka.TopicOrderEvents, pub.sent[1].topic)
	require.Len(t, pub.sent[1].headers, 1)
	assert.Equal(t, kafka.HeaderEventType, string(pub.sent[1].headers[0].Key))
	assert.Equal(t, domain.EventOrderCheckedOut, string(pub.sent[1].headers[0].Value))
}

func TestReplayer_DryRunAndLimit(t *testing.T) {
	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{
		0: {
			consumerLetter(t, 0, domain.EventVariantWritten),
			consumerLetter(t, 1, domain.EventVariantWritten),
			consumerLetter(t, 2, domain.EventVariantWritten),
		},
	}}
	offsets := &fakeOffsets{
		partitions: []int32{0},
		oldest:     map[int32]int64{0: 0},
		newest:     map[int32]int64{0: 3},
	}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 2, idleTimeout: time.Second}
	stats, err := newTestReplayer(cfg, source, offsets, nil).run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{scanned: 2, replayed: 2}, stats)
}

func TestReplayer_EmptyPartitionAndIdle(t *testing.T) {
	offsets := &fakeOffsets{
		partitions: []int32{0, 1},
		oldest:     map[int32]int64{0: 4, 1: 0},
		newest:     map[int32]int64{0: 4, 1: 10},
	}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, idleTimeout: 20 * time.Millisecond}

	stats, err := newTestReplayer(cfg, &fakeSource{}, offsets, nil).run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.scanned)
}

func TestReplayer_Errors(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, execute: true, idleTimeout: time.Second}

	_, err := newTestReplayer(cfg, &fakeSource{}, &fakeOffsets{}, nil).run(context.Background())
	assert.ErrorContains(t, err, "publisher is required")

	_, err = newTestReplayer(cfg, &fakeSource{}, &fakeOffsets{err: errors.New("no metadata")}, &fakePublisher{}).run(context.Background())
	assert.ErrorContains(t, err, "no metadata")

	source := &fakeSource{byPartition: map[int32][]*sarama.ConsumerMessage{0: {outboxLetter(t, 0)}}}
	offsets := &fakeOffsets{partitions: []int32{0}, oldest: map[int32]int64{0: 0}, newest: map[int32]int64{0: 1}}
	stats, err := newTestReplayer(cfg, source, offsets, &fakePublisher{err: errors.New("broker down")}).run(context.Background())
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, stats.scanned)
}
