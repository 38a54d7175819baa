// Команда dlq-replay перечитывает shop.dlq и возвращает события в их исходные topic-и.
// По умолчанию работает в dry-run и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// errSkip помечает сообщение DLQ, которое не подлежит повтору (чужой формат или отфильтровано).
var errSkip = errors.New("skip")

type config struct {
	brokers     []string
	sourceTopic string
	eventType   string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     json.RawMessage
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// publisher — подмножество *kafka.Producer.
type publisher interface {
	PublishEvent(topic string, key string, event any, headers ...sarama.RecordHeader) error
	Close() error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error {
	return s.consumer.Close()
}

type replayer struct {
	cfg       config
	client    offsetClient
	source    partitionSource
	publisher publisher
	logger    *log.Entry
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.WithError(err).Error("invalid arguments")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("connect kafka")
	}
	defer r.close()

	stats, err := r.run(ctx)
	if err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
	r.logger.WithFields(log.Fields{
		"execute":  cfg.execute,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.eventType, "event-type", "", "replay only this event type, e.g. catalog.variant_written")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	for _, b := range strings.Split(brokersRaw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.brokers = append(cfg.brokers, b)
		}
	}
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.eventType = strings.TrimSpace(cfg.eventType)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func connect(cfg config) (*replayer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	r := &replayer{
		cfg:    cfg,
		client: client,
		source: saramaSource{consumer: consumer},
		logger: log.WithField("component", "dlq-replay"),
	}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, kafka.WithClientID("shop-dlq-replay"))
		if err != nil {
			r.close()
			return nil, err
		}
		r.publisher = producer
	}
	return r, nil
}

func (r *replayer) close() {
	if r.publisher != nil {
		_ = r.publisher.Close()
	}
	if r.source != nil {
		_ = r.source.Close()
	}
	if r.client != nil {
		_ = r.client.Close()
	}
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.cfg.execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.scanned >= r.cfg.limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.cfg.limit-total.scanned)
		total.scanned += stats.scanned
		total.replayed += stats.replayed
		total.skipped += stats.skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// replayPartition читает партицию от старейшего offset до отметки newest, зафиксированной на старте.
func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case <-time.After(r.cfg.idleTimeout):
			return stats, nil
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			stats.scanned++

			replay, err := extractReplay(msg, r.cfg.eventType)
			if err != nil {
				stats.skipped++
				if !errors.Is(err, errSkip) {
					r.logger.WithError(err).WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset}).Warn("skip malformed dlq message")
				}
			} else if err := r.replay(replay, msg); err != nil {
				return stats, err
			} else {
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) replay(msg replayMessage, origin *sarama.ConsumerMessage) error {
	fields := log.Fields{
		"offset":       origin.Offset,
		"partition":    origin.Partition,
		"target_topic": msg.topic,
		"event_type":   msg.eventType,
		"key":          msg.key,
	}
	if !r.cfg.execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}

	// Счётчик попыток не переносится: повтор начинает retry-цикл consumer-а заново.
	headers := []sarama.RecordHeader{{Key: []byte(kafka.HeaderEventType), Value: []byte(msg.eventType)}}
	if err := r.publisher.PublishEvent(msg.topic, msg.key, msg.value, headers...); err != nil {
		return fmt.Errorf("replay offset %d: %w", origin.Offset, err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}

// extractReplay распознаёт два формата DLQ: письмо consumer-а (kafka.DeadLetter)
// и outbox-событие, не доставленное воркером (outbox.DeadLetterPayload внутри envelope).
func extractReplay(msg *sarama.ConsumerMessage, eventType string) (replayMessage, error) {
	var letter kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err == nil && letter.OriginalValue != "" {
		original := []byte(letter.OriginalValue)
		if !json.Valid(original) {
			return replayMessage{}, errors.New("dead letter carries non-json value")
		}
		var envelope kafka.Envelope
		_ = json.Unmarshal(original, &envelope)

		topic := letter.OriginalTopic
		if topic == "" {
			topic = kafka.TopicFor(envelope.AggregateType)
		}
		return filtered(replayMessage{
			topic:     topic,
			key:       letter.OriginalKey,
			eventType: envelope.EventType,
			value:     original,
		}, eventType)
	}

	var envelope kafka.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, errSkip
	}
	var dead outbox.DeadLetterPayload
	if err := json.Unmarshal(envelope.Payload, &dead); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(dead.Payload) == 0 {
		return replayMessage{}, errors.New("outbox dead letter has no original payload")
	}

	restored := kafka.Envelope{
		ID:            dead.OutboxID,
		AggregateType: dead.AggregateType,
		AggregateID:   dead.AggregateID,
		EventType:     dead.EventType,
		Payload:       dead.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(restored)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := restored.AggregateID
	if key == "" {
		key = restored.ID
	}
	return filtered(replayMessage{
		topic:     kafka.TopicFor(restored.AggregateType),
		key:       key,
		eventType: restored.EventType,
		value:     value,
	}, eventType)
}

func filtered(msg replayMessage, eventType string) (replayMessage, error) {
	if eventType != "" && msg.eventType != eventType {
		return replayMessage{}, errSkip
	}
	return msg, nil
}
