package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// DefaultClientID попадает в логи брокера и в квоты Kafka.
const DefaultClientID = "shop-service"

// Producer публикует события магазина. События одного заказа или товара
// идут с одним ключом и поэтому попадают в одну партицию по порядку.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// ProducerOption настраивает sarama.Config перед созданием producer-а.
type ProducerOption func(*sarama.Config)

// WithClientID переопределяет client.id, например для dlq-replay.
func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

// NewProducer создаёт синхронный idempotent producer.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

func producerConfig(opts ...ProducerOption) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = DefaultClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 200 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// партиция считается по ключу агрегата
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // обязательно для idempotent producer

	for _, opt := range opts {
		opt(config)
	}
	return config
}

// Route описывает topic и ключ outbox-сообщения.
type Route struct {
	Topic string
	Key   string
}

// RouteFor выбирает topic по типу агрегата и ключ партиции.
// Ключом служит идентификатор заказа или товара, сообщения без агрегата
// ключуются своим outbox ID и распределяются равномерно.
func RouteFor(msg domain.OutboxMessage) Route {
	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return Route{Topic: TopicFor(msg.AggregateType), Key: key}
}

// PublishOutbox публикует outbox-сообщение в envelope.
// Непустой topic заменяет маршрут по агрегату, ключ при этом сохраняется.
func (p *Producer) PublishOutbox(msg domain.OutboxMessage, topic string) error {
	route := RouteFor(msg)
	if topic != "" {
		route.Topic = topic
	}

	headers := []sarama.RecordHeader{header(HeaderEventType, msg.EventType)}
	if msg.AggregateType != "" {
		headers = append(headers, header(HeaderAggregateType, msg.AggregateType))
	}
	if msg.ID != "" {
		headers = append(headers, header(HeaderOutboxID, msg.ID))
	}

	return p.PublishEvent(route.Topic, route.Key, NewEnvelope(msg), headers...)
}

// PublishEvent сериализует событие в JSON и публикует его в Kafka.
func (p *Producer) PublishEvent(topic string, key string, event any, headers ...sarama.RecordHeader) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Headers:   headers,
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	fields := log.Fields{"topic": topic, "key": key}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("failed to send message to kafka")
		return fmt.Errorf("send to %s: %w", topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}
