package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// startInventoryConsumer подписывает агрегатор на события записи вариантов.
// Ошибка старта не фатальна: агрегат всё равно пересчитывается синхронно после commit.
func startInventoryConsumer(ctx context.Context, cfg Config, recomputer kafka.InventoryRecomputer, dlq *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	brokerList := splitBrokers(cfg.KafkaBrokers)
	if len(brokerList) == 0 {
		return nil
	}

	handler := kafka.NewInventoryHandler(recomputer, logger.WithField("component", "inventory-consumer"))
	consumer, err := kafka.NewConsumerWithDLQ(brokerList, cfg.KafkaConsumerGroup, []string{kafka.TopicCatalogEvents}, handler, dlq, cfg.KafkaMaxRetries)
	if err != nil {
		logger.WithError(err).Warn("failed to create inventory consumer")
		return nil
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start inventory consumer")
		_ = consumer.Stop()
		return nil
	}
	return consumer
}

func splitBrokers(brokers string) []string {
	out := make([]string, 0, 3)
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
