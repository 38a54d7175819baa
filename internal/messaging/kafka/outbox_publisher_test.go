package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func testOutboxMessage(aggregateType string, payload []byte) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: aggregateType,
		AggregateID:   "17",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       payload,
	}
}

func TestOutboxPublisher_RoutesByAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		aggregateType string
		eventType     string
		wantTopic     string
	}{
		{name: "order", aggregateType: domain.AggregateOrder, eventType: domain.EventOrderCheckedOut, wantTopic: TopicOrderEvents},
		{name: "product", aggregateType: domain.AggregateProduct, eventType: domain.EventVariantWritten, wantTopic: TopicCatalogEvents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockProducer := mocks.NewSyncProducer(t, nil)
			mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
				if msg.Topic != tt.wantTopic {
					t.Errorf("expected topic %s, got %s", tt.wantTopic, msg.Topic)
				}
				key, _ := msg.Key.Encode()
				if string(key) != "17" {
					t.Errorf("expected aggregate id as key, got %s", key)
				}
				value, _ := msg.Value.Encode()
				var envelope Envelope
				if err := json.Unmarshal(value, &envelope); err != nil {
					t.Errorf("value is not an envelope: %v", err)
				}
				if envelope.EventType != tt.eventType {
					t.Errorf("unexpected event type %s", envelope.EventType)
				}
				return nil
			})

			publisher := NewOutboxPublisher(&Producer{
				producer: mockProducer,
				logger:   log.WithField("component", "kafka-outbox-publisher-test"),
			}, "")

			msg := testOutboxMessage(tt.aggregateType, []byte(`{"product_id":1}`))
			msg.EventType = tt.eventType
			if err := publisher.Publish(msg); err != nil {
				t.Fatalf("publish failed: %v", err)
			}
			if err := mockProducer.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestOutboxPublisher_FixedTopic(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "shop.audit" {
			t.Errorf("fixed topic ignored: %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "17" {
			t.Errorf("fixed topic must keep aggregate key, got %s", key)
		}
		return nil
	})

	publisher := NewOutboxPublisher(&Producer{producer: mockProducer, logger: log.WithField("test", "fixed")}, "shop.audit")
	if err := publisher.Publish(testOutboxMessage(domain.AggregateProduct, nil)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(&Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}, TopicOrderEvents)

	if err := publisher.Publish(testOutboxMessage(domain.AggregateOrder, []byte(`{}`))); err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
