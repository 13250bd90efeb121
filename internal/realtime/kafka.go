package realtime

import (
	"context"
	"fmt"
	"log"

	"livechat-backend/internal/dto"

	"github.com/IBM/sarama"
)

// KafkaMirror wraps a broker and copies every published event to a Kafka topic keyed by
// session id, so downstream consumers see one session's events in order on one partition.
// Subscriptions are served by the wrapped broker only.
type KafkaMirror struct {
	Broker
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = "livechat-backend"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

func NewKafkaMirror(inner Broker, brokers []string, topic string) (*KafkaMirror, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("realtime: kafka producer: %w", err)
	}
	return NewKafkaMirrorWithProducer(inner, producer, topic), nil
}

func NewKafkaMirrorWithProducer(inner Broker, producer sarama.SyncProducer, topic string) *KafkaMirror {
	return &KafkaMirror{
		Broker:   inner,
		producer: producer,
		topic:    topic,
	}
}

// Publish returns the wrapped broker's result. Mirror failures are logged and counted.
func (m *KafkaMirror) Publish(ctx context.Context, channel string, event dto.Event) error {
	if err := m.Broker.Publish(ctx, channel, event); err != nil {
		return err
	}
	// Session events go out on both the session channel and the feed; mirror them once.
	if channel != SessionsChannel {
		return nil
	}

	payload, err := encodeEvent(event)
	if err != nil {
		mirrorFailures.Inc()
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: m.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
		},
	}
	if _, _, err := m.producer.SendMessage(msg); err != nil {
		mirrorFailures.Inc()
		log.Printf("[realtime] kafka mirror %s for session %s: %v", event.Type, event.SessionID, err)
	}
	return nil
}

func (m *KafkaMirror) Close() error {
	perr := m.producer.Close()
	berr := m.Broker.Close()
	if perr != nil {
		return fmt.Errorf("realtime: close kafka producer: %w", perr)
	}
	return berr
}
