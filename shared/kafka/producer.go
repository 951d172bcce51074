// shared/kafka/producer.go
package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Producer wraps an async Kafka producer for order lifecycle events.
// Publishing never blocks the caller; delivery errors are logged from a
// background goroutine.
type Producer struct {
	producer sarama.AsyncProducer
	log      zerolog.Logger
}

func NewProducer(brokers []string, log zerolog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	go func() {
		for err := range producer.Errors() {
			log.Error().Err(err).Msg("failed to send Kafka message")
		}
	}()

	return &Producer{producer: producer, log: log}, nil
}

func (p *Producer) Publish(topic string, message map[string]interface{}) {
	bytes, err := json.Marshal(message)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("marshalling Kafka message")
		return
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
