package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/Hikita1337/crashfeed/internal/event"
)

// Round publishes every collected round to the export topic. This is a
// side-channel for downstream consumers; the queryable buffer stays in
// memory.
type Round struct {
	producer sarama.SyncProducer
	topic    string
}

func NewRound(producer sarama.SyncProducer, topic string) *Round {
	return &Round{producer: producer, topic: topic}
}

func (r Round) Publish(ctx context.Context, collected event.RoundCollected) error {
	js, err := json.Marshal(collected.Round)
	if err != nil {
		return fmt.Errorf("json marshal round: %w", err)
	}

	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(collected.Round.ID, 10)),
		Value: sarama.ByteEncoder(js),
	})
	if err != nil {
		return fmt.Errorf("send round to kafka: %w", err)
	}

	return nil
}
