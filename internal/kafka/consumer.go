package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"registration-gateway/internal/models"
)

// ProofConsumer ingests payment-proof events produced by the external upload
// service; each event flips a manual-verification group from pending to
// processing.
type ProofConsumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
}

func NewProofConsumer(brokers []string, groupID string) (*ProofConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &ProofConsumer{
		consumer: consumer,
		topics:   []string{"payment-proofs"},
	}, nil
}

func (c *ProofConsumer) ConsumeProofs(ctx context.Context, handler func(*models.ProofEvent) error) error {
	consumerHandler := &proofConsumerHandler{handler: handler}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
				log.Printf("Error consuming messages: %v", err)
				return err
			}
		}
	}
}

func (c *ProofConsumer) Close() error {
	return c.consumer.Close()
}

type proofConsumerHandler struct {
	handler func(*models.ProofEvent) error
}

func (h *proofConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *proofConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *proofConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event models.ProofEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			log.Printf("Failed to unmarshal message: %v", err)
			continue
		}

		if err := h.handler(&event); err != nil {
			log.Printf("Failed to handle proof event: %v", err)
			continue
		}

		session.MarkMessage(message, "")
	}

	return nil
}
