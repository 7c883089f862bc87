// Package jobs hands reindex requests to whoever runs them: a goroutine in
// the API process, or a worker reading the Valkey stream.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/nightcrawler/pkg/models"
)

const (
	StreamName = "nightcrawler:reindex"
	GroupName  = "nightcrawler-workers"
)

// Trigger values recorded on each message.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// ReindexMessage is the payload enqueued for worker processing.
type ReindexMessage struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   string    `json:"project_id"`
	BranchName  string    `json:"branch_name"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewReindexMessage stamps a request for ref with a fresh id.
func NewReindexMessage(ref models.ProjectRef, trigger string) ReindexMessage {
	return ReindexMessage{
		ID:          uuid.New(),
		ProjectID:   ref.ProjectID,
		BranchName:  ref.BranchName,
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}
}

func (m ReindexMessage) Ref() models.ProjectRef {
	return models.ProjectRef{ProjectID: m.ProjectID, BranchName: m.BranchName}
}

// Enqueuer publishes reindex requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg ReindexMessage) (string, error)
}

// Producer enqueues reindex requests to the Valkey stream.
type Producer struct {
	client valkey.Client
}

func NewProducer(client valkey.Client) *Producer {
	return &Producer{client: client}
}

func (p *Producer) Enqueue(ctx context.Context, msg ReindexMessage) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	resp := p.client.Do(ctx, p.client.B().Xadd().
		Key(StreamName).Id("*").
		FieldValue().FieldValue("data", string(data)).
		Build())
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	id, err := resp.ToString()
	if err != nil {
		return "", fmt.Errorf("parse xadd response: %w", err)
	}
	return id, nil
}

// Consumer reads reindex requests from the Valkey stream.
type Consumer struct {
	client     valkey.Client
	consumerID string
	logger     *slog.Logger
}

func NewConsumer(client valkey.Client, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, consumerID: consumerID, logger: logger}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(StreamName).Group(GroupName).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		// BUSYGROUP means group already exists
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create: %w", err)
		}
	}
	return nil
}

// Consume blocks reading messages and passes each to handler. Pending
// messages left by a previous run of this consumer are handled first.
//
// Every message is acked whatever the handler returns. A failed reindex
// leaves the index half built and is repaired by the next request for the
// branch, not by redelivery.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, ReindexMessage) error) error {
	c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(GroupName, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(StreamName).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout is normal for BLOCK reads
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				c.processMessage(ctx, msg, handler)
			}
		}
	}
}

// drainPending reads messages previously delivered to this consumer but not acked.
func (c *Consumer) drainPending(ctx context.Context, handler func(context.Context, ReindexMessage) error) {
	resp := c.client.Do(ctx, c.client.B().Xreadgroup().
		Group(GroupName, c.consumerID).
		Count(10).
		Streams().Key(StreamName).Id("0").
		Build())

	if err := resp.Error(); err != nil {
		c.logger.Warn("drain pending failed", slog.String("error", err.Error()))
		return
	}

	results, err := resp.AsXRead()
	if err != nil {
		return
	}

	for _, messages := range results {
		for _, msg := range messages {
			c.logger.Info("recovering pending message", slog.String("id", msg.ID))
			c.processMessage(ctx, msg, handler)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg valkey.XRangeEntry, handler func(context.Context, ReindexMessage) error) {
	defer c.ack(ctx, msg.ID)

	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("message missing data field", slog.String("id", msg.ID))
		return
	}

	var reindexMsg ReindexMessage
	if err := json.Unmarshal([]byte(dataStr), &reindexMsg); err != nil {
		c.logger.Error("unmarshal message", slog.String("error", err.Error()), slog.String("id", msg.ID))
		return
	}

	if err := handler(ctx, reindexMsg); err != nil {
		c.logger.Error("handle message", slog.String("error", err.Error()),
			slog.String("id", msg.ID),
			slog.String("request_id", reindexMsg.ID.String()),
			slog.String("project_id", reindexMsg.ProjectID),
			slog.String("branch", reindexMsg.BranchName))
	}
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(context.WithoutCancel(ctx), c.client.B().Xack().
		Key(StreamName).Group(GroupName).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed", slog.String("error", err.Error()), slog.String("id", msgID))
	}
}
