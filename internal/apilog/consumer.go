package apilog

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/ai-roleplay/internal/store/rabbitmq"
)

// RetryPublisher is satisfied by *rabbitmq.Publisher.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

const (
	DefaultMaxAttempts = 5
	baseRetryDelay     = 2 * time.Second
	maxRetryDelay      = time.Minute
)

// Consumer stores queued log rows. Rows that fail to store are parked on the
// retry queue with backoff, then dead-lettered once attempts run out.
type Consumer struct {
	rec         Recorder
	retry       RetryPublisher
	maxAttempts int
	log         zerolog.Logger
}

func NewConsumer(rec Recorder, retry RetryPublisher, maxAttempts int, log zerolog.Logger) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Consumer{rec: rec, retry: retry, maxAttempts: maxAttempts, log: log}
}

func retryDelay(attempt int) time.Duration {
	d := baseRetryDelay << attempt
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Handle settles d exactly once.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var entry APILog
	if err := json.Unmarshal(d.Body, &entry); err != nil || entry.APIType == "" {
		c.log.Warn().Err(err).Msg("bad api log message")
		_ = d.Nack(false, false)
		return
	}
	entry.ID = 0

	err := c.rec.Record(ctx, &entry)
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Error().Err(err).Msg("ack failed")
		}
		return
	}

	attempt := rabbitmq.Attempt(d)
	l := c.log.With().Err(err).Int("attempt", attempt).Str("request_id", entry.RequestID).Logger()
	if attempt+1 >= c.maxAttempts || c.retry == nil {
		l.Error().Msg("api log dropped to dead-letter queue")
		_ = d.Nack(false, false)
		return
	}
	if perr := c.retry.PublishRetry(ctx, d.Body, attempt+1, retryDelay(attempt)); perr != nil {
		l.Error().AnErr("publish_err", perr).Msg("retry publish failed")
		_ = d.Nack(false, true)
		return
	}
	l.Warn().Msg("api log store failed, retry scheduled")
	_ = d.Ack(false)
}
