package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"orderviews/internal/engine"
)

// Consumer reads order events from a Kafka topic through a consumer group
// and feeds them to the engine's consume command. Messages are committed
// only after the engine has handled them, giving at-least-once delivery;
// the engine's result (success or structured failure) is terminal either
// way, so handled messages are never redelivered on purpose.
type Consumer struct {
	cfg     Config
	engine  *engine.Engine
	logger  *slog.Logger
	readers []*kafka.Reader
}

// Config holds consumer configuration.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	Workers        int           // reader goroutines; Kafka assigns partitions across them
	BatchSize      int           // max messages fetched per poll
	CommitInterval time.Duration // async offset commit cadence; 0 commits synchronously
}

// New creates a consumer with one reader per worker, all in the same group.
func New(cfg Config, eng *engine.Engine, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	readers := make([]*kafka.Reader, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.GroupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			QueueCapacity:  cfg.BatchSize,
			CommitInterval: cfg.CommitInterval,
		}))
	}

	return &Consumer{
		cfg:     cfg,
		engine:  eng,
		logger:  logger.With("component", "consumer", "topic", cfg.Topic, "group_id", cfg.GroupID),
		readers: readers,
	}, nil
}

// Start runs one consume loop per reader and blocks until the context is
// cancelled or every loop has stopped.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer_starting", "workers", len(c.readers))

	var wg sync.WaitGroup
	for i, reader := range c.readers {
		wg.Add(1)
		go func(worker int, r *kafka.Reader) {
			defer wg.Done()
			c.run(ctx, worker, r)
		}(i, reader)
	}

	wg.Wait()
	c.logger.Info("consumer_stopped")
	return ctx.Err()
}

func (c *Consumer) run(ctx context.Context, worker int, reader *kafka.Reader) {
	logger := c.logger.With("worker", worker)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				logger.Info("worker_stopping")
				return
			}
			logger.Error("fetch_failed", "error", err)
			time.Sleep(time.Second) // back off on broker errors
			continue
		}

		c.processMessage(ctx, logger, msg)

		// Commit even when the engine reported a failure result: the order
		// was rejected deterministically and redelivery would only double
		// count the error.
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error("commit_failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, logger *slog.Logger, msg kafka.Message) {
	start := time.Now()

	result := c.engine.Execute(ctx, engine.Command{
		Kind:  engine.CmdConsume,
		Order: msg.Value,
	})

	if !result.Success {
		logger.Warn("order_consume_failed",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"order_id", result.OrderID,
			"error", result.Error,
		)
		return
	}

	logger.Debug("order_consumed",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"order_id", result.OrderID,
		"processing_ms", time.Since(start).Milliseconds(),
	)
}

// Close closes every reader.
func (c *Consumer) Close() error {
	var firstErr error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
