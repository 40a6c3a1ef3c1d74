package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/segmentio/kafka-go"
)

// KafkaReader is the subset of *kafka.Reader the source uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSource.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// MaxBatch bounds the records returned by one Fetch.
	MaxBatch int
	// Wait bounds how long one Fetch waits for messages.
	Wait time.Duration
}

// KafkaSource consumes JSON records from a topic. Each Fetch drains what
// arrives within Wait, up to MaxBatch messages, and commits them.
type KafkaSource struct {
	reader   KafkaReader
	topic    string
	maxBatch int
	wait     time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   log.Logger
}

// NewKafkaReader builds a consumer-group reader for cfg.
func NewKafkaReader(cfg *KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  cfg.Wait,
	})
}

// NewKafkaSource wraps reader. Malformed messages are logged and skipped.
func NewKafkaSource(reader KafkaReader, cfg *KafkaConfig, loc *time.Location, logger log.Logger) *KafkaSource {
	if logger == nil {
		logger = log.Nop()
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 500
	}
	wait := cfg.Wait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &KafkaSource{
		reader:   reader,
		topic:    cfg.Topic,
		maxBatch: maxBatch,
		wait:     wait,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Name implements Source.
func (s *KafkaSource) Name() string { return "kafka:" + s.topic }

// Fetch implements Source.
func (s *KafkaSource) Fetch(ctx context.Context) ([]Record, error) {
	fctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	now := s.now()
	var (
		recs []Record
		msgs []kafka.Message
	)
	for len(msgs) < s.maxBatch {
		m, err := s.reader.FetchMessage(fctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if len(msgs) > 0 {
				break
			}
			return nil, fmt.Errorf("fetch %s: %w", s.Name(), err)
		}
		msgs = append(msgs, m)

		var rec Record
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			s.logger.Warn(ctx, "skipping malformed feed message",
				"topic", m.Topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"err", err,
			)
			continue
		}
		rec.normalize(s.loc, now)
		if rec.Content == "" {
			continue
		}
		recs = append(recs, rec)
	}

	if len(msgs) > 0 {
		if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
			return recs, fmt.Errorf("commit %s: %w", s.Name(), err)
		}
	}
	return recs, nil
}

// Close closes the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
