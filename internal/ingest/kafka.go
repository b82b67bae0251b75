package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/betbot/traderelay/internal/domain"
	"github.com/betbot/traderelay/internal/metrics"
	"github.com/betbot/traderelay/internal/reconcile"
	"github.com/betbot/traderelay/pkg/logger"
)

// Reconciler is the part of reconcile.Reconciler the consumers need.
type Reconciler interface {
	Reconcile(ctx context.Context, ev domain.Event) (reconcile.Outcome, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	DLQTopic string
	MinBytes int
	MaxBytes int
}

// Header keys set on dead-lettered messages.
const (
	HeaderErrorKind = "x-relay-error-kind"
	HeaderError     = "x-relay-error"
	HeaderSource    = "x-relay-source"
)

// KafkaConsumer reconciles events from one topic. Messages are handled one at a
// time so events for an order keep their partition order. Every message is
// committed after handling; failures go to the DLQ topic when one is set.
type KafkaConsumer struct {
	r   messageReader
	dlq messageWriter
	rec Reconciler
	cfg KafkaConfig
}

func NewKafkaConsumer(cfg KafkaConfig, rec Reconciler) *KafkaConsumer {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	rd := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})

	var dlq messageWriter
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DLQTopic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
		}
	}
	return &KafkaConsumer{r: rd, dlq: dlq, rec: rec, cfg: cfg}
}

// Run blocks until ctx is cancelled or the reader fails for good.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	logger.Infof("kafka consumer started: topic=%s group=%s dlq=%q", c.cfg.Topic, c.cfg.GroupID, c.cfg.DLQTopic)
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		metrics.KafkaMessages.Add(1)

		// a fetched message runs to completion and is committed even when
		// shutdown starts meanwhile
		work := context.WithoutCancel(ctx)
		c.handle(work, m)
		commitCtx, cancel := context.WithTimeout(work, commitTimeout)
		err = c.r.CommitMessages(commitCtx, m)
		cancel()
		if err != nil {
			logger.Errorf("kafka commit failed at %s/%d@%d: %v", m.Topic, m.Partition, m.Offset, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

const commitTimeout = 5 * time.Second

func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message) {
	log := logger.WithFields(logrus.Fields{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
	})

	ev, err := Decode(m.Value)
	if err != nil {
		log.Warnf("undecodable event: %v", err)
		c.deadLetter(ctx, m, err, log)
		return
	}

	out, err := c.rec.Reconcile(ctx, ev)
	if err != nil {
		c.deadLetter(ctx, m, err, log)
		return
	}
	log.WithField("outcome", out.Kind).Debugf("kafka event %d handled", ev.OrderID)
}

func (c *KafkaConsumer) deadLetter(ctx context.Context, m kafka.Message, cause error, log *logrus.Entry) {
	if c.dlq == nil {
		return
	}
	headers := append([]kafka.Header(nil), m.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderErrorKind, Value: []byte(domain.KindOf(cause))},
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderSource, Value: []byte(m.Topic + "/" + strconv.Itoa(m.Partition) + "@" + strconv.FormatInt(m.Offset, 10))},
	)
	err := c.dlq.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Headers: headers})
	if err != nil {
		log.Errorf("dead-letter publish failed, message dropped: %v", err)
		return
	}
	metrics.KafkaDLQ.Add(1)
}

func (c *KafkaConsumer) Close() error {
	var errs []error
	if c.dlq != nil {
		errs = append(errs, c.dlq.Close())
	}
	errs = append(errs, c.r.Close())
	return errors.Join(errs...)
}
