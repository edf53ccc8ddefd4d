// Package eventbus publishes each strategy's Stats record to NATS
// JetStream after a successful decorated run. It is purely observational
// — no component inside this service reads it back; it exists so
// external dashboards and alerting can follow indexing progress without
// polling the control API.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/0xkanth/rangeindexer/pkg/indexing"
)

const (
	streamName           = "INDEXER_STATS"
	streamSubjectPattern = "INDEXER.STATS.*"
	streamCreateTimeout  = 10 * time.Second
)

// statEvent is the JSON wire shape published for each Stats record.
type statEvent struct {
	Strategy  string    `json:"strategy"`
	FromBlock uint64    `json:"from_block"`
	ToBlock   uint64    `json:"to_block"`
	LogsFound int       `json:"logs_found"`
	Rows      uint64    `json:"rows_written"`
	TookMs    int64     `json:"took_ms"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher publishes Stats events to NATS JetStream, deduplicated by
// message ID so a retried publish after a transient failure never
// double-counts on the consuming side.
type Publisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewPublisher connects to natsURL and ensures the INDEXER_STATS stream
// exists, retaining events for persistDuration.
func NewPublisher(natsURL string, persistDuration time.Duration, logger zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("rangeindexer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPattern},
		MaxAge:     persistDuration,
		Storage:    jetstream.FileStorage,
		Duplicates: 20 * time.Minute,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stats stream: %w", err)
	}

	logger.Info().Str("stream", streamName).Str("subjects", streamSubjectPattern).Msg("stats event bus initialized")

	return &Publisher{js: js, nc: nc, logger: logger}, nil
}

// Publish publishes one Stats record for strategyName covering
// [from, to]. Failures are logged, not returned: this bus must never be
// allowed to slow down or abort indexing.
func (p *Publisher) Publish(strategyName string, stats indexing.Stats, from, to uint64) {
	subject := fmt.Sprintf("INDEXER.STATS.%s", strategyName)
	msgID := fmt.Sprintf("%s-%d-%d", strategyName, from, to)

	data, err := json.Marshal(statEvent{
		Strategy:  strategyName,
		FromBlock: from,
		ToBlock:   to,
		LogsFound: stats.LogsFound,
		Rows:      stats.RowsWritten,
		TookMs:    stats.Took.Milliseconds(),
		EmittedAt: time.Now(),
	})
	if err != nil {
		p.logger.Error().Err(err).Str("strategy", strategyName).Msg("failed to marshal stats event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Str("msg_id", msgID).Msg("failed to publish stats event")
	}
}

// Close closes the underlying NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Healthy reports whether the NATS connection is currently up.
func (p *Publisher) Healthy() bool {
	return p.nc != nil && p.nc.IsConnected()
}
