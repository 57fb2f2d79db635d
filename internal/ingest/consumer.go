package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
	"github.com/charles-chenzz/TradeVoyage/internal/rebuild"
	"github.com/charles-chenzz/TradeVoyage/internal/store"
)

const (
	// StreamName is the JetStream stream name for execution events.
	StreamName = "TRADEVOYAGE_EXECUTIONS"
	// SubjectPrefix is the NATS subject prefix for execution events.
	SubjectPrefix = "tradevoyage.executions."
	// SubjectWildcard subscribes to all execution subjects.
	SubjectWildcard = "tradevoyage.executions.>"
	// ConsumerName is the durable consumer name.
	ConsumerName = "tradevoyage-execution-consumer"
)

// Consumer subscribes to execution events via NATS JetStream and feeds
// them into the store, scheduling a position recompute per account.
type Consumer struct {
	nc        *nats.Conn
	repo      *store.Repository
	rebuilder *rebuild.Rebuilder
	logger    zerolog.Logger
}

// NewConsumer creates a new NATS execution consumer.
func NewConsumer(nc *nats.Conn, repo *store.Repository, rebuilder *rebuild.Rebuilder) *Consumer {
	return &Consumer{
		nc:        nc,
		repo:      repo,
		rebuilder: rebuilder,
		logger:    log.With().Str("component", "ingest").Logger(),
	}
}

// Start begins consuming execution events. Blocks until context is
// cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	js, err := jetstream.New(c.nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectWildcard},
		Storage:  jetstream.FileStorage,
		MaxBytes: 100 * 1024 * 1024, // 100MB
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	c.logger.Info().Msg("started consuming execution events from NATS JetStream")

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if err := c.handleMessage(ctx, msg); err != nil {
			c.logger.Error().Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to handle execution message")
			// NAK for redelivery on DB errors
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	c.logger.Info().Msg("stopped consuming execution events")
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) error {
	var event ExecutionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.logger.Warn().Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to unmarshal execution event, rejecting")
		// Terminate — malformed messages should not be redelivered
		msg.Term()
		return nil
	}

	if err := event.Validate(); err != nil {
		c.logger.Warn().Err(err).
			Str("exec_id", event.ExecID).
			Str("subject", msg.Subject()).
			Msg("invalid execution event, rejecting")
		msg.Term()
		return nil
	}

	exec, err := event.ToDomain()
	if err != nil {
		c.logger.Warn().Err(err).
			Str("exec_id", event.ExecID).
			Msg("failed to convert execution event, rejecting")
		msg.Term()
		return nil
	}

	if _, err := c.repo.GetOrCreateAccount(ctx, exec.AccountID, exec.Exchange); err != nil {
		return fmt.Errorf("get or create account: %w", err)
	}

	inserted, err := c.repo.InsertExecution(ctx, exec)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	if inserted {
		c.rebuilder.Trigger(exec.AccountID)
		c.logger.Info().
			Str("exec_id", exec.ExecID).
			Str("account_id", exec.AccountID).
			Str("exchange", string(exec.Exchange)).
			Str("symbol", exec.Symbol).
			Str("side", string(exec.Side)).
			Str("quantity", exec.Quantity.String()).
			Str("price", exec.Price.String()).
			Msg("ingested execution")
	} else {
		c.logger.Debug().
			Str("exec_id", exec.ExecID).
			Msg("duplicate execution, skipped")
	}

	return nil
}

// ConnectNATS connects to NATS with capped exponential backoff.
func ConnectNATS(urls string, credsFile, creds string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("tradevoyage"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	// Add credentials if configured
	if creds != "" {
		tmpFile, err := os.CreateTemp("", "nats-creds-*.creds")
		if err != nil {
			return nil, fmt.Errorf("create temp credentials file: %w", err)
		}
		if _, err := tmpFile.WriteString(creds); err != nil {
			tmpFile.Close()
			os.Remove(tmpFile.Name())
			return nil, fmt.Errorf("write credentials: %w", err)
		}
		tmpFile.Close()
		opts = append(opts, nats.UserCredentials(tmpFile.Name()))
	} else if credsFile != "" {
		opts = append(opts, nats.UserCredentials(credsFile))
	}

	var nc *nats.Conn
	var err error
	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second

	for attempt := 1; ; attempt++ {
		nc, err = nats.Connect(urls, opts...)
		if err == nil {
			log.Info().Str("url", nc.ConnectedUrl()).Int("attempt", attempt).Msg("connected to NATS")
			return nc, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
			Msg("failed to connect to NATS, retrying...")
		time.Sleep(backoff)

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// SubjectFor returns the NATS subject an execution for the given
// account and exchange is published on.
func SubjectFor(exchange domain.Exchange, accountID string) string {
	return SubjectPrefix + string(exchange) + "." + accountID
}
