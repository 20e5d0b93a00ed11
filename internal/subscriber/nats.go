// Package subscriber consumes payment confirmations and clears the carts that were checked out with them.
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

// CartClearer empties the cart of a principal.
type CartClearer interface {
	Clear(ctx context.Context, who identity.Identity) (*service.CartDto, error)
}

// ackableMsg is the part of jetstream.Msg the handler needs.
type ackableMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

// Start creates the durable consumer and runs the configured number of workers until ctx is done.
func Start(ctx context.Context, js jetstream.JetStream, subscriberCfg config.SubscriberConfig, carts CartClearer, logger *slog.Logger) error {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subscriberCfg.Subject,
		Durable:       subscriberCfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, subscriberCfg.Stream, cfg)
	if err != nil {
		return err
	}
	logger = logger.With("component", "payment_subscriber")
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < subscriberCfg.Workers; i++ {
		g.Go(func() error {
			return runWorker(gCtx, consumer, subscriberCfg, carts, logger)
		})
	}
	return g.Wait()
}

func runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig, carts CartClearer, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
			if err != nil {
				if errors.Is(err, nats.ErrTimeout) {
					continue
				}
				logger.Error("failed to fetch messages", "error", err)
				time.Sleep(cfg.Interval)
				continue
			}
			for msg := range batch.Messages() {
				handleMessage(ctx, msg, carts, logger)
			}
		}
	}
}

// handleMessage clears the cart named by an OrderPaidEvent. Malformed events are terminated so they are not
// redelivered; a failed clear is redelivered.
func handleMessage(ctx context.Context, msg ackableMsg, carts CartClearer, logger *slog.Logger) {
	if msg == nil {
		logger.Error("received nil message")
		return
	}
	var event events.OrderPaidEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil || event.PrincipalID == "" {
		logger.Error("malformed payment event", "error", err, "subject", msg.Subject())
		if err := msg.Term(); err != nil {
			logger.Error("failed to terminate message", "error", err)
		}
		return
	}

	if _, err := carts.Clear(ctx, identity.User(event.PrincipalID)); err != nil {
		logger.Error("failed to clear paid cart", "order_id", event.OrderID, "principal", event.PrincipalID, "error", err)
		if err := msg.Nak(); err != nil {
			logger.Error("failed to nack message", "error", err)
		}
		return
	}
	logger.Info("cart cleared after payment",
		slog.String("order_id", event.OrderID),
		slog.String("principal", event.PrincipalID),
		slog.String("paid_at", event.PaidAt.Format(time.RFC3339)))

	if err := msg.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
	}
}
