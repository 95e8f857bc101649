package shared

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UpdatesChannel is the pub/sub channel open screens listen on to refresh.
const UpdatesChannel = "pos-updates"

// Change event types.
const (
	EventCreditsUpdated = "credits-updated"
	EventSalesUpdated   = "sales-updated"
	EventStockUpdated   = "stock-updated"
)

// ChangeEvent is the payload published on UpdatesChannel.
type ChangeEvent struct {
	Type       string     `json:"type"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	SaleID     *uuid.UUID `json:"sale_id,omitempty"`
}

// Notifier broadcasts change events. Delivery is best effort: errors are
// logged and never returned to callers.
type Notifier struct {
	client *redis.Client
	logger *slog.Logger
}

// NewNotifier builds a Notifier. A nil client yields a no-op notifier.
func NewNotifier(client *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, logger: logger}
}

// Publish sends evt on UpdatesChannel.
func (n *Notifier) Publish(ctx context.Context, evt ChangeEvent) {
	if n == nil || n.client == nil {
		return
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := n.client.Publish(ctx, UpdatesChannel, raw).Err(); err != nil {
		n.logger.Debug("publish change event", slog.String("type", evt.Type), slog.Any("error", err))
	}
}

// Subscribe returns a channel of decoded events until ctx is cancelled. It
// returns once the subscription is confirmed by the server.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	out := make(chan ChangeEvent)
	if n == nil || n.client == nil {
		close(out)
		return out, nil
	}
	pubsub := n.client.Subscribe(ctx, UpdatesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
