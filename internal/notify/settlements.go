package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trenchlabs/trenchd/internal/domain"
)

// settlementEvent mirrors the envelope the feed service publishes on the
// "settlements" bus channel.
type settlementEvent struct {
	Event      string `json:"event"`
	MarketID   uint64 `json:"market_id"`
	Token      string `json:"token"`
	Outcome    string `json:"outcome"`
	FinalPrice string `json:"final_price"`
}

// SettlementWatcher subscribes to settlement events on the signal bus and
// forwards them to the notifier as "market_settled" notifications.
type SettlementWatcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewSettlementWatcher creates a watcher bridging the bus to the notifier.
func NewSettlementWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *SettlementWatcher {
	return &SettlementWatcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "settlement_watcher")),
	}
}

// Run consumes settlement events until the context is cancelled. Delivery
// failures are logged and do not stop the watcher.
func (w *SettlementWatcher) Run(ctx context.Context) error {
	msgCh, err := w.bus.Subscribe(ctx, "settlements")
	if err != nil {
		return fmt.Errorf("notify: subscribe settlements: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		}
	}
}

func (w *SettlementWatcher) handle(ctx context.Context, data []byte) {
	var evt settlementEvent
	if err := json.Unmarshal(data, &evt); err != nil || evt.Event != "market_settled" {
		return
	}

	title := fmt.Sprintf("Market %d settled: %s", evt.MarketID, evt.Outcome)
	message := fmt.Sprintf("Token: %s\nOutcome: %s\nFinal price (wei): %s",
		evt.Token, evt.Outcome, evt.FinalPrice)

	if err := w.notifier.Notify(ctx, "market_settled", title, message); err != nil {
		w.logger.WarnContext(ctx, "settlement notification failed",
			slog.Uint64("market_id", evt.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
