package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dreadwatch/dreadwatch/internal/config"
	"github.com/dreadwatch/dreadwatch/internal/store"
)

// Event describes one area rising to a notifiable dread level.
type Event struct {
	AreaID        string    `json:"area_id"`
	DreadLevel    int       `json:"dread_level"`
	PreviousLevel int       `json:"previous_level"`
	At            time.Time `json:"at"`
}

// Notifier polls the rank store and delivers webhook notifications when an
// area rises to MinLevel or above. Deliveries are asynchronous and
// best-effort; a failed webhook is logged and dropped.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	store    *store.Store
	webhooks []config.WebhookConfig
	minLevel int
	cooldown time.Duration
	interval time.Duration

	mu       sync.Mutex
	prev     map[string]int       // last observed level per area
	lastFire map[string]time.Time // last notification time per area

	client *http.Client
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Notifier from the notify configuration. With no webhooks
// configured, evaluation becomes a no-op.
func New(st *store.Store, cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		store:    st,
		webhooks: cfg.Webhooks,
		minLevel: cfg.MinLevel,
		cooldown: cfg.Cooldown,
		interval: cfg.Interval,
		prev:     make(map[string]int),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// Run polls for level changes until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	if len(n.webhooks) == 0 {
		return
	}

	t := time.NewTicker(n.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := n.evaluate(ctx); err != nil {
				slog.Error("notify: evaluation failed", "err", err)
			}
		}
	}
}

// evaluate compares the current elevated list against the previous
// observation and fires events for areas that rose to minLevel or above.
func (n *Notifier) evaluate(ctx context.Context) error {
	elevated, err := n.store.ListElevatedDreadLevels(ctx)
	if err != nil {
		return fmt.Errorf("notify: list elevated: %w", err)
	}

	current := make(map[string]int, len(elevated))
	for _, l := range elevated {
		current[l.AreaID] = l.Level
	}

	now := n.now()

	n.mu.Lock()
	var fires []Event
	for area, level := range current {
		prev := n.prev[area]
		if level < n.minLevel || level <= prev {
			continue
		}
		if now.Sub(n.lastFire[area]) < n.cooldown {
			continue
		}
		n.lastFire[area] = now
		fires = append(fires, Event{
			AreaID:        area,
			DreadLevel:    level,
			PreviousLevel: prev,
			At:            now,
		})
	}
	n.prev = current
	n.mu.Unlock()

	for _, ev := range fires {
		slog.Info("notify: area rose to notifiable dread level",
			"area", ev.AreaID,
			"level", ev.DreadLevel,
			"previous", ev.PreviousLevel,
		)
		go n.deliver(ev)
	}
	return nil
}
