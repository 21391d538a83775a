package services

import (
	"context"

	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
)

// EngineNotifier broadcasts engine milestones for dashboard consumers.
// Notifications are fire-and-forget.
type EngineNotifier interface {
	PassCompleted(ctx context.Context, optimized, actions int)
	ActionExecuted(ctx context.Context, campaignID, action string, executed bool)
	SafetyTriggered(ctx context.Context, kind, detail string)
	TestCompleted(ctx context.Context, testID, winner string)
	SyncCompleted(ctx context.Context, updated int)
}

// NewEngineNotifier returns a redis-backed notifier, or a no-op one when the
// event bus is absent.
func NewEngineNotifier(bus redisclient.EventBus, baseLog *logger.Logger) EngineNotifier {
	if bus == nil {
		return nopNotifier{}
	}
	return &redisNotifier{
		bus: bus,
		log: baseLog.With("service", "EngineNotifier"),
	}
}

type redisNotifier struct {
	bus redisclient.EventBus
	log *logger.Logger
}

func (n *redisNotifier) publish(ctx context.Context, eventType string, payload map[string]any) {
	evt := redisclient.Event{Type: eventType, Payload: payload}
	if err := n.bus.Publish(ctx, evt); err != nil {
		n.log.Warn("event publish failed", "type", eventType, "error", err)
	}
}

func (n *redisNotifier) PassCompleted(ctx context.Context, optimized, actions int) {
	n.publish(ctx, redisclient.EventPassCompleted, map[string]any{
		"optimized": optimized,
		"actions":   actions,
	})
}

func (n *redisNotifier) ActionExecuted(ctx context.Context, campaignID, action string, executed bool) {
	n.publish(ctx, redisclient.EventActionExecuted, map[string]any{
		"campaign_id": campaignID,
		"action":      action,
		"executed":    executed,
	})
}

func (n *redisNotifier) SafetyTriggered(ctx context.Context, kind, detail string) {
	n.publish(ctx, redisclient.EventSafetyTriggered, map[string]any{
		"kind":   kind,
		"detail": detail,
	})
}

func (n *redisNotifier) TestCompleted(ctx context.Context, testID, winner string) {
	n.publish(ctx, redisclient.EventTestCompleted, map[string]any{
		"test_id": testID,
		"winner":  winner,
	})
}

func (n *redisNotifier) SyncCompleted(ctx context.Context, updated int) {
	n.publish(ctx, redisclient.EventSyncCompleted, map[string]any{
		"updated": updated,
	})
}

type nopNotifier struct{}

func (nopNotifier) PassCompleted(context.Context, int, int)              {}
func (nopNotifier) ActionExecuted(context.Context, string, string, bool) {}
func (nopNotifier) SafetyTriggered(context.Context, string, string)      {}
func (nopNotifier) TestCompleted(context.Context, string, string)        {}
func (nopNotifier) SyncCompleted(context.Context, int)                   {}
