// util/notification_service.go

package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/model"
)

// NotificationService turns internal events into operator notifications.
// For now notifications only go to the log.
type NotificationService struct {
	unsubscribe []func()
	sent        func(kind string, fields ...zap.Field)
}

func NewNotificationService() *NotificationService {
	return &NotificationService{
		sent: func(kind string, fields ...zap.Field) {
			logger.Info("NOTIFICATION: "+kind, fields...)
		},
	}
}

// Attach subscribes the service to bus. Call Detach to stop.
func (n *NotificationService) Attach(bus *EventBus) {
	n.unsubscribe = append(n.unsubscribe,
		bus.Subscribe(EventCredentialsUpdated, n.NotifyCredentialsChange),
		bus.Subscribe(EventPermissionsInvalidated, n.NotifyPermissionsInvalidated),
		bus.Subscribe(EventSchemaRefreshed, n.NotifySchemaRefreshed),
	)
}

func (n *NotificationService) Detach() {
	for _, unsubscribe := range n.unsubscribe {
		unsubscribe()
	}
	n.unsubscribe = nil
}

func (n *NotificationService) NotifyCredentialsChange(ctx context.Context, event Event) error {
	switch creds := event.Payload.(type) {
	case *model.ExtendedCredentials:
		if creds == nil {
			n.sent("Semble credentials cleared")
			return nil
		}
		n.sent("Semble credentials updated",
			zap.String("environment", string(creds.Environment)),
			zap.String("baseURL", creds.BaseURL))
	case nil:
		n.sent("Semble credentials cleared")
	default:
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}
	return nil
}

func (n *NotificationService) NotifyPermissionsInvalidated(ctx context.Context, event Event) error {
	userID, ok := event.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}
	if userID == "" {
		n.sent("Permission cache cleared for all users")
		return nil
	}
	n.sent("Permission cache cleared", zap.String("userID", userID))
	return nil
}

func (n *NotificationService) NotifySchemaRefreshed(ctx context.Context, event Event) error {
	version, ok := event.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
	}
	n.sent("Schema refreshed", zap.String("version", version))
	return nil
}
