package worker

import (
	"github.com/spec-kit/sla-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to domain
// events.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
