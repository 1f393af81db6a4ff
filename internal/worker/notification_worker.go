package worker

import (
	"github.com/spec-kit/crm-engine/internal/service"
)

// StartNotificationWorker subscribes the notification service to the
// ticket, SLA and agreement events it relays. The dispatcher is
// synchronous, so this only wires handlers; no goroutine is started.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
