package handlers

import (
	"go.uber.org/zap"

	"github.com/Freeeeeet/coach_marketplace/internal/controller/state"
	"github.com/Freeeeeet/coach_marketplace/internal/service"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	identity      *service.IdentityService
	scheduling    *service.SchedulingService
	meetings      *service.MeetingService
	messaging     *service.MessagingService
	notifications *service.NotificationService
	dialogs       *state.Manager
	adminPassword string
	logger        *zap.Logger
}

// NewHandlers пустой adminPassword отключает /approve
func NewHandlers(svc *service.Services, dialogs *state.Manager, adminPassword string, logger *zap.Logger) *Handlers {
	return &Handlers{
		identity:      svc.Identity,
		scheduling:    svc.Scheduling,
		meetings:      svc.Meetings,
		messaging:     svc.Messaging,
		notifications: svc.Notifications,
		dialogs:       dialogs,
		adminPassword: adminPassword,
		logger:        logger,
	}
}
