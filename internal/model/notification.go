package model

import "time"

type NotificationType string

const (
	NotificationProposalReceived    NotificationType = "proposal_received"
	NotificationProposalAccepted    NotificationType = "proposal_accepted"
	NotificationProposalRejected    NotificationType = "proposal_rejected"
	NotificationContractAccepted    NotificationType = "contract_accepted"
	NotificationContractRejected    NotificationType = "contract_rejected"
	NotificationContractCancelled   NotificationType = "contract_cancelled"
	NotificationContractCompleted   NotificationType = "contract_completed"
	NotificationPaymentReceived     NotificationType = "payment_received"
	NotificationPaymentFailed       NotificationType = "payment_failed"
	NotificationPaymentRefunded     NotificationType = "payment_refunded"
	NotificationSessionScheduled    NotificationType = "session_scheduled"
	NotificationSessionReminder     NotificationType = "session_reminder"
	NotificationSessionStarted      NotificationType = "session_started"
	NotificationSessionCompleted    NotificationType = "session_completed"
	NotificationSessionMissed       NotificationType = "session_missed"
	NotificationSessionCancelled    NotificationType = "session_cancelled"
	NotificationRescheduleRequested NotificationType = "reschedule_requested"
	NotificationRescheduleApproved  NotificationType = "reschedule_approved"
	NotificationRescheduleDeclined  NotificationType = "reschedule_declined"
	NotificationRescheduleExpired   NotificationType = "reschedule_expired"
	NotificationSessionRescheduled  NotificationType = "session_rescheduled"
	NotificationCallScheduled       NotificationType = "call_scheduled"
	NotificationNewMessage          NotificationType = "new_message"
	NotificationRoleUpgraded        NotificationType = "role_upgraded"
)

// Related типы сущностей, на которые ссылается уведомление (слабая ссылка)
const (
	RelatedProposal = "proposal"
	RelatedContract = "contract"
	RelatedSession  = "session"
	RelatedCall     = "call"
	RelatedMessage  = "message"
	RelatedRequest  = "learning_request"
)

// NotificationRetention уведомления старше удаляются sweeper'ом
const NotificationRetention = 30 * 24 * time.Hour

type Notification struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	RelatedID   *int64           `json:"related_id,omitempty"`
	RelatedType string           `json:"related_type,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
