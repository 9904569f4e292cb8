package models

import "time"

// NotificationType tags what kind of event produced a notification.
type NotificationType string

// Possible notification types.
const (
	NotificationPayment       NotificationType = "PAYMENT"
	NotificationEvaluation    NotificationType = "EVALUATION"
	NotificationSystem        NotificationType = "SYSTEM"
	NotificationExpiry        NotificationType = "EXPIRY"
	NotificationNewEnrollment NotificationType = "NEW_ENROLLMENT"
	NotificationLeave         NotificationType = "LEAVE"
)

// BroadcastAudience is a broadcast's recipient scope.
type BroadcastAudience string

// Possible broadcast audiences.
const (
	AudienceAll        BroadcastAudience = "ALL"
	AudienceStudent    BroadcastAudience = "STUDENT"
	AudienceInstructor BroadcastAudience = "INSTRUCTOR"
)

// Notification is a one-way message to one user. The core only ever flips
// the read flag; notifications are never deleted here.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Type      NotificationType `db:"type" json:"type"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter provides filters for listing notifications.
type NotificationFilter struct {
	UserID   string
	Unread   *bool
	Page     int
	PageSize int
}
