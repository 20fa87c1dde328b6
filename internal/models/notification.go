package models

import "time"

// Notification types produced by the fee engine.
const (
	NotificationTypeFeeReminder = "FEE_REMINDER"
	RecipientTypeGuardian       = "guardian"
)

// Notification is an outbound message handed to the delivery transport.
type Notification struct {
	ID            string    `db:"id" json:"id"`
	Type          string    `db:"type" json:"type"`
	RecipientID   string    `db:"recipient_id" json:"recipient_id"`
	RecipientType string    `db:"recipient_type" json:"recipient_type"`
	Payload       []byte    `db:"payload" json:"payload"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
