package schema

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies a notification row
type NotificationType string

const (
	// NotificationTypeSale notifies the seller and buyer of a completed sale
	NotificationTypeSale NotificationType = "sale"
	// NotificationTypeOffer notifies the story author of a new offer
	NotificationTypeOffer NotificationType = "offer"
	// NotificationTypeOfferAccepted notifies the offerer their offer was accepted
	NotificationTypeOfferAccepted NotificationType = "offer_accepted"
	// NotificationTypeMint notifies the author their story was minted
	NotificationTypeMint NotificationType = "mint"
)

// Notification represents the notifications table. Rows are append-only
// except for the read flag.
type Notification struct {
	// ID is a UUID assigned at creation
	ID string `gorm:"column:id;primaryKey;type:text"`
	// Recipient is the address the notification is addressed to
	Recipient string `gorm:"column:recipient;not null;type:text;index"`
	// Type classifies the notification
	Type NotificationType `gorm:"column:type;not null;type:text"`
	// Data holds the type-specific payload
	Data datatypes.JSON `gorm:"column:data;type:jsonb"`
	// Read indicates the recipient has seen the notification
	Read      bool      `gorm:"column:read;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
