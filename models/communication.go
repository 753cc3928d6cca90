package models

import (
	"fmt"
	"time"
)

// MessageType is a notification category.
type MessageType string

const (
	MessageTypeFee      MessageType = "fee"
	MessageTypeOverdue  MessageType = "overdue"
	MessageTypeExam     MessageType = "exam"
	MessageTypeAbsent   MessageType = "absent"
	MessageTypeBirthday MessageType = "birthday"
)

// MessageTypes lists the categories in run order.
var MessageTypes = []MessageType{
	MessageTypeFee,
	MessageTypeOverdue,
	MessageTypeExam,
	MessageTypeAbsent,
	MessageTypeBirthday,
}

// DeliveryStatus of a communication attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// TriggerSource tells whether a send came from a scheduled run or a staff action.
type TriggerSource string

const (
	TriggerAutomatic TriggerSource = "automatic"
	TriggerManual    TriggerSource = "manual"
)

// CommunicationLog records one notification attempt. Rows are created pending
// and moved to exactly one terminal status afterwards.
//
// DedupeKey holds "student:type:entity:day" while the attempt is pending or
// sent. A failed attempt clears it so the next run may retry.
type CommunicationLog struct {
	BaseModel
	StudentID         *uint          `json:"student_id" gorm:"index"`
	ParentID          *uint          `json:"parent_id"`
	MessageType       MessageType    `json:"message_type" gorm:"size:20;not null;index"`
	MessageContent    string         `json:"message_content" gorm:"type:text;not null"`
	RecipientPhone    string         `json:"recipient_phone" gorm:"size:20"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status" gorm:"size:20;not null;default:'pending';index"`
	TriggeredBy       TriggerSource  `json:"triggered_by" gorm:"size:20;not null;default:'automatic'"`
	Provider          string         `json:"provider" gorm:"size:50"`
	ErrorMessage      string         `json:"error_message" gorm:"type:text"`
	ProviderResponse  JSON           `json:"provider_response" gorm:"type:json"`
	RelatedEntityID   *uint          `json:"related_entity_id"`
	RelatedEntityType string         `json:"related_entity_type" gorm:"size:50"`
	DedupeKey         *string        `json:"-" gorm:"size:191;uniqueIndex"`
	SentAt            *time.Time     `json:"sent_at"`

	// Relationships
	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// DedupeKey builds the per-day uniqueness key for a send.
func DedupeKey(studentID uint, msgType MessageType, relatedEntityID uint, day time.Time) string {
	return fmt.Sprintf("%d:%s:%d:%s", studentID, msgType, relatedEntityID, day.Format("2006-01-02"))
}

// NotificationSettingsID is the primary key of the singleton settings row.
const NotificationSettingsID uint = 1

// NotificationSettings controls the automatic notification engine.
// Boolean columns carry no DB default so an explicit false is persisted as-is.
type NotificationSettings struct {
	ID                     uint      `json:"id" gorm:"primaryKey"`
	EnableAutomaticMode    bool      `json:"enable_automatic_mode"`
	EnableFeeReminder      bool      `json:"enable_fee_reminder"`
	EnableOverdueReminder  bool      `json:"enable_overdue_reminder"`
	EnableExamReminder     bool      `json:"enable_exam_reminder"`
	EnableAbsentAlert      bool      `json:"enable_absent_alert"`
	EnableBirthdayWish     bool      `json:"enable_birthday_wish"`
	FeeReminderDaysBefore  int       `json:"fee_reminder_days_before"`
	ExamReminderDaysBefore int       `json:"exam_reminder_days_before"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DefaultNotificationSettings is provisioned when no settings row exists.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		ID:                     NotificationSettingsID,
		EnableAutomaticMode:    true,
		EnableFeeReminder:      true,
		EnableOverdueReminder:  true,
		EnableExamReminder:     true,
		EnableAbsentAlert:      true,
		EnableBirthdayWish:     true,
		FeeReminderDaysBefore:  3,
		ExamReminderDaysBefore: 2,
	}
}

// CategoryEnabled reports the per-category flag for t.
func (s NotificationSettings) CategoryEnabled(t MessageType) bool {
	switch t {
	case MessageTypeFee:
		return s.EnableFeeReminder
	case MessageTypeOverdue:
		return s.EnableOverdueReminder
	case MessageTypeExam:
		return s.EnableExamReminder
	case MessageTypeAbsent:
		return s.EnableAbsentAlert
	case MessageTypeBirthday:
		return s.EnableBirthdayWish
	}
	return false
}
