// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

// Channel is the delivery medium of a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// AllChannels lists the channels in their canonical order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// HasCredential reports whether the channel is backed by a tenant provider credential.
func (c Channel) HasCredential() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelPush
}

// DeliveryStatus is the state of a notification row.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusQueued    DeliveryStatus = "QUEUED"
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

var transitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPending: {StatusQueued, StatusFailed},
	// QUEUED -> FAILED -> retry -> SENT keeps the row in step with the latest attempt,
	// so FAILED is only final once the job has no attempts left.
	StatusQueued: {StatusSent, StatusDelivered, StatusFailed},
	StatusFailed: {StatusSent, StatusDelivered, StatusFailed},
}

// CanTransition reports whether a row in status from may move to status to.
func CanTransition(from, to DeliveryStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsSuccess reports a terminal success state.
func (s DeliveryStatus) IsSuccess() bool {
	return s == StatusSent || s == StatusDelivered
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// SuccessStatus is the terminal success state for a channel.
func SuccessStatus(c Channel) DeliveryStatus {
	if c == ChannelInApp {
		return StatusDelivered
	}
	return StatusSent
}

type Notification struct {
	ID              string                 `json:"id" db:"id"`
	TenantID        string                 `json:"tenantId" db:"tenant_id"`
	AppID           string                 `json:"appId" db:"app_id"`
	Event           string                 `json:"event" db:"event"`
	Channel         Channel                `json:"channel" db:"channel"`
	UserID          string                 `json:"userId" db:"user_id"`
	UserEmail       string                 `json:"userEmail,omitempty" db:"user_email"`
	UserMobile      string                 `json:"userMobile,omitempty" db:"user_mobile"`
	Data            map[string]interface{} `json:"data" db:"data"`
	Status          DeliveryStatus         `json:"status" db:"status"`
	Error           string                 `json:"error,omitempty" db:"error"`
	RenderedSubject string                 `json:"renderedSubject,omitempty" db:"rendered_subject"`
	RenderedBody    string                 `json:"renderedBody,omitempty" db:"rendered_body"`
	SentAt          *time.Time             `json:"sentAt,omitempty" db:"sent_at"`
	ReadAt          *time.Time             `json:"readAt,omitempty" db:"read_at"`
	CreatedAt       time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time              `json:"updatedAt" db:"updated_at"`
}

// StatusUpdate carries the worker-owned fields written with a status change.
// Nil pointers leave the column untouched.
type StatusUpdate struct {
	Status          DeliveryStatus
	Error           *string
	RenderedSubject *string
	RenderedBody    *string
	SentAt          *time.Time
}

// NotificationFilter narrows a listing to one user of an app.
type NotificationFilter struct {
	TenantID string
	AppID    string
	UserID   string
	Channel  Channel
	Status   DeliveryStatus
	Limit    int
	Offset   int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
	RetentionDays    = 20
)

// Normalize clamps limit and offset.
func (f *NotificationFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unreadCount"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}

// JobName is the queue job name for a notification channel.
func JobName(event string, channel Channel) string {
	return fmt.Sprintf("%s:%s", event, channel)
}
