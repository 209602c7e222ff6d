// internal/models/job.go
package models

// Job is the queue payload for one (notification, channel).
type Job struct {
	NotificationID string                 `json:"notificationId"`
	TenantID       string                 `json:"tenantId"`
	AppID          string                 `json:"appId"`
	Event          string                 `json:"event"`
	Channel        Channel                `json:"channel"`
	UserID         string                 `json:"userId"`
	UserEmail      string                 `json:"userEmail,omitempty"`
	UserMobile     string                 `json:"userMobile,omitempty"`
	Data           map[string]interface{} `json:"data"`
	Title          string                 `json:"title,omitempty"`
	Body           string                 `json:"body,omitempty"`
}

// JobPriority favors everything over EMAIL. Lower runs sooner.
func JobPriority(c Channel) int {
	if c == ChannelEmail {
		return 2
	}
	return 1
}
