// internal/ingest/service.go
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"notification-pipeline/internal/audit"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/validation"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/queue"
)

const maxEventLength = 100

// reservedDataKeys may not be sent by applications; content comes from tenant templates only.
var reservedDataKeys = []string{"html", "emailHtml", "template"}

type Recipient struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// Request is the send body of an application.
type Request struct {
	Event    string                 `json:"event"`
	Channels []models.Channel       `json:"channels"`
	User     Recipient              `json:"user"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Body     string                 `json:"body,omitempty"`
}

// Caller is the verified application behind a request.
type Caller struct {
	Identity models.Identity
	IP       string
}

// Result is the per channel acknowledgement.
type Result struct {
	ID      string                `json:"id"`
	Channel models.Channel        `json:"channel"`
	Status  models.DeliveryStatus `json:"status"`
}

type NotificationWriter interface {
	CreateMany(ctx context.Context, rows []*models.Notification) error
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error
}

type Enqueuer interface {
	EnqueueMany(ctx context.Context, reqs []queue.Request) ([]string, error)
}

// Service accepts notifications and hands them to the job queue.
type Service struct {
	rows   NotificationWriter
	queue  Enqueuer
	audit  audit.Sink
	logger logger.Logger
	now    func() time.Time
}

func NewService(rows NotificationWriter, q Enqueuer, sink audit.Sink, log logger.Logger) *Service {
	return &Service{
		rows:   rows,
		queue:  q,
		audit:  sink,
		logger: logger.Component(log, "ingest"),
		now:    time.Now,
	}
}

// ParseRequest validates a raw body against the ingest schema and decodes it.
func ParseRequest(raw []byte) (*Request, error) {
	if res := validation.ValidateIngest(raw); !res.Valid {
		return nil, apperrors.NewValidationError(validation.FormatValidationErrors(res.Errors))
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.NewValidationError("malformed request body: " + err.Error())
	}
	return &req, nil
}

// Normalize applies the request rules that depend on more than one field.
func (r *Request) Normalize() error {
	r.Event = strings.ToUpper(strings.TrimSpace(r.Event))
	if r.Event == "" || len(r.Event) > maxEventLength {
		return apperrors.NewValidationError(fmt.Sprintf("event must be 1..%d characters", maxEventLength))
	}
	if strings.TrimSpace(r.User.ID) == "" {
		return apperrors.NewValidationError("user.id is required")
	}
	if len(r.Channels) == 0 {
		return apperrors.NewValidationError("at least one channel is required")
	}

	seen := make(map[models.Channel]bool, len(r.Channels))
	channels := r.Channels[:0]
	for _, ch := range r.Channels {
		if !ch.Valid() {
			return apperrors.NewValidationError("unsupported channel: " + string(ch))
		}
		if !seen[ch] {
			seen[ch] = true
			channels = append(channels, ch)
		}
	}
	r.Channels = channels

	if seen[models.ChannelEmail] && r.User.Email == "" {
		return apperrors.NewValidationError("user.email is required when EMAIL channel is requested")
	}
	if seen[models.ChannelSMS] && r.User.Mobile == "" {
		return apperrors.NewValidationError("user.mobile is required when SMS channel is requested")
	}

	if r.Data == nil {
		r.Data = map[string]interface{}{}
	}
	for _, key := range reservedDataKeys {
		if _, ok := r.Data[key]; ok {
			return apperrors.NewValidationError("applications must not send email HTML or templates, only event data is accepted")
		}
	}
	return nil
}

// Send creates one QUEUED notification and one job per requested channel.
func (s *Service) Send(ctx context.Context, caller Caller, req *Request) ([]Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	id := caller.Identity

	rows := make([]*models.Notification, 0, len(req.Channels))
	for _, ch := range req.Channels {
		rows = append(rows, &models.Notification{
			TenantID:   id.TenantID,
			AppID:      id.AppID,
			Event:      req.Event,
			Channel:    ch,
			UserID:     req.User.ID,
			UserEmail:  req.User.Email,
			UserMobile: req.User.Mobile,
			Data:       req.Data,
			Status:     models.StatusQueued,
		})
	}
	if err := s.rows.CreateMany(ctx, rows); err != nil {
		return nil, apperrors.NewDatabaseError("create notifications", err)
	}

	jobs := make([]queue.Request, 0, len(rows))
	for _, n := range rows {
		jobs = append(jobs, queue.Request{
			Name: models.JobName(req.Event, n.Channel),
			Payload: models.Job{
				NotificationID: n.ID,
				TenantID:       id.TenantID,
				AppID:          id.AppID,
				Event:          req.Event,
				Channel:        n.Channel,
				UserID:         req.User.ID,
				UserEmail:      req.User.Email,
				UserMobile:     req.User.Mobile,
				Data:           req.Data,
				Title:          req.Title,
				Body:           req.Body,
			},
			Priority: models.JobPriority(n.Channel),
		})
	}
	if _, err := s.queue.EnqueueMany(ctx, jobs); err != nil {
		s.abandon(ctx, rows, err)
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.NewQueueError("enqueue notifications", err)
	}

	results := make([]Result, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, n := range rows {
		results = append(results, Result{ID: n.ID, Channel: n.Channel, Status: models.StatusQueued})
		ids = append(ids, n.ID)
	}

	s.audit.Record(ctx, models.AuditEntry{
		TenantID: id.TenantID,
		AppID:    id.AppID,
		Action:   models.AuditNotificationSent,
		Actor:    id.Actor(),
		Resource: "Notification",
		Details: map[string]interface{}{
			"event":           req.Event,
			"channels":        req.Channels,
			"userId":          req.User.ID,
			"notificationIds": ids,
		},
		IP:        caller.IP,
		CreatedAt: s.now().UTC(),
	})

	s.logger.Info("notifications queued", map[string]interface{}{
		"tenantId": id.TenantID,
		"appId":    id.AppID,
		"event":    req.Event,
		"count":    len(rows),
	})
	return results, nil
}

// abandon marks rows FAILED when their jobs never reached the queue.
func (s *Service) abandon(ctx context.Context, rows []*models.Notification, cause error) {
	msg := "enqueue failed: " + cause.Error()
	for _, n := range rows {
		if err := s.rows.UpdateStatus(ctx, n.ID, models.StatusUpdate{Status: models.StatusFailed, Error: &msg}); err != nil {
			s.logger.Error("failed to mark unqueued notification", map[string]interface{}{
				"notificationId": n.ID,
				"error":          err.Error(),
			})
		}
	}
}
