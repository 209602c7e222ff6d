// internal/worker/processor.go
package worker

import (
	"context"
	"errors"
	"strconv"
	"time"

	"notification-pipeline/internal/channels"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/common/observability"
	"notification-pipeline/internal/common/validation"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/queue"
	"notification-pipeline/internal/store"
)

// JobClient acknowledges claimed jobs.
type JobClient interface {
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error, retry bool) error
}

type NotificationStore interface {
	UpdateStatus(ctx context.Context, id string, upd models.StatusUpdate) error
}

type Renderer interface {
	RenderEmail(ctx context.Context, tenantID, appID, event string, data map[string]interface{}, fallbackBody, fallbackSubject string) (*models.RenderedEmail, error)
	RenderContent(ctx context.Context, tenantID, appID, event string, channel models.Channel, data map[string]interface{}) (*models.RenderedContent, error)
}

type Dispatchers interface {
	For(channel models.Channel) (channels.Dispatcher, error)
}

// Processor runs one notification job start to finish and acknowledges it.
type Processor struct {
	notifications NotificationStore
	renderer      Renderer
	dispatchers   Dispatchers
	errHandler    *apperrors.ErrorHandler
	obs           *observability.Observability
	logger        logger.Logger
	timeout       time.Duration
	now           func() time.Time
}

func NewProcessor(
	notifications NotificationStore,
	renderer Renderer,
	dispatchers Dispatchers,
	obs *observability.Observability,
	timeout time.Duration,
	log logger.Logger,
) *Processor {
	l := logger.Component(log, "processor")
	return &Processor{
		notifications: notifications,
		renderer:      renderer,
		dispatchers:   dispatchers,
		errHandler:    apperrors.NewErrorHandler(l),
		obs:           obs,
		logger:        l,
		timeout:       timeout,
		now:           time.Now,
	}
}

// Handle processes job and reports the result to client.
func (p *Processor) Handle(ctx context.Context, client JobClient, job *queue.Job) {
	start := p.now()
	log := p.logger.With(map[string]interface{}{
		"jobId":   job.ID,
		"jobName": job.Name,
		"attempt": job.Attempt,
	})

	var payload models.Job
	if res := validation.ValidateJob(job.Data); !res.Valid {
		err := apperrors.NewValidationError(validation.FormatValidationErrors(res.Errors))
		_ = job.Decode(&payload)
		p.failJob(ctx, client, job, &payload, err, log)
		return
	}
	if err := job.Decode(&payload); err != nil {
		p.failJob(ctx, client, job, &payload, apperrors.NewValidationError("undecodable job payload: "+err.Error()), log)
		return
	}

	channel := string(payload.Channel)
	metrics.WorkerJobsActive.WithLabelValues(channel).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(channel).Dec()

	if job.Attempt > job.MaxAttempts {
		p.failJob(ctx, client, job, &payload,
			apperrors.NewInternalError(errors.New("job exceeded "+strconv.Itoa(job.MaxAttempts)+" attempts after stalling")), log)
		return
	}

	log.Info("processing notification", map[string]interface{}{
		"notificationId": payload.NotificationID,
		"channel":        channel,
		"event":          payload.Event,
	})

	jobCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	status, err := p.process(jobCtx, &payload)
	elapsed := p.now().Sub(start)
	metrics.WorkerJobDuration.WithLabelValues(channel).Observe(elapsed.Seconds())

	if err != nil {
		p.obs.RecordJobDuration(ctx, elapsed, channel, string(models.StatusFailed))
		p.failJob(ctx, client, job, &payload, err, log)
		return
	}

	p.obs.RecordJobDuration(ctx, elapsed, channel, string(status))
	p.completeJob(ctx, client, job, &payload, status, log)
}

func (p *Processor) completeJob(ctx context.Context, client JobClient, job *queue.Job, payload *models.Job, status models.DeliveryStatus, log logger.Logger) {
	metrics.WorkerJobsCompleted.WithLabelValues(string(payload.Channel), string(status)).Inc()
	p.obs.RecordJobProcessed(ctx, string(payload.Channel), string(status))

	if err := client.Complete(ctx, job); err != nil {
		log.Error("failed to complete job", map[string]interface{}{"error": err.Error()})
		return
	}
	log.Info("notification processed", map[string]interface{}{
		"notificationId": payload.NotificationID,
		"status":         string(status),
	})
}

// failJob records FAILED on the row before the queue decides on a retry.
func (p *Processor) failJob(ctx context.Context, client JobClient, job *queue.Job, payload *models.Job, cause error, log logger.Logger) {
	if payload.NotificationID != "" {
		msg := errorMessage(cause)
		err := p.notifications.UpdateStatus(ctx, payload.NotificationID, models.StatusUpdate{
			Status: models.StatusFailed,
			Error:  &msg,
		})
		if err != nil && !errors.Is(err, store.ErrStaleTransition) {
			log.Error("failed to record failure status", map[string]interface{}{"error": err.Error()})
		}
	}

	decision := p.errHandler.HandleJobError(apperrors.JobRef{
		ID:          job.ID,
		Name:        job.Name,
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
	}, cause)

	channel := string(payload.Channel)
	metrics.WorkerJobsFailed.WithLabelValues(channel, string(decision.Err.Code), strconv.FormatBool(decision.Retry)).Inc()
	if !decision.Retry {
		p.obs.RecordJobProcessed(ctx, channel, string(models.StatusFailed))
	}

	if err := client.Fail(ctx, job, decision.Err, decision.Retry); err != nil {
		log.Error("failed to fail job", map[string]interface{}{"error": err.Error()})
	}
}

// errorMessage is the human readable text stored on the row.
func errorMessage(err error) string {
	if stdErr, ok := apperrors.As(err); ok {
		if stdErr.Details != "" {
			return stdErr.Message + ": " + stdErr.Details
		}
		return stdErr.Message
	}
	return err.Error()
}

func (p *Processor) process(ctx context.Context, job *models.Job) (models.DeliveryStatus, error) {
	switch job.Channel {
	case models.ChannelEmail:
		if job.UserEmail == "" {
			return "", apperrors.NewValidationError("user email is required for EMAIL channel")
		}
	case models.ChannelSMS:
		if job.UserMobile == "" {
			return "", apperrors.NewValidationError("user mobile is required for SMS channel")
		}
	}

	msg := channels.Message{
		NotificationID: job.NotificationID,
		TenantID:       job.TenantID,
		AppID:          job.AppID,
		UserID:         job.UserID,
		Event:          job.Event,
		Email:          job.UserEmail,
		Mobile:         job.UserMobile,
		Data:           job.Data,
		CreatedAt:      p.now(),
	}

	if job.Channel == models.ChannelEmail {
		rendered, err := p.renderer.RenderEmail(ctx, job.TenantID, job.AppID, job.Event, job.Data, job.Body, job.Title)
		if err != nil {
			return "", err
		}
		if rendered == nil {
			return p.skipEmail(ctx, job)
		}
		msg.Subject, msg.Body = rendered.Subject, rendered.HTML
	} else {
		msg.Subject, msg.Body = job.Title, job.Body
		if msg.Subject == "" {
			msg.Subject = job.Event
		}
		content, err := p.renderer.RenderContent(ctx, job.TenantID, job.AppID, job.Event, job.Channel, job.Data)
		if err != nil {
			return "", err
		}
		if content != nil {
			msg.Body = content.Body
			if content.Subject != "" {
				msg.Subject = content.Subject
			}
		}
	}

	dispatcher, err := p.dispatchers.For(job.Channel)
	if err != nil {
		return "", err
	}
	outcome, err := dispatcher.Send(ctx, msg)
	if err != nil {
		return "", err
	}
	if outcome.Persisted {
		return outcome.Status, nil
	}

	if err := p.record(ctx, job, msg, outcome); err != nil {
		return "", err
	}
	return outcome.Status, nil
}

// skipEmail marks an email with nothing to render as SENT without contacting a provider.
func (p *Processor) skipEmail(ctx context.Context, job *models.Job) (models.DeliveryStatus, error) {
	p.logger.Info("no email template or fallback, marking as sent", map[string]interface{}{
		"notificationId": job.NotificationID,
		"event":          job.Event,
	})
	subject := job.Title
	if subject == "" {
		subject = job.Event
	}
	now := p.now()
	err := p.update(ctx, job.NotificationID, models.StatusUpdate{
		Status:          models.StatusSent,
		RenderedSubject: &subject,
		SentAt:          &now,
	})
	if err != nil {
		return "", err
	}
	return models.StatusSent, nil
}

func (p *Processor) record(ctx context.Context, job *models.Job, msg channels.Message, outcome *channels.Outcome) error {
	upd := models.StatusUpdate{Status: outcome.Status}

	switch job.Channel {
	case models.ChannelEmail:
		upd.RenderedSubject = &msg.Subject
	case models.ChannelSMS:
		upd.RenderedBody = &msg.Body
	default:
		upd.RenderedSubject = &msg.Subject
		upd.RenderedBody = &msg.Body
	}

	if outcome.Status.IsSuccess() {
		now := p.now()
		upd.SentAt = &now
		none := ""
		upd.Error = &none
	} else if outcome.Error != "" {
		upd.Error = &outcome.Error
	}
	return p.update(ctx, job.NotificationID, upd)
}

// update treats a rejected transition as a duplicate delivery of an already finished row.
func (p *Processor) update(ctx context.Context, id string, upd models.StatusUpdate) error {
	err := p.notifications.UpdateStatus(ctx, id, upd)
	if errors.Is(err, store.ErrStaleTransition) {
		p.logger.Warn("notification already finalized", map[string]interface{}{
			"notificationId": id,
			"status":         string(upd.Status),
		})
		return nil
	}
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.NewDatabaseError("update notification status", err)
		}
		return err
	}
	return nil
}
