package errors

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// JobRef identifies the job attempt that failed.
type JobRef struct {
	ID          string
	Name        string
	Attempt     int
	MaxAttempts int
}

// Decision is what the queue should do with a failed job.
type Decision struct {
	Err   *StandardError
	Retry bool
}

// ErrorHandler classifies job failures into retry or dead-letter.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError normalizes err, logs it and decides whether another attempt is allowed.
func (h *ErrorHandler) HandleJobError(job JobRef, err error) Decision {
	stdErr := Normalize(err)
	retry := stdErr.Retryable && job.Attempt < job.MaxAttempts

	fields := map[string]interface{}{
		"jobId":         job.ID,
		"jobName":       job.Name,
		"attempt":       job.Attempt,
		"maxAttempts":   job.MaxAttempts,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"willRetry":     retry,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if retry {
		h.logger.Warn("Job failed, scheduling retry", fields)
	} else {
		h.logger.Error("Job failed permanently", fields)
	}

	return Decision{Err: stdErr, Retry: retry}
}
