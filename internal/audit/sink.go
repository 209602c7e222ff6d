// internal/audit/sink.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const DefaultIndex = "notification-audit"

// Sink records audit entries. Record never blocks the caller on the backend and never fails it.
type Sink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// ElasticsearchSink indexes entries asynchronously.
type ElasticsearchSink struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
	wg      sync.WaitGroup
}

func NewElasticsearchSink(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchSink {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchSink{
		client:  client,
		index:   index,
		timeout: 5 * time.Second,
		logger:  logger.Component(log, "audit"),
	}
}

func (s *ElasticsearchSink) Record(_ context.Context, entry models.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.write(ctx, entry); err != nil {
			s.logger.Warn("audit write failed", map[string]interface{}{
				"action":   entry.Action,
				"resource": entry.Resource,
				"error":    err,
			})
		}
	}()
}

// Flush waits for in-flight writes.
func (s *ElasticsearchSink) Flush() {
	s.wg.Wait()
}

func (s *ElasticsearchSink) write(ctx context.Context, entry models.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(body), s.client.Index.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s: %s", s.index, res.Status())
	}
	return nil
}

// LogSink writes entries to the structured log. Used when Elasticsearch is not configured.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: logger.Component(log, "audit")}
}

func (s *LogSink) Record(_ context.Context, entry models.AuditEntry) {
	s.logger.Info("audit", map[string]interface{}{
		"action":     entry.Action,
		"actor":      entry.Actor,
		"resource":   entry.Resource,
		"resourceId": entry.ResourceID,
		"tenantId":   entry.TenantID,
		"appId":      entry.AppID,
	})
}
