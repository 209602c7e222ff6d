package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type esRecorder struct {
	mu      sync.Mutex
	paths   []string
	entries []models.AuditEntry
	status  int
}

func (r *esRecorder) handler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var e models.AuditEntry
	_ = json.NewDecoder(req.Body).Decode(&e)

	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.entries = append(r.entries, e)
	status := r.status
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func newTestSink(t *testing.T, rec *esRecorder) *ElasticsearchSink {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewElasticsearchSink(client, "", logger.NewTestLogger(t))
}

func TestElasticsearchSink_Record(t *testing.T) {
	rec := &esRecorder{}
	sink := newTestSink(t, rec)

	sink.Record(context.Background(), models.AuditEntry{
		TenantID: "t1",
		Action:   models.AuditNotificationSent,
		Actor:    "api-key:ns_skc_abcd",
		Resource: "notification",
	})
	sink.Flush()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.entries, 1)
	assert.True(t, strings.HasPrefix(rec.paths[0], "/"+DefaultIndex+"/_doc"))
	assert.Equal(t, models.AuditNotificationSent, rec.entries[0].Action)
	assert.False(t, rec.entries[0].CreatedAt.IsZero())
}

func TestElasticsearchSink_FailureIsSwallowed(t *testing.T) {
	rec := &esRecorder{status: http.StatusInternalServerError}
	sink := newTestSink(t, rec)

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), models.AuditEntry{Action: "X", Resource: "y"})
		sink.Flush()
	})
}

func TestLogSink(t *testing.T) {
	var s Sink = NewLogSink(logger.NewNoOpLogger())
	s.Record(context.Background(), models.AuditEntry{Action: "X"})
}
