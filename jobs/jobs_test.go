package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestEnqueueRender(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := NewClientWith(rec)

	info, err := client.EnqueueRender(context.Background(), RenderPayload{Kind: DocumentQuote, ID: 42, Notify: true})
	require.NoError(t, err)
	assert.Equal(t, TaskRenderDocument, info.Type)

	require.Len(t, rec.tasks, 1)
	var payload RenderPayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.Equal(t, RenderPayload{Kind: DocumentQuote, ID: 42, Notify: true}, payload)
}

func TestNewRenderTaskRejectsInvalidPayload(t *testing.T) {
	_, err := NewRenderTask(RenderPayload{Kind: DocumentRequest})
	require.Error(t, err)

	_, err = NewRenderTask(RenderPayload{Kind: "invoice", ID: 1})
	require.Error(t, err)
}

func TestParseDocumentKind(t *testing.T) {
	for _, k := range DocumentKinds {
		got, err := ParseDocumentKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseDocumentKind("facture")
	assert.Error(t, err)
}

func TestBackfillAndCleanupDefaults(t *testing.T) {
	task, err := NewRenderBackfillTask(0)
	require.NoError(t, err)
	var backfill BackfillPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &backfill))
	assert.Equal(t, 200, backfill.Limit)

	task, err = NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	assert.Equal(t, TaskIdempotencyCleanup, task.Type())
	var cleanup CleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &cleanup))
	assert.Positive(t, cleanup.OlderThan)
}

func TestSendMailTaskRequiresRecipient(t *testing.T) {
	_, err := NewSendMailTask(SendMailPayload{Subject: "Commande annulée"})
	require.Error(t, err)

	rec := &recordingEnqueuer{}
	_, err = NewClientWith(rec).EnqueueMail(context.Background(), SendMailPayload{
		Account: "admin", To: "admin@mtr.tn", Subject: "Commande annulée", Text: "DV2500007",
	})
	require.NoError(t, err)
	assert.Equal(t, TaskSendMail, rec.tasks[0].Type())
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func newJobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHealthReportsQueues(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Pending: 2, Active: 1},
	}}, logger)

	rr := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var out []queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, queueHealth{Queue: QueueCritical, Pending: 2, Active: 1}, out[0])
	assert.Equal(t, queueHealth{Queue: QueueDefault}, out[1])
}

func TestHealthUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, logger)

	rr := httptest.NewRecorder()
	newJobsRouter(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
