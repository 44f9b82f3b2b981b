package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mtr-industry/mtr-backoffice/internal/jobs"
	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// Enqueuer queues render tasks.
type Enqueuer interface {
	EnqueueRender(ctx context.Context, payload jobs.RenderPayload) (*asynq.TaskInfo, error)
}

// IdempotencyCleaner prunes expired submission keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Jobs holds the asynq handlers of the worker.
type Jobs struct {
	service     *Service
	enqueuer    Enqueuer
	idempotency IdempotencyCleaner
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

// NewJobs constructs the worker handlers.
func NewJobs(service *Service, enqueuer Enqueuer, idempotency IdempotencyCleaner, metrics *jobmetrics.Metrics, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = jobmetrics.NewMetrics(nil)
	}
	return &Jobs{service: service, enqueuer: enqueuer, idempotency: idempotency, metrics: metrics, logger: logger}
}

// Handlers lists the task handlers to register on the worker.
func (j *Jobs) Handlers() []jobs.TaskHandler {
	return []jobs.TaskHandler{
		{Type: jobs.TaskRenderDocument, Handler: j.HandleRender},
		{Type: jobs.TaskRenderBackfill, Handler: j.HandleBackfill},
		{Type: jobs.TaskSendMail, Handler: j.HandleSendMail},
		{Type: jobs.TaskIdempotencyCleanup, Handler: j.HandleIdempotencyCleanup},
	}
}

// HandleRender renders a record when it has no stored PDF and sends its
// notification when asked to. Missing records are not retried.
func (j *Jobs) HandleRender(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("documents: render payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := jobs.ParseDocumentKind(string(payload.Kind)); err != nil || payload.ID <= 0 {
		return fmt.Errorf("documents: render payload %+v: %w", payload, asynq.SkipRetry)
	}

	tracker := j.metrics.Track(jobs.TaskRenderDocument)
	defer func() { err = tracker.End(err) }()
	log := j.logger.With(slog.String("job", jobs.TaskRenderDocument),
		slog.String("kind", string(payload.Kind)), slog.Int64("id", payload.ID))

	var pdf []byte
	if payload.Kind != jobs.DocumentOrder {
		pdf, err = j.service.storedOrRender(ctx, payload.Kind, payload.ID)
		if err != nil {
			return j.fail(log, "render", err)
		}
	}
	if !payload.Notify {
		return nil
	}
	if err := j.service.Notify(ctx, payload.Kind, payload.ID, pdf); err != nil {
		return j.fail(log, "notify", err)
	}
	log.Info("notification sent")
	return nil
}

func (j *Jobs) fail(log *slog.Logger, step string, err error) error {
	if errors.Is(err, httpx.ErrNotFound) {
		log.Warn(step+": record gone", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log.Error(step, slog.Any("error", err))
	return err
}

// HandleBackfill queues renders for records stored without a PDF.
func (j *Jobs) HandleBackfill(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.BackfillPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("documents: backfill payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Limit <= 0 {
		payload.Limit = 200
	}
	tracker := j.metrics.Track(jobs.TaskRenderBackfill)
	defer func() { err = tracker.End(err) }()

	queued := 0
	for _, kind := range []jobs.DocumentKind{jobs.DocumentRequest, jobs.DocumentQuote, jobs.DocumentComplaint} {
		ids, err := j.service.Missing(ctx, kind, payload.Limit)
		if err != nil {
			return fmt.Errorf("documents: backfill %s: %w", kind, err)
		}
		for _, id := range ids {
			if _, err := j.enqueuer.EnqueueRender(ctx, jobs.RenderPayload{Kind: kind, ID: id}); err != nil {
				return fmt.Errorf("documents: backfill %s %d: %w", kind, id, err)
			}
			queued++
		}
	}
	j.logger.Info("render backfill", slog.Int("queued", queued))
	return nil
}

// HandleSendMail delivers a plain notification.
func (j *Jobs) HandleSendMail(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.SendMailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("documents: mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Account == "" {
		payload.Account = string(mailer.AccountContact)
	}
	account, err := mailer.ParseAccount(payload.Account)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(jobs.TaskSendMail)
	defer func() { err = tracker.End(err) }()

	return j.service.Mailer.Send(ctx, account, mailer.Message{
		To:      []string{payload.To},
		ReplyTo: payload.ReplyTo,
		Subject: payload.Subject,
		Text:    payload.Text,
		HTML:    payload.HTML,
	})
}

// HandleIdempotencyCleanup prunes expired submission keys.
func (j *Jobs) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) (err error) {
	var payload jobs.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("documents: cleanup payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 24 * time.Hour
	}
	tracker := j.metrics.Track(jobs.TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	n, err := j.idempotency.Cleanup(ctx, payload.OlderThan)
	if err != nil {
		return err
	}
	j.logger.Info("idempotency keys pruned", slog.Int64("deleted", n))
	return nil
}
