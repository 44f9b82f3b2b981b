package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueCritical carries renders that a user is waiting on.
	QueueCritical = "critical"
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskRenderDocument renders and stores one document, then optionally
	// sends its notification email.
	TaskRenderDocument = "render:document"
	// TaskRenderBackfill enqueues renders for records stored without a PDF.
	TaskRenderBackfill = "render:backfill"
	// TaskSendMail delivers a transactional email without attachment.
	TaskSendMail = "mail:send"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DocumentKind names the record family a render task targets.
type DocumentKind string

const (
	DocumentRequest   DocumentKind = "request"
	DocumentQuote     DocumentKind = "quote"
	DocumentComplaint DocumentKind = "complaint"
	DocumentOrder     DocumentKind = "order"
)

// DocumentKinds lists the kinds accepted by render tasks.
var DocumentKinds = []DocumentKind{DocumentRequest, DocumentQuote, DocumentComplaint, DocumentOrder}

// ParseDocumentKind validates s.
func ParseDocumentKind(s string) (DocumentKind, error) {
	for _, k := range DocumentKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("jobs: unknown document kind %q", s)
}

// RenderPayload identifies the record to render.
type RenderPayload struct {
	Kind   DocumentKind `json:"kind"`
	ID     int64        `json:"id"`
	Notify bool         `json:"notify"`
}

// NewRenderTask constructs a render task. Renders followed by a
// notification go to the critical queue.
func NewRenderTask(payload RenderPayload) (*asynq.Task, error) {
	if payload.ID <= 0 {
		return nil, errors.New("jobs: render task requires an id")
	}
	if _, err := ParseDocumentKind(string(payload.Kind)); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	queue := QueueDefault
	if payload.Notify {
		queue = QueueCritical
	}
	return asynq.NewTask(TaskRenderDocument, body, asynq.Queue(queue), asynq.MaxRetry(5), asynq.Timeout(2*time.Minute)), nil
}

// BackfillPayload bounds one backfill sweep.
type BackfillPayload struct {
	Limit int `json:"limit"`
}

// NewRenderBackfillTask constructs the backfill sweep task.
func NewRenderBackfillTask(limit int) (*asynq.Task, error) {
	if limit <= 0 {
		limit = 200
	}
	body, err := json.Marshal(BackfillPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenderBackfill, body, asynq.Queue(QueueDefault)), nil
}

// SendMailPayload describes a plain notification email. Account selects
// the sending mailbox (admin, commercial or contact).
type SendMailPayload struct {
	Account string `json:"account"`
	To      string `json:"to"`
	ReplyTo string `json:"replyTo,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// NewSendMailTask constructs an Asynq task.
func NewSendMailTask(payload SendMailPayload) (*asynq.Task, error) {
	if payload.To == "" || payload.Subject == "" {
		return nil, errors.New("jobs: mail task requires recipient and subject")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendMail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(8)), nil
}

// CleanupPayload sets the retention of idempotency keys.
type CleanupPayload struct {
	OlderThan time.Duration `json:"olderThan"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}
	body, err := json.Marshal(CleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
