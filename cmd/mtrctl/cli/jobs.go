package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// Inspector is the part of asynq.Inspector used by JobsCLI.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the render queue.
type JobsCLI struct {
	client    *jobs.Client
	inspector Inspector
}

// NewJobsCLI connects the helpers to the Redis instance at redisAddr.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// NewJobsCLIWith builds the helpers on existing connections.
func NewJobsCLIWith(client *jobs.Client, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// EnqueueOptions selects the record to render.
type EnqueueOptions struct {
	Kind   string
	ID     int64
	Notify bool
	Stdout io.Writer
	Stderr io.Writer
}

// EnqueueCommand queues one render task and returns the exit code.
func (c *JobsCLI) EnqueueCommand(ctx context.Context, opts EnqueueOptions) int {
	kind, err := jobs.ParseDocumentKind(opts.Kind)
	if err != nil {
		fmt.Fprintln(opts.Stderr, err)
		return 2
	}
	info, err := c.client.EnqueueRender(ctx, jobs.RenderPayload{Kind: kind, ID: opts.ID, Notify: opts.Notify})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "enqueue render: %v\n", err)
		return 1
	}
	fmt.Fprintf(opts.Stdout, "queued %s %s:%d on %s\n", info.ID, kind, opts.ID, info.Queue)
	return 0
}

// BackfillCommand queues a backfill sweep and returns the exit code.
func (c *JobsCLI) BackfillCommand(ctx context.Context, limit int, stdout, stderr io.Writer) int {
	info, err := c.client.EnqueueBackfill(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "enqueue backfill: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "queued backfill %s\n", info.ID)
	return 0
}

// MailCommand queues a plain-text email, which checks the SMTP accounts
// end to end through the worker.
func (c *JobsCLI) MailCommand(ctx context.Context, payload jobs.SendMailPayload, stdout, stderr io.Writer) int {
	info, err := c.client.EnqueueMail(ctx, payload)
	if err != nil {
		fmt.Fprintf(stderr, "enqueue mail: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "queued mail %s to %s\n", info.ID, payload.To)
	return 0
}

// QueueStats summarises the state of one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports every served queue. Queues that never received a
// task report zeros.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, 2)
	for _, name := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("jobs cli: queue %s: %w", name, err)
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// StatsCommand prints queue statistics as a table or JSON.
func (c *JobsCLI) StatsCommand(jsonOutput bool, stdout, stderr io.Writer) int {
	stats, err := c.InspectQueues()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
