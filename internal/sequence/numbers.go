package sequence

import (
	"context"
	"fmt"
	"time"
)

// Series describes one family of document numbers.
type Series struct {
	Prefix string
	// key derives the counter key from the allocation time.
	key func(t time.Time) string
}

var (
	// Requests numbers quote requests: DDV2500012.
	Requests = Series{Prefix: "DDV", key: func(t time.Time) string { return fmt.Sprintf("devis:%d", t.Year()) }}
	// Quotes numbers formal quotes: DV2500007.
	Quotes = Series{Prefix: "DV", key: func(t time.Time) string { return fmt.Sprintf("devis-%02d", t.Year()%100) }}
	// Complaints numbers complaints: R2500003.
	Complaints = Series{Prefix: "R", key: func(t time.Time) string { return fmt.Sprintf("reclamation:%d", t.Year()) }}
)

// Key returns the counter key for t.
func (s Series) Key(t time.Time) string {
	return s.key(t)
}

// Format renders seq for the year of t.
func (s Series) Format(t time.Time, seq int64) string {
	return fmt.Sprintf("%s%02d%05d", s.Prefix, t.Year()%100, seq)
}

// Numberer allocates numbers in a series.
type Numberer struct {
	counter *Counter
	now     func() time.Time
}

// NewNumberer constructs a Numberer on counter.
func NewNumberer(counter *Counter) *Numberer {
	return &Numberer{counter: counter, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (n *Numberer) WithNow(now func() time.Time) {
	if now != nil {
		n.now = now
	}
}

// Next allocates the next number of s.
func (n *Numberer) Next(ctx context.Context, s Series) (string, error) {
	t := n.now()
	seq, err := n.counter.Next(ctx, s.Key(t))
	if err != nil {
		return "", err
	}
	return s.Format(t, seq), nil
}

// Preview returns the number Next would allocate now.
func (n *Numberer) Preview(ctx context.Context, s Series) (string, error) {
	t := n.now()
	seq, err := n.counter.Peek(ctx, s.Key(t))
	if err != nil {
		return "", err
	}
	return s.Format(t, seq), nil
}
