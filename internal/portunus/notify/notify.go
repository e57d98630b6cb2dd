// Package notify fans decision records out to external systems. Delivery
// is best effort: failures are returned for counting, never retried by
// the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

const DefaultTimeout = 2 * time.Second

type Notifier interface {
	Notify(ctx context.Context, rec types.Record) error
}

// Message is the wire form of a record.
type Message struct {
	Device    string `json:"device"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	UID       string `json:"uid"`
	Label     string `json:"label"`
	Outcome   string `json:"outcome"`
	State     string `json:"state,omitempty"`
}

func NewMessage(device string, rec types.Record) Message {
	return Message{
		Device:    device,
		ID:        rec.ID,
		Timestamp: rec.Timestamp.Format(time.RFC3339),
		UID:       rec.UID,
		Label:     rec.Label,
		Outcome:   rec.Outcome,
		State:     rec.State,
	}
}

// Fanout delivers to every notifier concurrently, each bounded by
// Timeout, and joins the errors.
type Fanout struct {
	Notifiers []Notifier
	Timeout   time.Duration
}

func NewFanout(ns ...Notifier) *Fanout {
	out := &Fanout{Timeout: DefaultTimeout}
	for _, n := range ns {
		if n != nil {
			out.Notifiers = append(out.Notifiers, n)
		}
	}
	return out
}

func (f *Fanout) Len() int { return len(f.Notifiers) }

func (f *Fanout) Notify(ctx context.Context, rec types.Record) error {
	if len(f.Notifiers) == 0 {
		return nil
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	errs := make([]error, len(f.Notifiers))
	var wg sync.WaitGroup
	for i, n := range f.Notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			errs[i] = deliver(nctx, n, rec)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// deliver returns when n finishes or ctx ends, whichever is first, so a
// notifier that ignores its context cannot stall the caller.
func deliver(ctx context.Context, n Notifier, rec types.Record) error {
	done := make(chan error, 1)
	go func() { done <- n.Notify(ctx, rec) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%T: %w", n, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%T: %w", n, ctx.Err())
	}
}
