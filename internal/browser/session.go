// Package browser wraps the headless browser capability used by the crawler.
// Callers depend on the Session and Factory interfaces; the chromedp-backed
// implementation lives alongside them.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a bounded wait elapses before its condition holds.
var ErrTimeout = errors.New("browser wait timed out")

// Session is a single controllable browser instance. A Session is owned by
// whoever created it and must be released with Close.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitPresent blocks until an element matching selector exists in the DOM.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	// WaitClickable blocks until an element matching selector is visible and enabled.
	WaitClickable(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	// Value returns the live value property of an input element.
	Value(ctx context.Context, selector string) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	// Attribute returns the attribute value and whether the attribute exists.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Factory creates sessions that share one fixed configuration.
type Factory interface {
	New(ctx context.Context) (Session, error)
}

// Options is the fixed option set applied to every session a factory creates.
type Options struct {
	Headless      bool
	DisableImages bool
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	Headers       map[string]string
	// ActionTimeout bounds calls that do not carry their own wait timeout.
	ActionTimeout time.Duration
}

const (
	defaultActionTimeout = 10 * time.Second
	defaultPollInterval  = 100 * time.Millisecond
)

// IsTimeout reports whether err was caused by an elapsed bounded wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Settle pauses for d so the page can finish rendering. It returns early with
// ctx's error when ctx ends.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll evaluates cond every interval until it holds or the timeout elapses.
// Errors returned by cond abort the wait immediately.
func Poll(
	ctx context.Context,
	timeout time.Duration,
	interval time.Duration,
	cond func(context.Context) (bool, error),
) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
