package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/metrics"
)

// ChromedpFactory launches one headless Chrome per session via chromedp.
type ChromedpFactory struct {
	opts   Options
	logger *zap.Logger
}

// NewChromedpFactory validates opts and returns a factory.
func NewChromedpFactory(opts Options, logger *zap.Logger) (*ChromedpFactory, error) {
	if opts.WindowWidth < 0 || opts.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpFactory{opts: opts, logger: logger}, nil
}

// New starts a browser process and returns a session bound to its first tab.
func (f *ChromedpFactory) New(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(f.opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		f.logger.Debug("chromedp", zap.String("detail", fmt.Sprintf(format, args...)))
	}))

	// The first Run allocates the browser. A deadline on this call would tear
	// the browser down when it fires.
	if err := chromedp.Run(browserCtx, f.networkSetupAction()); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	metrics.SessionOpened()
	return &chromedpSession{
		ctx:           browserCtx,
		cancel:        browserCancel,
		allocCancel:   allocCancel,
		actionTimeout: f.opts.ActionTimeout,
	}, nil
}

func (f *ChromedpFactory) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if headers := toNetworkHeaders(f.opts.Headers); len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.DisableImages {
		out = append(out, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	return out
}

// toNetworkHeaders drops User-Agent, which is applied through the emulation override.
func toNetworkHeaders(h map[string]string) network.Headers {
	headers := network.Headers{}
	for key, value := range h {
		if key == "" || http.CanonicalHeaderKey(key) == "User-Agent" {
			continue
		}
		headers[key] = value
	}
	return headers
}

type chromedpSession struct {
	ctx           context.Context
	cancel        context.CancelFunc
	allocCancel   context.CancelFunc
	actionTimeout time.Duration
	closeOnce     sync.Once
	closeErr      error
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait present %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) WaitClickable(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("wait clickable %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Clear(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Clear(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clear %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) SendKeys(ctx context.Context, selector, text string) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("send keys %q: %w", selector, err)
	}
	return nil
}

func (s *chromedpSession) Value(ctx context.Context, selector string) (string, error) {
	var value string
	if err := s.run(ctx, s.actionTimeout, chromedp.Value(selector, &value, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read value %q: %w", selector, err)
	}
	return value, nil
}

func (s *chromedpSession) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, s.actionTimeout, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read text %q: %w", selector, err)
	}
	return text, nil
}

func (s *chromedpSession) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, s.actionTimeout, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("read attribute %s of %q: %w", name, selector, err)
	}
	return value, ok, nil
}

func (s *chromedpSession) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.actionTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (s *chromedpSession) Location(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, s.actionTimeout, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

func (s *chromedpSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page source: %w", err)
	}
	return html, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close browser: %w", err)
		}
		s.cancel()
		s.allocCancel()
		metrics.SessionClosed()
	})
	return s.closeErr
}

// run executes actions against the session tab, bounded by timeout and by the
// caller's ctx. Deadline expiry is reported as ErrTimeout.
func (s *chromedpSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	default:
		return err
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
