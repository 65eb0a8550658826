package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewChromedpFactoryValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedpFactory(Options{WindowWidth: -1}, nil); err == nil {
		t.Fatal("expected error for negative window width")
	}
	factory, err := NewChromedpFactory(Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, defaultActionTimeout, factory.opts.ActionTimeout)
}

func TestAllocatorOptionsGrowWithSettings(t *testing.T) {
	t.Parallel()

	base := allocatorOptions(Options{Headless: true})
	full := allocatorOptions(Options{
		Headless:      true,
		DisableImages: true,
		UserAgent:     "TestAgent/1.0",
		WindowWidth:   1920,
		WindowHeight:  1080,
	})
	require.Len(t, full, len(base)+3)

	partialWindow := allocatorOptions(Options{Headless: true, WindowWidth: 800})
	require.Len(t, partialWindow, len(base))
}

func TestToNetworkHeadersSkipsUserAgent(t *testing.T) {
	t.Parallel()

	headers := toNetworkHeaders(map[string]string{
		"user-agent":      "ignored",
		"Accept-Language": "de-DE",
		"":                "empty",
	})
	require.Len(t, headers, 1)
	require.Equal(t, "de-DE", headers["Accept-Language"])
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("succeeds once condition holds", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := Poll(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return calls >= 3, nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("times out", func(t *testing.T) {
		t.Parallel()
		err := Poll(context.Background(), 20*time.Millisecond, 5*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		require.True(t, IsTimeout(err), "expected timeout, got %v", err)
	})

	t.Run("propagates condition errors", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		err := Poll(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
			return false, boom
		})
		require.ErrorIs(t, err, boom)
		require.False(t, IsTimeout(err))
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Poll(ctx, time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSettle(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, Settle(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.NoError(t, Settle(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Settle(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, Settle(ctx, 0), context.Canceled)
}

func TestChromedpSessionRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><head><title>Directory</title></head><body>
<input class="input" value=""><a id="site" href="https://example.com">site</a>
<div class="address"><span>Main St. 1</span></div></body></html>`)
	}))
	defer srv.Close()

	factory, err := NewChromedpFactory(Options{
		Headless:      true,
		DisableImages: true,
		UserAgent:     "TestAgent",
		WindowWidth:   1280,
		WindowHeight:  720,
		ActionTimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	session, err := factory.New(ctx)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer session.Close() //nolint:errcheck // best-effort cleanup

	require.NoError(t, session.Navigate(ctx, srv.URL))
	require.NoError(t, session.WaitPresent(ctx, "input.input", 2*time.Second))
	require.NoError(t, session.SendKeys(ctx, "input.input", "metall"))

	value, err := session.Value(ctx, "input.input")
	require.NoError(t, err)
	require.Equal(t, "metall", value)

	href, ok, err := session.Attribute(ctx, "#site", "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com", href)

	text, err := session.Text(ctx, "div.address span")
	require.NoError(t, err)
	require.Equal(t, "Main St. 1", strings.TrimSpace(text))

	title, err := session.Title(ctx)
	require.NoError(t, err)
	require.Equal(t, "Directory", title)

	err = session.WaitClickable(ctx, "button.missing", 200*time.Millisecond)
	require.True(t, IsTimeout(err), "expected timeout, got %v", err)

	png, err := session.Screenshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
}
