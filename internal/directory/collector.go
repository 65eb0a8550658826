package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/browser"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
	"github.com/JakeFAU/directory-crawler/internal/storage"
)

// Collector submits a search on the main session and gathers result entries.
type Collector struct {
	cfg       CollectorConfig
	artifacts storage.BlobStore
	logger    *zap.Logger
}

// NewCollector validates cfg. A nil artifacts store disables diagnostic files.
func NewCollector(cfg CollectorConfig, artifacts storage.BlobStore, logger *zap.Logger) (*Collector, error) {
	if cfg.Selectors.SearchInput == "" || cfg.Selectors.SearchSubmit == "" || cfg.Selectors.ResultName == "" {
		return nil, errors.New("search input, submit and result selectors are required")
	}
	if cfg.WaitTimeout <= 0 {
		return nil, errors.New("wait timeout must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{cfg: cfg, artifacts: artifacts, logger: logger.Named("collector")}, nil
}

// Search types keyword into the search form of a session already on the landing page,
// submits it and walks every result page.
//
// A mismatched input value returns ErrInputMismatch. A "no results" page returns
// ErrNoResults. Other setup faults write diagnostics and return an error wrapping
// ErrSearchFailed. Faults while paginating end the walk and keep what was collected.
func (c *Collector) Search(ctx context.Context, session browser.Session, keyword string) ([]Entry, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, ErrEmptyKeyword
	}
	sel := c.cfg.Selectors
	logger := c.logger.With(zap.String("keyword", keyword))

	if err := session.WaitPresent(ctx, sel.SearchInput, c.cfg.WaitTimeout); err != nil {
		return nil, c.fail(ctx, session, "locate search input", err)
	}
	logger.Debug("search input found")
	if err := session.Click(ctx, sel.SearchInput); err != nil {
		return nil, c.fail(ctx, session, "focus search input", err)
	}
	if err := browser.Settle(ctx, c.cfg.InputSettle); err != nil {
		return nil, c.fail(ctx, session, "settle search input", err)
	}
	if err := session.Clear(ctx, sel.SearchInput); err != nil {
		return nil, c.fail(ctx, session, "clear search input", err)
	}
	if err := session.SendKeys(ctx, sel.SearchInput, keyword); err != nil {
		return nil, c.fail(ctx, session, "type keyword", err)
	}
	value, err := session.Value(ctx, sel.SearchInput)
	if err != nil {
		return nil, c.fail(ctx, session, "read search input", err)
	}
	if value != keyword {
		logger.Error("search input value does not match keyword", zap.String("value", value))
		return nil, fmt.Errorf("%w: got %q", ErrInputMismatch, value)
	}

	if err := session.WaitClickable(ctx, sel.SearchSubmit, c.cfg.WaitTimeout); err != nil {
		return nil, c.fail(ctx, session, "locate search button", err)
	}
	if err := session.Click(ctx, sel.SearchSubmit); err != nil {
		return nil, c.fail(ctx, session, "submit search", err)
	}
	if err := c.waitForResultsPage(ctx, session, keyword); err != nil {
		return nil, c.fail(ctx, session, "wait for result page", err)
	}
	logger.Debug("page title or url updated after search")

	c.screenshot(ctx, session, ArtifactAfterSubmit)

	if c.noResults(ctx, session) {
		logger.Info("no results found")
		return nil, ErrNoResults
	}

	entries := c.paginate(ctx, session)
	logger.Info("search finished", zap.Int("entries", len(entries)))
	return entries, nil
}

func (c *Collector) waitForResultsPage(ctx context.Context, session browser.Session, keyword string) error {
	needle := strings.ToLower(keyword)
	return browser.Poll(ctx, c.cfg.WaitTimeout, pollInterval, func(ctx context.Context) (bool, error) {
		title, err := session.Title(ctx)
		if err != nil {
			return false, err
		}
		if strings.Contains(strings.ToLower(title), needle) {
			return true, nil
		}
		if c.cfg.URLMarker == "" {
			return false, nil
		}
		location, err := session.Location(ctx)
		if err != nil {
			return false, err
		}
		return strings.Contains(location, c.cfg.URLMarker), nil
	})
}

func (c *Collector) noResults(ctx context.Context, session browser.Session) bool {
	sel := c.cfg.Selectors
	if sel.NoResults == "" || sel.NoResultsText == "" {
		return false
	}
	html, err := session.PageSource(ctx)
	if err != nil {
		c.logger.Warn("read page source for no-results check", zap.Error(err))
		return false
	}
	empty, err := HasNoResults(html, sel.NoResults, sel.NoResultsText)
	if err != nil {
		c.logger.Warn("no-results check", zap.Error(err))
		return false
	}
	return empty
}

func (c *Collector) paginate(ctx context.Context, session browser.Session) []Entry {
	sel := c.cfg.Selectors
	var entries []Entry
	for page := 1; ; page++ {
		logger := c.logger.With(zap.Int("page", page))

		html, err := session.PageSource(ctx)
		if err != nil {
			logger.Error("read result page", zap.Error(err))
			return entries
		}
		found, err := ParseResults(html, sel.ResultName, c.cfg.BaseOrigin)
		if err != nil {
			logger.Error("parse result page", zap.Error(err))
			return entries
		}
		if len(found) == 0 {
			logger.Debug("no company names found on this page")
		}
		for _, e := range found {
			if e.Link == "" {
				logger.Error("failed to extract link", zap.String("company", e.Name))
			} else {
				logger.Info("found company", zap.String("company", e.Name), zap.String("link", e.Link))
			}
		}
		entries = append(entries, found...)
		metrics.ObserveResultPage(c.cfg.BaseOrigin, len(found))

		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			logger.Info("page limit reached", zap.Int("max_pages", c.cfg.MaxPages))
			return entries
		}

		if c.dismissCookies(ctx, session) {
			logger.Debug("cookie popup dismissed during pagination")
		}

		if sel.NextPage == "" {
			return entries
		}
		if err := session.WaitClickable(ctx, sel.NextPage, c.cfg.WaitTimeout); err != nil {
			if browser.IsTimeout(err) {
				logger.Debug("no next button found, reached the last page")
			} else {
				logger.Error("pagination stopped", zap.Error(err))
			}
			return entries
		}
		if err := session.Click(ctx, sel.NextPage); err != nil {
			logger.Error("pagination stopped", zap.Error(err))
			return entries
		}
		if err := browser.Settle(ctx, c.cfg.PageSettle); err != nil {
			logger.Warn("pagination interrupted", zap.Error(err))
			return entries
		}
	}
}

// dismissCookies clicks the consent button when it shows up. Failures are not fatal.
func (c *Collector) dismissCookies(ctx context.Context, session browser.Session) bool {
	selector := c.cfg.Selectors.CookieAccept
	if selector == "" {
		return false
	}
	if err := session.WaitClickable(ctx, selector, c.cfg.WaitTimeout); err != nil {
		if !browser.IsTimeout(err) {
			c.logger.Debug("cookie consent lookup failed", zap.Error(err))
		}
		return false
	}
	if err := session.Click(ctx, selector); err != nil {
		c.logger.Warn("cookie consent click failed", zap.Error(err))
		return false
	}
	return true
}

// fail writes the page source and a screenshot, then wraps err with ErrSearchFailed.
func (c *Collector) fail(ctx context.Context, session browser.Session, step string, err error) error {
	switch {
	case browser.IsTimeout(err):
		c.logger.Error("timeout during search", zap.String("step", step), zap.Error(err))
	default:
		c.logger.Error("search step failed", zap.String("step", step), zap.Error(err))
	}
	// diagnostics still go out when the run is being canceled
	dctx := context.WithoutCancel(ctx)
	if html, perr := session.PageSource(dctx); perr != nil {
		c.logger.Error("failed to read page source for diagnostics", zap.Error(perr))
	} else {
		c.storeArtifact(dctx, ArtifactPageSource, []byte(html))
	}
	c.screenshot(dctx, session, ArtifactSearchError)
	return fmt.Errorf("%w: %s: %w", ErrSearchFailed, step, err)
}

func (c *Collector) screenshot(ctx context.Context, session browser.Session, name string) {
	png, err := session.Screenshot(ctx)
	if err != nil {
		c.logger.Warn("screenshot failed", zap.String("artifact", name), zap.Error(err))
		return
	}
	c.storeArtifact(ctx, name, png)
}

func (c *Collector) storeArtifact(ctx context.Context, name string, data []byte) {
	if c.artifacts == nil {
		return
	}
	uri, err := c.artifacts.PutObject(ctx, name, storage.ContentTypeFor(name), bytes.NewReader(data))
	if err != nil {
		c.logger.Error("failed to save diagnostic artifact", zap.String("artifact", name), zap.Error(err))
		return
	}
	c.logger.Debug("saved diagnostic artifact", zap.String("artifact", name), zap.String("uri", uri))
}
