package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/directory-crawler/internal/browser"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
	"github.com/JakeFAU/directory-crawler/internal/policy/ratelimit"
)

// Detail field names used in logs and metrics.
const (
	FieldWebsite = "website"
	FieldPhone   = "phone"
	FieldAddress = "address"
)

// Enricher visits detail pages, one fresh browser session per entry.
type Enricher struct {
	factory browser.Factory
	cfg     EnricherConfig
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// NewEnricher validates cfg and returns an Enricher backed by factory.
func NewEnricher(factory browser.Factory, cfg EnricherConfig, logger *zap.Logger) (*Enricher, error) {
	if factory == nil {
		return nil, errors.New("browser factory is required")
	}
	if cfg.WaitTimeout <= 0 {
		return nil, errors.New("wait timeout must be > 0")
	}
	if cfg.DetailQPS < 0 {
		return nil, errors.New("detail qps must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Enricher{factory: factory, cfg: cfg, logger: logger.Named("enricher")}
	if cfg.DetailQPS > 0 {
		e.limiter = ratelimit.New(ratelimit.Config{RPS: cfg.DetailQPS, Burst: 1})
	}
	return e, nil
}

// Enrich fills the detail fields of every entry that has a link, running at most
// concurrency detail sessions at a time. The result has the same length and order
// as entries. Entries without a link, and entries whose task failed, are returned
// as they came in.
func (e *Enricher) Enrich(ctx context.Context, entries []Entry, concurrency int) []Entry {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]Entry, len(entries))
	copy(out, entries)

	var g errgroup.Group
	g.SetLimit(concurrency)
	dispatched := 0
	for i, entry := range entries {
		if entry.Link == "" {
			e.logger.Debug("skipping entry without link", zap.String("company", entry.Name))
			metrics.ObserveDetailFetch(metrics.OutcomeSkipped, 0)
			continue
		}
		dispatched++
		g.Go(func() error {
			start := time.Now()
			enriched, err := e.runTask(ctx, entry)
			if err != nil {
				e.logger.Error("detail scraping failed",
					zap.String("company", entry.Name),
					zap.String("link", entry.Link),
					zap.Error(err))
				metrics.ObserveDetailFetch(metrics.OutcomeFailed, time.Since(start))
				return nil
			}
			out[i] = enriched
			metrics.ObserveDetailFetch(metrics.OutcomeSuccess, time.Since(start))
			return nil
		})
	}
	// tasks never return errors; failures are logged and keep the original entry
	_ = g.Wait()

	e.logger.Info("enrichment finished",
		zap.Int("entries", len(entries)),
		zap.Int("dispatched", dispatched),
		zap.Int("concurrency", concurrency))
	return out
}

func (e *Enricher) runTask(ctx context.Context, entry Entry) (result Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = entry, fmt.Errorf("detail task panicked: %v", r)
		}
	}()
	return e.fetchDetails(ctx, entry)
}

func (e *Enricher) fetchDetails(ctx context.Context, entry Entry) (Entry, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, entry.Link); err != nil {
			return entry, fmt.Errorf("wait for detail slot: %w", err)
		}
	}
	session, err := e.factory.New(ctx)
	if err != nil {
		return entry, fmt.Errorf("open detail session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("close detail session", zap.String("link", entry.Link), zap.Error(cerr))
		}
	}()

	if err := session.Navigate(ctx, entry.Link); err != nil {
		return entry, err
	}
	if err := browser.Settle(ctx, e.cfg.PageSettle); err != nil {
		return entry, err
	}

	enriched := entry
	enriched.Website = e.website(ctx, session)
	enriched.Phone = e.phone(ctx, session)
	enriched.Address = e.address(ctx, session)
	if err := ctx.Err(); err != nil {
		return entry, err
	}
	e.logger.Debug("company details scraped",
		zap.String("company", enriched.Name),
		zap.String("website", enriched.Website),
		zap.String("phone", enriched.Phone),
		zap.String("address", enriched.Address))
	return enriched, nil
}

func (e *Enricher) website(ctx context.Context, session browser.Session) string {
	sel := e.cfg.Selectors
	return e.field(FieldWebsite, func() (string, error) {
		if err := session.WaitClickable(ctx, sel.WebsiteButton, e.cfg.WaitTimeout); err != nil {
			return "", err
		}
		if err := session.Click(ctx, sel.WebsiteButton); err != nil {
			return "", err
		}
		if err := session.WaitPresent(ctx, sel.WebsiteLink, e.cfg.WaitTimeout); err != nil {
			return "", err
		}
		href, _, err := session.Attribute(ctx, sel.WebsiteLink, "href")
		return href, err
	})
}

func (e *Enricher) phone(ctx context.Context, session browser.Session) string {
	sel := e.cfg.Selectors
	return e.field(FieldPhone, func() (string, error) {
		if err := session.WaitClickable(ctx, sel.PhoneButton, e.cfg.WaitTimeout); err != nil {
			return "", err
		}
		if err := session.Click(ctx, sel.PhoneButton); err != nil {
			return "", err
		}
		if err := session.WaitPresent(ctx, sel.PhoneText, e.cfg.WaitTimeout); err != nil {
			return "", err
		}
		return session.Text(ctx, sel.PhoneText)
	})
}

func (e *Enricher) address(ctx context.Context, session browser.Session) string {
	sel := e.cfg.Selectors
	return e.field(FieldAddress, func() (string, error) {
		if err := session.WaitPresent(ctx, sel.Address, e.cfg.WaitTimeout); err != nil {
			return "", err
		}
		return session.Text(ctx, sel.Address)
	})
}

// field runs one extraction and maps a blank result or any fault to NotAvailable.
func (e *Enricher) field(name string, extract func() (string, error)) string {
	value, err := extract()
	value = strings.TrimSpace(value)
	switch {
	case err != nil && browser.IsTimeout(err):
		e.logger.Debug("detail field not found", zap.String("field", name))
	case err != nil:
		e.logger.Warn("detail field extraction failed", zap.String("field", name), zap.Error(err))
	}
	if err != nil || value == "" {
		metrics.ObserveDetailField(name, false)
		return NotAvailable
	}
	metrics.ObserveDetailField(name, true)
	return value
}
