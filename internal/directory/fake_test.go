package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/directory-crawler/internal/browser"
)

// fakePage is one document the fake browser can show.
type fakePage struct {
	url       string
	title     string
	html      string
	present   map[string]bool
	clickable map[string]bool
	texts     map[string]string
	attrs     map[string]map[string]string
	// onClick maps a selector to the state change clicking it causes.
	onClick map[string]func(*fakeSession)
}

func (p *fakePage) has(set map[string]bool, sel string) bool {
	return p != nil && set != nil && set[sel]
}

// fakeSession implements browser.Session over fakePage values.
type fakeSession struct {
	mu        sync.Mutex
	site      map[string]*fakePage
	current   *fakePage
	value     string
	mangle    func(string) string
	clicks    []string
	shots     int
	closed    bool
	sourceErr error
	navDelay  time.Duration
	onClose   func()
}

var _ browser.Session = (*fakeSession)(nil)

func timeoutErr(sel string) error {
	return fmt.Errorf("wait %q: %w", sel, browser.ErrTimeout)
}

func (s *fakeSession) show(p *fakePage) {
	s.current = p
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	if s.navDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.navDelay):
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.site[url]
	if !ok {
		return fmt.Errorf("navigate %s: net::ERR_NAME_NOT_RESOLVED", url)
	}
	s.current = page
	return nil
}

func (s *fakeSession) WaitPresent(_ context.Context, sel string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.has(s.current.present, sel) || s.current.has(s.current.clickable, sel) {
		return nil
	}
	return timeoutErr(sel)
}

func (s *fakeSession) WaitClickable(_ context.Context, sel string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.has(s.current.clickable, sel) {
		return nil
	}
	return timeoutErr(sel)
}

func (s *fakeSession) Click(_ context.Context, sel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, sel)
	if !s.current.has(s.current.clickable, sel) && !s.current.has(s.current.present, sel) {
		return fmt.Errorf("click %q: no such element", sel)
	}
	if fn := s.current.onClick[sel]; fn != nil {
		fn(s)
	}
	return nil
}

func (s *fakeSession) Clear(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	return nil
}

func (s *fakeSession) SendKeys(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mangle != nil {
		text = s.mangle(text)
	}
	s.value += text
	return nil
}

func (s *fakeSession) Value(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

func (s *fakeSession) Text(_ context.Context, sel string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.current.texts[sel]; ok {
		return text, nil
	}
	return "", fmt.Errorf("text %q: no such element", sel)
}

func (s *fakeSession) Attribute(_ context.Context, sel, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.current.attrs[sel]
	if !ok {
		return "", false, fmt.Errorf("attribute %q: no such element", sel)
	}
	value, ok := attrs[name]
	return value, ok, nil
}

func (s *fakeSession) Title(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.title, nil
}

func (s *fakeSession) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.url, nil
}

func (s *fakeSession) PageSource(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceErr != nil {
		return "", s.sourceErr
	}
	return s.current.html, nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shots++
	return []byte("\x89PNG"), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.onClose != nil {
		s.onClose()
	}
	s.closed = true
	return nil
}

// fakeFactory hands out sessions over a shared site map and tracks how many are open.
type fakeFactory struct {
	mu       sync.Mutex
	site     map[string]*fakePage
	navDelay time.Duration
	failNew  map[int]bool
	panicOn  string
	created  int
	open     int
	maxOpen  int
	sessions []*fakeSession
}

var _ browser.Factory = (*fakeFactory)(nil)

func (f *fakeFactory) New(context.Context) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.failNew[f.created] {
		return nil, errors.New("chrome failed to start")
	}
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	s := &fakeSession{site: f.site, navDelay: f.navDelay}
	s.onClose = func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.open--
	}
	f.sessions = append(f.sessions, s)
	if f.panicOn != "" {
		return &panickySession{fakeSession: s, url: f.panicOn}, nil
	}
	return s, nil
}

func (f *fakeFactory) stats() (created, open, maxOpen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.open, f.maxOpen
}

// panickySession panics when asked to open url.
type panickySession struct {
	*fakeSession
	url string
}

func (p *panickySession) Navigate(ctx context.Context, url string) error {
	if url == p.url {
		panic("renderer crashed")
	}
	return p.fakeSession.Navigate(ctx, url)
}
