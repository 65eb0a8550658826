package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/directory-crawler/internal/browser"
)

// page is a static document; clicking a selector either loads another url or
// reveals more selectors on the current page.
type page struct {
	title     string
	html      string
	present   []string
	clickable []string
	texts     map[string]string
	attrs     map[string]map[string]string
	goTo      map[string]string
	reveal    map[string][]string
}

type site map[string]*page

type session struct {
	mu       sync.Mutex
	site     site
	url      string
	value    string
	revealed map[string]bool
	closed   bool
	onClose  func()
}

func (s *session) cur() *page {
	if p, ok := s.site[s.url]; ok {
		return p
	}
	return &page{}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (s *session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.site[url]; !ok {
		return fmt.Errorf("navigate %s: not found", url)
	}
	s.url = url
	s.revealed = map[string]bool{}
	return nil
}

func (s *session) WaitPresent(_ context.Context, sel string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.cur()
	if contains(p.present, sel) || contains(p.clickable, sel) || s.revealed[sel] {
		return nil
	}
	return fmt.Errorf("%q: %w", sel, browser.ErrTimeout)
}

func (s *session) WaitClickable(_ context.Context, sel string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contains(s.cur().clickable, sel) {
		return nil
	}
	return fmt.Errorf("%q: %w", sel, browser.ErrTimeout)
}

func (s *session) Click(_ context.Context, sel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.cur()
	if !contains(p.clickable, sel) && !contains(p.present, sel) {
		return fmt.Errorf("click %q: no such element", sel)
	}
	if next, ok := p.goTo[sel]; ok {
		s.url = next
		s.revealed = map[string]bool{}
		return nil
	}
	for _, r := range p.reveal[sel] {
		s.revealed[r] = true
	}
	return nil
}

func (s *session) Clear(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	return nil
}

func (s *session) SendKeys(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value += text
	return nil
}

func (s *session) Value(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, nil
}

func (s *session) Text(_ context.Context, sel string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cur().texts[sel]; ok {
		return t, nil
	}
	return "", errors.New("no such element")
}

func (s *session) Attribute(_ context.Context, sel, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, ok := s.cur().attrs[sel]
	if !ok {
		return "", false, errors.New("no such element")
	}
	v, ok := attrs[name]
	return v, ok, nil
}

func (s *session) Title(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur().title, nil
}

func (s *session) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *session) PageSource(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur().html, nil
}

func (s *session) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.onClose != nil {
		s.onClose()
	}
	s.closed = true
	return nil
}

type factory struct {
	mu      sync.Mutex
	site    site
	fail    bool
	created int
	open    int
}

func (f *factory) New(context.Context) (browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("chrome not found")
	}
	f.created++
	f.open++
	return &session{site: f.site, revealed: map[string]bool{}, onClose: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.open--
	}}, nil
}

func (f *factory) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
