package directory

import (
	"errors"
	"time"
)

// NotAvailable marks a detail field whose extraction did not produce a value.
const NotAvailable = "N/A"

// Diagnostic artifact names.
const (
	ArtifactAfterSubmit = "after_search_submit.png"
	ArtifactPageSource  = "debug_page_source.html"
	ArtifactSearchError = "search_results_error.png"
)

var (
	// ErrEmptyKeyword is returned when Search is called with a blank keyword.
	ErrEmptyKeyword = errors.New("search keyword is empty")
	// ErrInputMismatch is returned when the rendered search field does not hold the typed keyword.
	ErrInputMismatch = errors.New("search input value does not match keyword")
	// ErrNoResults is returned when the site reports that nothing matched.
	ErrNoResults = errors.New("search returned no results")
	// ErrSearchFailed wraps any fault during search setup.
	ErrSearchFailed = errors.New("search failed")
)

// Entry is one company listed in the search results.
// Empty detail fields have not been enriched; enriched fields hold a value or NotAvailable.
type Entry struct {
	Name    string
	Link    string
	Website string
	Phone   string
	Address string
}

// Enriched reports whether the detail fields were filled in.
func (e Entry) Enriched() bool {
	return e.Website != "" && e.Phone != "" && e.Address != ""
}

// Selectors are the CSS selectors tied to the directory's markup.
type Selectors struct {
	SearchInput   string
	SearchSubmit  string
	NoResults     string
	NoResultsText string
	ResultName    string
	NextPage      string
	CookieAccept  string
	WebsiteButton string
	WebsiteLink   string
	PhoneButton   string
	PhoneText     string
	Address       string
}

// CollectorConfig controls the search and pagination walk.
type CollectorConfig struct {
	// BaseOrigin is scheme://host used to absolutize result links.
	BaseOrigin  string
	Selectors   Selectors
	WaitTimeout time.Duration
	// InputSettle is the pause between focusing the search field and typing.
	InputSettle time.Duration
	// PageSettle is the pause after moving to the next result page.
	PageSettle time.Duration
	// URLMarker is a substring the result page URL contains after a search.
	URLMarker string
	// MaxPages caps the number of result pages read. Zero means no cap.
	MaxPages int
}

// EnricherConfig controls detail page visits.
type EnricherConfig struct {
	Selectors   Selectors
	WaitTimeout time.Duration
	PageSettle  time.Duration
	// DetailQPS paces session starts per host across all workers. Zero disables pacing.
	DetailQPS float64
}

const pollInterval = 100 * time.Millisecond
