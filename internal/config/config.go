// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is the settings file read when no path is given.
const DefaultPath = "config.yaml"

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig        `mapstructure:"default"`
	Headers   map[string]string `mapstructure:"headers"`
	Browser   BrowserConfig     `mapstructure:"browser"`
	Search    SearchConfig      `mapstructure:"search"`
	Selectors SelectorConfig    `mapstructure:"selectors"`
	Enrich    EnrichConfig      `mapstructure:"enrich"`
	Output    OutputConfig      `mapstructure:"output"`
	Artifacts ArtifactsConfig   `mapstructure:"artifacts"`
	DB        DBConfig          `mapstructure:"db"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// SiteConfig holds the target site and the identity presented to it.
type SiteConfig struct {
	SearchURL string `mapstructure:"search_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// BrowserConfig is the fixed option set shared by every browser session.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	DisableImages bool          `mapstructure:"disable_images"`
	WindowWidth   int           `mapstructure:"window_width"`
	WindowHeight  int           `mapstructure:"window_height"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
}

// SearchConfig governs the search and pagination waits.
type SearchConfig struct {
	WaitTimeout   time.Duration `mapstructure:"wait_timeout"`
	InputSettle   time.Duration `mapstructure:"input_settle"`
	LandingSettle time.Duration `mapstructure:"landing_settle"`
	PageSettle    time.Duration `mapstructure:"page_settle"`
	URLMarker     string        `mapstructure:"url_marker"`
	MaxPages      int           `mapstructure:"max_pages"`
}

// SelectorConfig lists the CSS selectors tied to the target site's markup.
type SelectorConfig struct {
	SearchInput   string `mapstructure:"search_input"`
	SearchSubmit  string `mapstructure:"search_submit"`
	NoResults     string `mapstructure:"no_results"`
	NoResultsText string `mapstructure:"no_results_text"`
	ResultName    string `mapstructure:"result_name"`
	NextPage      string `mapstructure:"next_page"`
	CookieAccept  string `mapstructure:"cookie_accept"`
	WebsiteButton string `mapstructure:"website_button"`
	WebsiteLink   string `mapstructure:"website_link"`
	PhoneButton   string `mapstructure:"phone_button"`
	PhoneText     string `mapstructure:"phone_text"`
	Address       string `mapstructure:"address"`
}

// EnrichConfig controls the detail-page worker pool.
type EnrichConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	PageSettle  time.Duration `mapstructure:"page_settle"`
	DetailQPS   float64       `mapstructure:"detail_qps"`
}

// OutputConfig names the result file.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// ArtifactsConfig sets where diagnostics and mirrored outputs go.
type ArtifactsConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// DBConfig controls the optional Postgres result store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig toggles the Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from the settings file at path and the environment.
// A missing file is an error.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %q not found: %w", path, err)
		}
		return Config{}, fmt.Errorf("stat config: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DIRECTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default.search_url", "https://www.wlw.de/")
	v.SetDefault("default.user_agent", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_images", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("search.wait_timeout", "2s")
	v.SetDefault("search.input_settle", "1s")
	v.SetDefault("search.landing_settle", "2s")
	v.SetDefault("search.page_settle", "2s")
	v.SetDefault("search.url_marker", "suche")
	v.SetDefault("search.max_pages", 0)
	v.SetDefault("selectors.search_input", "input.input")
	v.SetDefault("selectors.search_submit", "button.submit-button")
	v.SetDefault("selectors.no_results", "div")
	v.SetDefault("selectors.no_results_text", "keine Ergebnisse")
	v.SetDefault("selectors.result_name", `span.line-clamp-2.md\:line-clamp-1.break-anywhere`)
	v.SetDefault("selectors.next_page", "a.button.next[rel='next']")
	v.SetDefault("selectors.cookie_accept", "button#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll")
	v.SetDefault("selectors.website_button", "button.btn.btn--subtle.btn--md.website-button")
	v.SetDefault("selectors.website_link", "a.btn.btn--subtle.btn--md.website-button")
	v.SetDefault("selectors.phone_button", "button.phone-button")
	v.SetDefault("selectors.phone_text", "#tooltips a.copy-button span")
	v.SetDefault("selectors.address", "div.address.flex.items-center.gap-2.font-copy-500 span")
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.wait_timeout", "2s")
	v.SetDefault("enrich.page_settle", "1s")
	v.SetDefault("enrich.detail_qps", 0)
	v.SetDefault("output.path", "company_details.csv")
	v.SetDefault("artifacts.dir", ".")
	v.SetDefault("artifacts.gcs_prefix", "runs")
	v.SetDefault("db.table", "companies")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.SearchURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("default.search_url must be an absolute http(s) URL, got %q", c.Site.SearchURL)
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be >= 0")
	}
	if c.Search.WaitTimeout <= 0 {
		return fmt.Errorf("search.wait_timeout must be > 0")
	}
	if c.Search.MaxPages < 0 {
		return fmt.Errorf("search.max_pages must be >= 0")
	}
	if c.Selectors.SearchInput == "" || c.Selectors.SearchSubmit == "" || c.Selectors.ResultName == "" {
		return fmt.Errorf("selectors.search_input, selectors.search_submit and selectors.result_name must be set")
	}
	if c.Enrich.Concurrency <= 0 {
		return fmt.Errorf("enrich.concurrency must be > 0")
	}
	if c.Enrich.WaitTimeout <= 0 {
		return fmt.Errorf("enrich.wait_timeout must be > 0")
	}
	if c.Enrich.DetailQPS < 0 {
		return fmt.Errorf("enrich.detail_qps must be >= 0")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path must be set")
	}
	switch strings.ToLower(filepath.Ext(c.Output.Path)) {
	case ".csv", ".xlsx":
	default:
		return fmt.Errorf("output.path must end in .csv or .xlsx, got %q", c.Output.Path)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// BaseOrigin returns scheme://host of the search URL. Relative result links
// are resolved against it.
func (c Config) BaseOrigin() string {
	u, err := url.Parse(c.Site.SearchURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// HeaderSet merges the configured user agent with the optional header mapping.
// Header names are canonicalized; an explicit headers entry wins over the user agent.
func (c Config) HeaderSet() map[string]string {
	headers := make(map[string]string, len(c.Headers)+1)
	if c.Site.UserAgent != "" {
		headers["User-Agent"] = c.Site.UserAgent
	}
	for key, value := range c.Headers {
		headers[http.CanonicalHeaderKey(key)] = value
	}
	return headers
}
