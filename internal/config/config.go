// Package config loads loginbench settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/thesyncim/loginbench/pkg/browser"
	"github.com/thesyncim/loginbench/pkg/condition"
	"github.com/thesyncim/loginbench/pkg/scenario"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

// EnvPrefix prefixes every non-legacy environment key. Nested keys use a
// double underscore: LOGINBENCH_RESULTS__DIR sets results.dir.
const EnvPrefix = "LOGINBENCH_"

// Application names, in matrix order.
const (
	AppVue     = "vue"
	AppAngular = "angular"
	AppReact   = "react"
)

var appOrder = []string{AppVue, AppAngular, AppReact}

// legacyEnv maps the environment names used by the legacy collection
// scripts onto config keys.
var legacyEnv = map[string]string{
	"VUE_APP_URL":     "apps.vue",
	"ANGULAR_APP_URL": "apps.angular",
	"REACT_APP_URL":   "apps.react",
	"DOCTOR_USERNAME": "credentials.username",
	"PASSWORD":        "credentials.password",
	"APP_TYPE":        "app_type",
}

type Config struct {
	Apps        AppsConfig        `koanf:"apps"`
	AppType     string            `koanf:"app_type"` // vue, angular, react; empty runs all
	Credentials CredentialsConfig `koanf:"credentials"`
	Conditions  []string          `koanf:"conditions"`
	Scenario    ScenarioConfig    `koanf:"scenario"`
	Browser     BrowserConfig     `koanf:"browser"`
	Audit       AuditConfig       `koanf:"audit"`
	Results     ResultsConfig     `koanf:"results"`
	Log         LogConfig         `koanf:"log"`
	Trace       TraceConfig       `koanf:"trace"`
}

type AppsConfig struct {
	Vue     string `koanf:"vue"`
	Angular string `koanf:"angular"`
	React   string `koanf:"react"`
}

type CredentialsConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

type ScenarioConfig struct {
	Name                       string        `koanf:"name"`
	LoginPath                  string        `koanf:"login_path"`
	UsernameSelector           string        `koanf:"username_selector"`
	PasswordSelector           string        `koanf:"password_selector"`
	SubmitSelector             string        `koanf:"submit_selector"`
	MarkerSelector             string        `koanf:"marker_selector"` // present only after login
	NavigationTimeout          time.Duration `koanf:"navigation_timeout"`
	ThrottledNavigationTimeout time.Duration `koanf:"throttled_navigation_timeout"`
	LoginTimeout               time.Duration `koanf:"login_timeout"`
	SampleInterval             time.Duration `koanf:"sample_interval"`
}

type BrowserConfig struct {
	Headless  bool          `koanf:"headless"`
	NoSandbox bool          `koanf:"no_sandbox"`
	Bin       string        `koanf:"bin"`
	Timeout   time.Duration `koanf:"timeout"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	Binary  string `koanf:"binary"`
}

type ResultsConfig struct {
	Dir    string `koanf:"dir"`
	Ledger string `koanf:"ledger"` // SQLite path; empty means {dir}/ledger.db, LedgerOff disables
}

// LedgerOff as results.ledger disables the run ledger.
const LedgerOff = "off"

// LedgerPath returns the ledger location, or "" when the ledger is disabled.
// An unset ledger follows the results directory.
func (r ResultsConfig) LedgerPath() string {
	switch r.Ledger {
	case LedgerOff:
		return ""
	case "":
		return filepath.Join(r.Dir, "ledger.db")
	}
	return r.Ledger
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type TraceConfig struct {
	File string `koanf:"file"` // span output; empty disables tracing
}

func defaults() map[string]any {
	return map[string]any{
		"scenario.name":                         "login",
		"scenario.login_path":                   "login",
		"scenario.username_selector":            "#email-input",
		"scenario.password_selector":            "#password-input",
		"scenario.submit_selector":              "#submit-btn",
		"scenario.marker_selector":              "#home",
		"scenario.navigation_timeout":           "120s",
		"scenario.throttled_navigation_timeout": "300s",
		"scenario.login_timeout":                "60s",
		"scenario.sample_interval":              "100ms",
		"browser.headless":                      true,
		"browser.no_sandbox":                    true,
		"browser.timeout":                       "30s",
		"audit.enabled":                         true,
		"audit.binary":                          "lighthouse",
		"results.dir":                           "results",
		"log.level":                             "info",
		"conditions":                            condition.DefaultLabels(),
	}
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration. path names an optional YAML file; a missing
// file is not an error. Environment variables override the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyKey), nil); err != nil {
		return nil, err
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// legacyKey maps a recognised legacy variable to its key; every other
// variable is skipped.
func legacyKey(name, value string) (string, any) {
	key, ok := legacyEnv[name]
	if !ok || value == "" {
		return "", nil
	}
	return key, value
}

// listKeys are the keys whose environment value is a comma-separated list.
var listKeys = map[string]bool{
	"conditions": true,
}

// prefixedKey maps LOGINBENCH_RESULTS__DIR to results.dir and splits list
// values: LOGINBENCH_CONDITIONS=fast3g,slow3g+slow-cpu.
func prefixedKey(name, value string) (string, any) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// ValidationError names the setting that made the configuration unusable.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Validate checks everything a run needs before any browser is started.
func (c *Config) Validate() error {
	if c.AppType != "" && c.appURL(c.AppType) == nil {
		return &ValidationError{Key: "app_type", Reason: fmt.Sprintf("unknown application %q (want vue, angular or react)", c.AppType)}
	}
	for _, name := range c.selectedApps() {
		raw := *c.appURL(name)
		if raw == "" {
			return &ValidationError{Key: "apps." + name, Reason: "url is required (" + strings.ToUpper(name) + "_APP_URL)"}
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Key: "apps." + name, Reason: fmt.Sprintf("invalid url %q", raw)}
		}
	}
	if c.Credentials.Username == "" {
		return &ValidationError{Key: "credentials.username", Reason: "is required (DOCTOR_USERNAME)"}
	}
	if c.Credentials.Password == "" {
		return &ValidationError{Key: "credentials.password", Reason: "is required (PASSWORD)"}
	}
	if len(c.Conditions) == 0 {
		return &ValidationError{Key: "conditions", Reason: "at least one condition is required"}
	}
	if _, err := condition.ParseAll(c.Conditions); err != nil {
		return &ValidationError{Key: "conditions", Reason: err.Error()}
	}
	for key, d := range map[string]time.Duration{
		"scenario.navigation_timeout":           c.Scenario.NavigationTimeout,
		"scenario.throttled_navigation_timeout": c.Scenario.ThrottledNavigationTimeout,
		"scenario.login_timeout":                c.Scenario.LoginTimeout,
		"scenario.sample_interval":              c.Scenario.SampleInterval,
	} {
		if d <= 0 {
			return &ValidationError{Key: key, Reason: "must be positive"}
		}
	}
	if c.Results.Dir == "" {
		return &ValidationError{Key: "results.dir", Reason: "is required"}
	}
	return nil
}

func (c *Config) appURL(name string) *string {
	switch name {
	case AppVue:
		return &c.Apps.Vue
	case AppAngular:
		return &c.Apps.Angular
	case AppReact:
		return &c.Apps.React
	}
	return nil
}

func (c *Config) selectedApps() []string {
	if c.AppType != "" {
		return []string{c.AppType}
	}
	return appOrder
}

// Applications returns the applications to benchmark, in matrix order.
func (c *Config) Applications() []scenario.App {
	var apps []scenario.App
	for _, name := range c.selectedApps() {
		if u := c.appURL(name); u != nil {
			apps = append(apps, scenario.App{Name: name, BaseURL: *u})
		}
	}
	return apps
}

// MatrixConditions parses the configured condition labels.
func (c *Config) MatrixConditions() ([]condition.Condition, error) {
	return condition.ParseAll(c.Conditions)
}

// ScenarioConfig converts the scenario settings for the executor.
func (c *Config) ScenarioConfig() scenario.Config {
	s := c.Scenario
	return scenario.Config{
		Name:      s.Name,
		LoginPath: s.LoginPath,
		Credentials: scenario.Credentials{
			Username: c.Credentials.Username,
			Password: c.Credentials.Password,
		},
		Selectors: scenario.Selectors{
			Username: s.UsernameSelector,
			Password: s.PasswordSelector,
			Submit:   s.SubmitSelector,
			Marker:   s.MarkerSelector,
		},
		NavigationTimeout:          s.NavigationTimeout,
		ThrottledNavigationTimeout: s.ThrottledNavigationTimeout,
		LoginTimeout:               s.LoginTimeout,
		Collector:                  telemetry.Config{Interval: s.SampleInterval},
	}
}

// BrowserConfig converts the browser settings for the launcher.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		Headless:  c.Browser.Headless,
		NoSandbox: c.Browser.NoSandbox,
		Bin:       c.Browser.Bin,
		Timeout:   c.Browser.Timeout,
	}
}
