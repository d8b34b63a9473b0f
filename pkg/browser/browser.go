// Package browser drives a local Chromium through go-rod. A Page is both the
// scripted surface of the login flow and its DevTools instrumentation
// channel.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/thesyncim/loginbench/pkg/scenario"
)

// Config configures Chrome launch options.
type Config struct {
	Headless  bool          // Run in headless mode (default: true)
	NoSandbox bool          // Pass --no-sandbox, needed in most containers
	Bin       string        // Browser binary; empty lets rod find or download one
	Timeout   time.Duration // Bound for element lookups and clicks (default: 30s)
	Logger    *zap.Logger
}

// DefaultConfig returns the launch options used for benchmark runs.
func DefaultConfig() Config {
	return Config{
		Headless:  true,
		NoSandbox: true,
		Timeout:   30 * time.Second,
	}
}

// Browser is a launched Chrome process with a CDP connection.
type Browser struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	controlURL string
	cfg        Config
	logger     *zap.Logger
}

// Launch starts Chrome and connects to it.
// Always call Close (via defer) to prevent orphaned Chrome processes.
func Launch(cfg Config) (*Browser, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu")
	if cfg.NoSandbox {
		l = l.Set("no-sandbox")
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	logger.Info("browser launched",
		zap.String("control_url", controlURL),
		zap.Bool("headless", cfg.Headless))

	return &Browser{
		launcher:   l,
		browser:    b,
		controlURL: controlURL,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// OpenPage opens a blank tab.
func (b *Browser) OpenPage(ctx context.Context) (scenario.Page, error) {
	return b.NewPage(ctx)
}

// NewPage opens a blank tab and returns the concrete page.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	p, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &Page{
		page:    p.Context(context.Background()),
		timeout: b.cfg.Timeout,
		logger:  b.logger,
	}, nil
}

// DebugPort returns the remote debugging port the audit engine attaches to.
func (b *Browser) DebugPort() (int, error) {
	return portOf(b.controlURL)
}

// Close shuts Chrome down and removes its user data directory.
func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = multierr.Append(err, b.browser.Close())
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

// portOf extracts the port from a DevTools websocket URL such as
// ws://127.0.0.1:39245/devtools/browser/<id>.
func portOf(controlURL string) (int, error) {
	u, err := url.Parse(controlURL)
	if err != nil {
		return 0, fmt.Errorf("parse control url: %w", err)
	}
	p := u.Port()
	if p == "" {
		return 0, fmt.Errorf("control url %q has no port", controlURL)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("control url %q has invalid port %q", controlURL, p)
	}
	return port, nil
}

var _ scenario.Browser = (*Browser)(nil)
