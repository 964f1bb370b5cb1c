package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// AppName names the config and cache directories
const AppName = "webprobe"

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Target   TargetConfig   `toml:"target"`
	Output   OutputConfig   `toml:"output"`
	Browser  BrowserConfig  `toml:"browser"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Checks   []CheckConfig  `toml:"checks"`
	Policy   PolicyConfig   `toml:"policy"`
	Watch    WatchConfig    `toml:"watch"`
	History  HistoryConfig  `toml:"history"`
	Alert    AlertConfig    `toml:"alert"`
}

type TargetConfig struct {
	BaseURL  string `toml:"base_url"`
	PagePath string `toml:"page_path"`
}

type OutputConfig struct {
	ScreenshotPath string `toml:"screenshot_path"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
	UserAgent    string `toml:"user_agent"`
	ExecPath     string `toml:"exec_path"`
	NoSandbox    bool   `toml:"no_sandbox"`

	// StartTimeout bounds launching Chrome and attaching to its first tab.
	StartTimeout time.Duration `toml:"start_timeout"`
}

type TimeoutsConfig struct {
	// Navigation bounds navigating plus waiting for network quiescence.
	Navigation time.Duration `toml:"navigation"`
	IdleWindow time.Duration `toml:"idle_window"`
}

// CheckConfig names one element that must be visible after the page settles
type CheckConfig struct {
	Name     string `toml:"name"`
	Selector string `toml:"selector"`
}

type PolicyConfig struct {
	// Strict makes failed checks change the exit code.
	Strict bool `toml:"strict"`
}

type WatchConfig struct {
	Schedule string `toml:"schedule"`
	Timezone string `toml:"timezone"`
	// Listen serves /metrics and the runs API when set, e.g. ":9464"
	Listen         string `toml:"listen"`
	ReloadOnChange bool   `toml:"reload_on_change"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

type AlertConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Target: TargetConfig{
			BaseURL:  "http://localhost:8000",
			PagePath: "/web/index.html",
		},
		Output: OutputConfig{
			ScreenshotPath: "verification/initial_load.png",
		},
		Browser: BrowserConfig{
			Headless:     true,
			WindowWidth:  1280,
			WindowHeight: 720,
			StartTimeout: 30 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Navigation: 30 * time.Second,
			IdleWindow: 500 * time.Millisecond,
		},
		Checks: DefaultChecks(),
		Policy: PolicyConfig{
			Strict: true,
		},
		Watch: WatchConfig{
			Schedule: "@every 5m",
			Timezone: "Local",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Alert: AlertConfig{
			SMTPPort: 587,
		},
	}
}

// DefaultChecks returns the header and message input checks
func DefaultChecks() []CheckConfig {
	return []CheckConfig{
		{Name: "Header", Selector: "header"},
		{Name: "Message input", Selector: "#message-input"},
	}
}

// TargetURL joins the base URL and page path
func (c *Config) TargetURL() string {
	return strings.TrimRight(c.Target.BaseURL, "/") + "/" + strings.TrimLeft(c.Target.PagePath, "/")
}

// Validate reports the first setting that would make a run meaningless
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.base_url is empty")
	}
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid target.base_url %q: %w", c.Target.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target.base_url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target.base_url %q has no host", c.Target.BaseURL)
	}
	if c.Output.ScreenshotPath == "" {
		return fmt.Errorf("output.screenshot_path is empty")
	}
	if c.Timeouts.Navigation <= 0 {
		return fmt.Errorf("timeouts.navigation must be positive")
	}
	if c.Timeouts.IdleWindow <= 0 {
		return fmt.Errorf("timeouts.idle_window must be positive")
	}
	for i, check := range c.Checks {
		if check.Selector == "" {
			return fmt.Errorf("checks[%d] (%s) has an empty selector", i, check.Name)
		}
		if check.Name == "" {
			return fmt.Errorf("checks[%d] has an empty name", i)
		}
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory.
// Reports and the history database live here.
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// Load reads config from the default location
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path. Settings missing from the file keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.Checks = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	// An explicit [[checks]] list replaces the defaults rather than appending.
	if !md.IsDefined("checks") {
		cfg.Checks = DefaultChecks()
	}

	return cfg, nil
}

// LoadOrDefault loads path (or the default location when path is empty),
// falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg, err = Load()
	} else {
		cfg, err = LoadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default location
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
