package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment override, e.g. WEBPROBE_BASE_URL
const EnvPrefix = "WEBPROBE"

// envOverrides lists the settings that can be changed from the environment.
// Nil fields were not set and leave the config untouched.
type envOverrides struct {
	BaseURL           *string        `envconfig:"BASE_URL"`
	PagePath          *string        `envconfig:"PAGE_PATH"`
	ScreenshotPath    *string        `envconfig:"SCREENSHOT_PATH"`
	Headless          *bool          `envconfig:"HEADLESS"`
	ExecPath          *string        `envconfig:"CHROME_PATH"`
	NoSandbox         *bool          `envconfig:"NO_SANDBOX"`
	NavigationTimeout *time.Duration `envconfig:"NAVIGATION_TIMEOUT"`
	IdleWindow        *time.Duration `envconfig:"IDLE_WINDOW"`
	Strict            *bool          `envconfig:"STRICT"`
	HistoryDB         *string        `envconfig:"HISTORY_DB"`
}

// ApplyEnv overrides config values from WEBPROBE_* environment variables
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&c.Target.BaseURL, env.BaseURL)
	setString(&c.Target.PagePath, env.PagePath)
	setString(&c.Output.ScreenshotPath, env.ScreenshotPath)
	setString(&c.Browser.ExecPath, env.ExecPath)
	setString(&c.History.DBPath, env.HistoryDB)

	if env.Headless != nil {
		c.Browser.Headless = *env.Headless
	}
	if env.NoSandbox != nil {
		c.Browser.NoSandbox = *env.NoSandbox
	}
	if env.Strict != nil {
		c.Policy.Strict = *env.Strict
	}
	if env.NavigationTimeout != nil {
		c.Timeouts.Navigation = *env.NavigationTimeout
	}
	if env.IdleWindow != nil {
		c.Timeouts.IdleWindow = *env.IdleWindow
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
