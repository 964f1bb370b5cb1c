// Command probectl is a dev CLI for webprobe maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	pagebrowser "github.com/ibeckermayer/webprobe/internal/browser"
	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/store"
)

var log = logrus.New()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "inspect":
		runInspect()
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: probectl open <config|cache|screenshot|report>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: probectl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  inspect          Open the target page in a visible browser and report each check")
	fmt.Println("  open config      Open config file in default editor")
	fmt.Println("  open cache       Open cache directory in file explorer")
	fmt.Println("  open screenshot  Open the newest screenshot")
	fmt.Println("  open report      Open the newest JSON report")
}

func loadConfig() *config.Config {
	cfg, err := config.LoadOrDefault(os.Getenv("WEBPROBE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

func runInspect() {
	cfg := loadConfig()
	cfg.Browser.Headless = false // so you can see it

	url := cfg.TargetURL()
	log.Infof("Opening %s...", url)

	page, err := pagebrowser.NewLauncher(cfg.Browser, log).Launch(context.Background())
	if err != nil {
		log.Fatalf("Failed to launch browser: %v", err)
	}
	defer page.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Navigation)
	defer cancel()

	if err := page.Navigate(ctx, url); err != nil {
		log.Errorf("Failed to navigate: %v", err)
	} else if err := page.WaitNetworkIdle(ctx, cfg.Timeouts.IdleWindow); err != nil {
		log.Warnf("Page did not settle: %v", err)
	}

	for _, c := range cfg.Checks {
		visible, err := page.Visible(context.Background(), c.Selector)
		switch {
		case err != nil:
			fmt.Printf("  %-20s %-24s error: %v\n", c.Name, c.Selector, err)
		case visible:
			fmt.Printf("  %-20s %-24s visible\n", c.Name, c.Selector)
		default:
			fmt.Printf("  %-20s %-24s NOT visible\n", c.Name, c.Selector)
		}
	}

	fmt.Println("Press Enter to close the browser...")
	fmt.Scanln()

	log.Info("Done.")
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	case "screenshot":
		path, err = latestScreenshot()
	case "report":
		var dir string
		if dir, err = store.ReportsDir(); err == nil {
			path, err = store.LatestReportFile(dir)
		}
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Failed to get path: %v", err)
	}

	if err := browser.OpenFile(path); err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
}

// latestScreenshot prefers the newest run in history and falls back to the
// configured output path.
func latestScreenshot() (string, error) {
	cfg := loadConfig()

	if cfg.History.Enabled {
		dbPath := cfg.History.DBPath
		if dbPath == "" {
			var err error
			if dbPath, err = store.DefaultDBPath(); err != nil {
				return "", err
			}
		}
		if _, err := os.Stat(dbPath); err == nil {
			h, err := store.New(dbPath)
			if err != nil {
				return "", err
			}
			defer h.Close()
			if p, err := h.LatestScreenshot(); err == nil {
				return filepath.Abs(p)
			}
		}
	}

	return filepath.Abs(cfg.Output.ScreenshotPath)
}
