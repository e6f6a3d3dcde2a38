package entity

import (
	"fmt"
	"strings"
	"time"
)

type BrowserType string

const (
	BrowserChromium BrowserType = "chromium"
	BrowserFirefox  BrowserType = "firefox"
	BrowserWebKit   BrowserType = "webkit"
)

func ParseBrowserType(s string) (BrowserType, error) {
	switch BrowserType(strings.ToLower(strings.TrimSpace(s))) {
	case BrowserChromium:
		return BrowserChromium, nil
	case BrowserFirefox:
		return BrowserFirefox, nil
	case BrowserWebKit:
		return BrowserWebKit, nil
	}
	return "", fmt.Errorf("unknown browser type %q", s)
}

type Viewport struct {
	Width  int
	Height int
}

// BrowserConfig is read once at startup and never mutated afterwards.
type BrowserConfig struct {
	Headless           bool
	Type               BrowserType
	DefaultTimeout     time.Duration
	LaunchTimeout      time.Duration
	Viewport           Viewport
	UserAgent          string
	NoSandbox          bool
	IgnoreHTTPSErrors  bool
	ScreenshotMaxWidth int
}

const (
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	MinTimeoutSeconds  = 1
	MaxTimeoutSeconds  = 120
	DefaultTimeoutSecs = 30
)

// TimeoutSeconds returns d in whole seconds, or DefaultTimeoutSecs when that
// falls outside the accepted range.
func TimeoutSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < MinTimeoutSeconds || secs > MaxTimeoutSeconds {
		return DefaultTimeoutSecs
	}
	return secs
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:           true,
		Type:               BrowserChromium,
		DefaultTimeout:     DefaultTimeoutSecs * time.Second,
		LaunchTimeout:      60 * time.Second,
		Viewport:           Viewport{Width: 1280, Height: 720},
		UserAgent:          DefaultUserAgent,
		NoSandbox:          true,
		IgnoreHTTPSErrors:  true,
		ScreenshotMaxWidth: 1920,
	}
}
