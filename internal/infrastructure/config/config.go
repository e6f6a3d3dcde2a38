// Package config builds the immutable runtime settings from a ConfigPort.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
	"browser-mcp/internal/infrastructure/logger"
)

const (
	KeyHeadless          = "BROWSER_HEADLESS"
	KeyBrowserType       = "BROWSER_TYPE"
	KeyTimeout           = "BROWSER_TIMEOUT"
	KeyLaunchTimeout     = "BROWSER_LAUNCH_TIMEOUT"
	KeyViewport          = "BROWSER_VIEWPORT"
	KeyUserAgent         = "BROWSER_USER_AGENT"
	KeyNoSandbox         = "BROWSER_NO_SANDBOX"
	KeyIgnoreHTTPSErrors = "BROWSER_IGNORE_HTTPS_ERRORS"
	KeyScreenshotWidth   = "SCREENSHOT_MAX_WIDTH"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
	KeyLogFile           = "LOG_FILE"
)

type Config struct {
	Browser entity.BrowserConfig
	Logger  logger.Config
}

// Load reads every setting once. Invalid values fall back to their default
// and are reported in warnings.
func Load(src output.ConfigPort) (Config, []string) {
	def := entity.DefaultBrowserConfig()
	var warnings []string
	warn := func(key, val string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, val, err))
	}

	cfg := Config{Browser: def, Logger: logger.DefaultConfig()}
	b := &cfg.Browser

	b.Headless = src.GetBool(KeyHeadless, def.Headless)
	b.NoSandbox = src.GetBool(KeyNoSandbox, def.NoSandbox)
	b.IgnoreHTTPSErrors = src.GetBool(KeyIgnoreHTTPSErrors, def.IgnoreHTTPSErrors)
	b.UserAgent = src.GetWithDefault(KeyUserAgent, def.UserAgent)

	if val := src.Get(KeyBrowserType); val != "" {
		typ, err := entity.ParseBrowserType(val)
		if err != nil {
			warn(KeyBrowserType, val, err)
		} else {
			b.Type = typ
		}
	}

	if val := src.Get(KeyTimeout); val != "" {
		secs, err := strconv.Atoi(val)
		switch {
		case err != nil:
			warn(KeyTimeout, val, err)
		case secs < entity.MinTimeoutSeconds || secs > entity.MaxTimeoutSeconds:
			warn(KeyTimeout, val, fmt.Errorf("must be between %d and %d", entity.MinTimeoutSeconds, entity.MaxTimeoutSeconds))
		default:
			b.DefaultTimeout = time.Duration(secs) * time.Second
		}
	}

	if val := src.Get(KeyLaunchTimeout); val != "" {
		secs, err := strconv.Atoi(val)
		switch {
		case err != nil:
			warn(KeyLaunchTimeout, val, err)
		case secs <= 0:
			warn(KeyLaunchTimeout, val, fmt.Errorf("must be positive"))
		default:
			b.LaunchTimeout = time.Duration(secs) * time.Second
		}
	}

	if val := src.Get(KeyViewport); val != "" {
		vp, err := ParseViewport(val)
		if err != nil {
			warn(KeyViewport, val, err)
		} else {
			b.Viewport = vp
		}
	}

	if val := src.Get(KeyScreenshotWidth); val != "" {
		width, err := strconv.Atoi(val)
		switch {
		case err != nil:
			warn(KeyScreenshotWidth, val, err)
		case width < 0:
			warn(KeyScreenshotWidth, val, fmt.Errorf("must not be negative"))
		default:
			b.ScreenshotMaxWidth = width
		}
	}

	cfg.Logger.Level = src.GetWithDefault(KeyLogLevel, cfg.Logger.Level)
	cfg.Logger.File = src.Get(KeyLogFile)
	switch format := logger.Format(strings.ToLower(src.Get(KeyLogFormat))); format {
	case "":
	case logger.FormatJSON, logger.FormatConsole:
		cfg.Logger.Format = format
	default:
		warn(KeyLogFormat, string(format), fmt.Errorf("must be json or console"))
	}

	return cfg, warnings
}

// ParseViewport reads a WIDTHxHEIGHT pair such as 1280x720.
func ParseViewport(s string) (entity.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return entity.Viewport{}, fmt.Errorf("expected WIDTHxHEIGHT")
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return entity.Viewport{}, fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return entity.Viewport{}, fmt.Errorf("invalid height %q", h)
	}
	return entity.Viewport{Width: width, Height: height}, nil
}
