// Package playwright serves Firefox and WebKit sessions through
// playwright-go. Its API is not context aware, so every call runs with a
// timeout derived from the context deadline and is abandoned when the
// context ends.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
)

var (
	_ output.BrowserEngine  = (*Engine)(nil)
	_ output.BrowserSession = (*Session)(nil)
)

const (
	evaluateFn = `async (code) => {
	const value = await (0, eval)(code);
	const type = typeof value;
	if (value === null) return { type: 'null', serializable: true, json: 'null' };
	if (type === 'undefined') return { type, serializable: true };
	if (type === 'function' || type === 'symbol' || type === 'bigint') return { type, serializable: false };
	if (type === 'number' && !Number.isFinite(value)) return { type, serializable: false };
	const label = Array.isArray(value) ? 'array' : type;
	try {
		const json = JSON.stringify(value);
		if (json === undefined) return { type: label, serializable: false };
		return { type: label, serializable: true, json };
	} catch (e) {
		return { type: label, serializable: false };
	}
}`

	submitFn = `(el) => {
	const form = el.form || el.closest('form');
	const button = (form || document).querySelector('input[type=submit], button[type=submit]');
	if (button) {
		button.click();
		return true;
	}
	return false;
}`

	outerHTMLFn = `(el) => el.outerHTML`
	tagNameFn   = `(el) => el.tagName.toLowerCase()`
)

type Engine struct {
	logger output.LoggerPort
}

func NewEngine(logger output.LoggerPort) *Engine {
	return &Engine{logger: logger.WithField("engine", "playwright")}
}

func (e *Engine) Name() string { return "playwright" }

type launchResult struct {
	session *Session
	err     error
}

func (e *Engine) Launch(ctx context.Context, cfg entity.BrowserConfig) (output.BrowserSession, error) {
	launched := make(chan launchResult, 1)
	go func() {
		s, err := e.launch(ctx, cfg)
		launched <- launchResult{session: s, err: err}
	}()

	select {
	case res := <-launched:
		if res.err != nil {
			return nil, res.err
		}
		return res.session, nil
	case <-ctx.Done():
		go func() {
			if res := <-launched; res.session != nil {
				_ = res.session.Close()
			}
		}()
		return nil, fmt.Errorf("%s launch aborted: %w", cfg.Type, ctx.Err())
	}
}

func (e *Engine) launch(ctx context.Context, cfg entity.BrowserConfig) (*Session, error) {
	pw, err := playwright.Run(&playwright.RunOptions{
		Browsers: []string{string(cfg.Type)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch cfg.Type {
	case entity.BrowserFirefox:
		browserType = pw.Firefox
	case entity.BrowserWebKit:
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Timeout:  playwright.Float(millis(ctx)),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", cfg.Type, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
		},
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreHTTPSErrors),
	}
	if cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(cfg.UserAgent)
	}
	browserCtx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	e.logger.Debug("Browser started", "browser", cfg.Type, "version", browser.Version())
	return &Session{pw: pw, browser: browser, context: browserCtx, page: page}, nil
}

type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return do(ctx, func() error {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			Timeout:   playwright.Float(millis(ctx)),
			WaitUntil: playwright.WaitUntilStateLoad,
		})
		if err != nil {
			return fmt.Errorf("navigation failed: %w", translate(err))
		}
		return nil
	})
}

func (s *Session) WaitFor(ctx context.Context, selector string) error {
	_, err := s.find(ctx, selector)
	if errors.Is(err, output.ErrElementNotFound) {
		return context.DeadlineExceeded
	}
	return err
}

func (s *Session) Info(ctx context.Context) (*entity.PageInfo, error) {
	return call(ctx, func() (*entity.PageInfo, error) {
		title, err := s.page.Title()
		if err != nil {
			return nil, fmt.Errorf("failed to read title: %w", translate(err))
		}
		return &entity.PageInfo{URL: s.page.URL(), Title: title}, nil
	})
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	return call(ctx, func() (string, error) {
		loc, err := s.lookup(selector)
		if err != nil {
			return "", err
		}
		text, err := loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(millis(ctx))})
		if err != nil {
			return "", fmt.Errorf("failed to read text: %w", translate(err))
		}
		return text, nil
	})
}

func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	return call(ctx, func() (string, error) {
		loc, err := s.lookup(selector)
		if err != nil {
			return "", err
		}
		html, err := loc.Evaluate(outerHTMLFn, nil)
		if err != nil {
			return "", fmt.Errorf("failed to read HTML: %w", translate(err))
		}
		str, _ := html.(string)
		return str, nil
	})
}

func (s *Session) Click(ctx context.Context, selector string) error {
	loc, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	return do(ctx, func() error {
		err := loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(millis(ctx))})
		if err != nil {
			return fmt.Errorf("click on %s failed: %w", selector, translate(err))
		}
		return nil
	})
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	loc, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	return do(ctx, func() error {
		tag, err := loc.Evaluate(tagNameFn, nil)
		if err != nil {
			return fmt.Errorf("inspect %s failed: %w", selector, translate(err))
		}
		if tag == "select" {
			_, err = loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{value}},
				playwright.LocatorSelectOptionOptions{Timeout: playwright.Float(millis(ctx))})
		} else {
			err = loc.Fill(value, playwright.LocatorFillOptions{Timeout: playwright.Float(millis(ctx))})
		}
		if err != nil {
			return fmt.Errorf("fill %s failed: %w", selector, translate(err))
		}
		return nil
	})
}

func (s *Session) Submit(ctx context.Context, lastField string) error {
	loc, err := s.find(ctx, lastField)
	if err != nil {
		return err
	}
	return do(ctx, func() error {
		clicked, err := loc.Evaluate(submitFn, nil)
		if err != nil {
			return translate(err)
		}
		if ok, _ := clicked.(bool); ok {
			return nil
		}
		if err := loc.Press("Enter", playwright.LocatorPressOptions{Timeout: playwright.Float(millis(ctx))}); err != nil {
			return fmt.Errorf("pressing enter failed: %w", translate(err))
		}
		return nil
	})
}

func (s *Session) Screenshot(ctx context.Context, req entity.ScreenshotRequest) ([]byte, error) {
	if req.Mode == entity.ScreenshotElement {
		loc, err := s.find(ctx, req.Selector)
		if err != nil {
			return nil, err
		}
		return call(ctx, func() ([]byte, error) {
			data, err := loc.Screenshot(playwright.LocatorScreenshotOptions{
				Type:    playwright.ScreenshotTypePng,
				Timeout: playwright.Float(millis(ctx)),
			})
			if err != nil {
				return nil, fmt.Errorf("element screenshot failed: %w", translate(err))
			}
			return data, nil
		})
	}

	return call(ctx, func() ([]byte, error) {
		data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
			Type:     playwright.ScreenshotTypePng,
			FullPage: playwright.Bool(req.Mode == entity.ScreenshotFullPage),
			Timeout:  playwright.Float(millis(ctx)),
		})
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", translate(err))
		}
		return data, nil
	})
}

type evaluation struct {
	Type         string `json:"type"`
	Serializable bool   `json:"serializable"`
	JSON         string `json:"json"`
}

func (s *Session) Evaluate(ctx context.Context, code string) (*entity.ScriptValue, error) {
	return call(ctx, func() (*entity.ScriptValue, error) {
		raw, err := s.page.Evaluate(evaluateFn, code)
		if err != nil {
			if translated := translate(err); translated != err {
				return nil, translated
			}
			return nil, fmt.Errorf("%w: %s", output.ErrScriptFailed, scriptMessage(err))
		}

		var ev evaluation
		if err := decode(raw, &ev); err != nil {
			return nil, fmt.Errorf("unexpected evaluation result: %w", err)
		}
		value := &entity.ScriptValue{Type: ev.Type, Serializable: ev.Serializable}
		if ev.Serializable && ev.JSON != "" {
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(ev.JSON, &value.Value); err != nil {
				return nil, fmt.Errorf("unexpected evaluation result: %w", err)
			}
		}
		return value, nil
	})
}

func (s *Session) Alive(ctx context.Context) bool {
	return !s.page.IsClosed() && s.browser.IsConnected()
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// find waits until selector is attached or ctx ends.
func (s *Session) find(ctx context.Context, selector string) (playwright.Locator, error) {
	loc := s.page.Locator(selectorFor(selector)).First()
	err := do(ctx, func() error {
		return loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(millis(ctx)),
		})
	})
	if err == nil {
		return loc, nil
	}
	if errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", output.ErrElementNotFound, selector)
	}
	return nil, fmt.Errorf("lookup of %s failed: %w", selector, translate(err))
}

// lookup returns the first match without waiting; the body when selector
// is empty.
func (s *Session) lookup(selector string) (playwright.Locator, error) {
	target := selector
	if target == "" {
		target = "body"
	}
	loc := s.page.Locator(selectorFor(target))
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("lookup of %s failed: %w", target, translate(err))
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", output.ErrElementNotFound, target)
	}
	return loc.First(), nil
}

func selectorFor(selector string) string {
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/") {
		return "xpath=" + selector
	}
	return selector
}

// call runs fn on its own goroutine and gives up when ctx ends. A call that
// is given up on finishes in the background; its result is dropped.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, playwright.ErrTimeout) && ctx.Err() != nil {
			var zero T
			return zero, fmt.Errorf("%w: %v", ctx.Err(), r.err)
		}
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func do(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// millis converts the remaining ctx budget into a playwright timeout.
// Zero means no timeout.
func millis(ctx context.Context) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	left := time.Until(deadline)
	if left < time.Millisecond {
		return 1
	}
	return float64(left.Milliseconds())
}

func decode(raw any, out any) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(raw)
	if err != nil {
		return err
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, out)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", output.ErrSessionClosed, err)
	}
	return err
}

func scriptMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i > 0 {
		msg = msg[:i]
	}
	return msg
}
