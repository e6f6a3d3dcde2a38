package rod

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

var (
	_ output.BrowserEngine  = (*Engine)(nil)
	_ output.BrowserSession = (*Session)(nil)
)

const terminateTimeout = 2 * time.Second

const (
	stringifyFn = `function() {
	try {
		const s = JSON.stringify(this);
		return s === undefined ? null : s;
	} catch (e) {
		return null;
	}
}`

	submitFn = `function() {
	const form = this.form || this.closest('form');
	const button = (form || document).querySelector('input[type=submit], button[type=submit]');
	if (button) {
		button.click();
		return true;
	}
	return false;
}`
)

// Engine drives Chromium over the DevTools protocol.
type Engine struct {
	logger output.LoggerPort
}

func NewEngine(logger output.LoggerPort) *Engine {
	return &Engine{logger: logger.WithField("engine", "rod")}
}

func (e *Engine) Name() string { return "rod" }

type launchResult struct {
	url string
	err error
}

func (e *Engine) Launch(ctx context.Context, cfg entity.BrowserConfig) (output.BrowserSession, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-setuid-sandbox").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height))
	if cfg.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors")
	}

	launched := make(chan launchResult, 1)
	go func() {
		u, err := l.Launch()
		launched <- launchResult{url: u, err: err}
	}()

	var controlURL string
	select {
	case res := <-launched:
		if res.err != nil {
			return nil, fmt.Errorf("failed to launch chromium: %w", res.err)
		}
		controlURL = res.url
	case <-ctx.Done():
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("chromium launch aborted: %w", ctx.Err())
	}

	session, err := e.connect(ctx, l, controlURL, cfg)
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, err
	}
	e.logger.Debug("Chromium started", "control_url", controlURL)
	return session, nil
}

func (e *Engine) connect(ctx context.Context, l *launcher.Launcher, controlURL string, cfg entity.BrowserConfig) (*Session, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to chromium: %w", err)
	}
	if cfg.IgnoreHTTPSErrors {
		if err := browser.Context(ctx).IgnoreCertErrors(true); err != nil {
			_ = browser.Close()
			return nil, fmt.Errorf("failed to ignore certificate errors: %w", err)
		}
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Viewport.Width,
		Height:            cfg.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}
	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			_ = browser.Close()
			return nil, fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	return &Session{
		browser:  browser,
		launcher: l,
		// Drop the launch context so the page outlives it.
		page: page.Context(context.Background()),
	}, nil
}

type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", translate(err))
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load failed: %w", translate(err))
	}
	return nil
}

func (s *Session) WaitFor(ctx context.Context, selector string) error {
	_, err := s.find(ctx, selector)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Info(ctx context.Context) (*entity.PageInfo, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", translate(err))
	}
	return &entity.PageInfo{URL: info.URL, Title: info.Title}, nil
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	el, err := s.lookup(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", translate(err))
	}
	return text, nil
}

func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	el, err := s.lookup(ctx, selector)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read HTML: %w", translate(err))
	}
	return html, nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s failed: %w", selector, translate(err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click on %s failed: %w", selector, translate(err))
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}

	tag, err := el.Eval(`() => this.tagName.toLowerCase()`)
	if err != nil {
		return fmt.Errorf("inspect %s failed: %w", selector, translate(err))
	}
	if tag.Value.Str() == "select" {
		if err := el.Select([]string{value}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("select %q in %s failed: %w", value, selector, translate(err))
		}
		return nil
	}

	if err := el.SelectAllText(); err != nil {
		if _, err := el.Eval(`() => { this.value = '' }`); err != nil {
			return fmt.Errorf("clear %s failed: %w", selector, translate(err))
		}
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input into %s failed: %w", selector, translate(err))
	}
	return nil
}

func (s *Session) Submit(ctx context.Context, lastField string) error {
	el, err := s.find(ctx, lastField)
	if err != nil {
		return err
	}
	clicked, err := el.Evaluate(&rod.EvalOptions{JS: submitFn, ByValue: true})
	if err != nil {
		return translate(err)
	}
	if clicked.Value.Bool() {
		return nil
	}
	if err := el.Type(input.Enter); err != nil {
		return fmt.Errorf("pressing enter failed: %w", translate(err))
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context, req entity.ScreenshotRequest) ([]byte, error) {
	p := s.page.Context(ctx)
	opts := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}

	switch req.Mode {
	case entity.ScreenshotElement:
		el, err := s.find(ctx, req.Selector)
		if err != nil {
			return nil, err
		}
		data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err != nil {
			return nil, fmt.Errorf("element screenshot failed: %w", translate(err))
		}
		return data, nil
	case entity.ScreenshotFullPage:
		data, err := p.Screenshot(true, opts)
		if err != nil {
			return nil, fmt.Errorf("full page screenshot failed: %w", translate(err))
		}
		return data, nil
	default:
		data, err := p.Screenshot(false, opts)
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", translate(err))
		}
		return data, nil
	}
}

func (s *Session) Evaluate(ctx context.Context, code string) (*entity.ScriptValue, error) {
	p := s.page.Context(ctx)
	res, err := proto.RuntimeEvaluate{
		Expression:   code,
		AwaitPromise: true,
		UserGesture:  true,
	}.Call(p)
	if err != nil {
		if ctx.Err() != nil {
			s.terminate()
		}
		return nil, translate(err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("%w: %s", output.ErrScriptFailed, exceptionText(res.ExceptionDetails))
	}
	return s.scriptValue(p, res.Result)
}

// terminate stops a script that outlived its deadline so the renderer
// answers again.
func (s *Session) terminate() {
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()
	_ = proto.RuntimeTerminateExecution{}.Call(s.page.Context(ctx))
}

func (s *Session) scriptValue(p *rod.Page, obj *proto.RuntimeRemoteObject) (*entity.ScriptValue, error) {
	if obj == nil {
		return &entity.ScriptValue{Type: "undefined", Serializable: true}, nil
	}
	typ := string(obj.Type)

	switch obj.Type {
	case proto.RuntimeRemoteObjectTypeUndefined:
		return &entity.ScriptValue{Type: typ, Serializable: true}, nil
	case proto.RuntimeRemoteObjectTypeString, proto.RuntimeRemoteObjectTypeNumber, proto.RuntimeRemoteObjectTypeBoolean:
		if obj.UnserializableValue != "" {
			return &entity.ScriptValue{Type: typ}, nil
		}
		return &entity.ScriptValue{Value: obj.Value.Val(), Type: typ, Serializable: true}, nil
	case proto.RuntimeRemoteObjectTypeObject:
		if obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
			return &entity.ScriptValue{Type: "null", Serializable: true}, nil
		}
	default:
		return &entity.ScriptValue{Type: typ}, nil
	}

	if obj.Subtype != "" {
		typ = string(obj.Subtype)
	}
	defer func() {
		_ = proto.RuntimeReleaseObject{ObjectID: obj.ObjectID}.Call(p)
	}()

	res, err := proto.RuntimeCallFunctionOn{
		ObjectID:            obj.ObjectID,
		FunctionDeclaration: stringifyFn,
		ReturnByValue:       true,
	}.Call(p)
	if err != nil {
		return nil, translate(err)
	}
	if res.ExceptionDetails != nil || res.Result == nil || res.Result.Value.Nil() {
		return &entity.ScriptValue{Type: typ}, nil
	}
	return &entity.ScriptValue{
		Value:        gson.NewFrom(res.Result.Value.Str()).Val(),
		Type:         typ,
		Serializable: true,
	}, nil
}

func (s *Session) Alive(ctx context.Context) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	_, err := proto.RuntimeEvaluate{Expression: "1", ReturnByValue: true}.Call(s.page.Context(ctx))
	return err == nil
}

func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
	})
	return s.closeErr
}

// find waits for selector until ctx ends. Selectors starting with "/" are
// XPath expressions.
func (s *Session) find(ctx context.Context, selector string) (*rod.Element, error) {
	p := s.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if isXPath(selector) {
		el, err = p.ElementX(selector)
	} else {
		el, err = p.Element(selector)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", output.ErrElementNotFound, selector)
		}
		return nil, fmt.Errorf("lookup of %s failed: %w", selector, translate(err))
	}
	return el, nil
}

// lookup returns the first match of selector without waiting, or the body
// for an empty selector.
func (s *Session) lookup(ctx context.Context, selector string) (*rod.Element, error) {
	p := s.page.Context(ctx)
	target := selector
	if target == "" {
		target = "body"
	}

	var (
		found bool
		el    *rod.Element
		err   error
	)
	if isXPath(target) {
		found, el, err = p.HasX(target)
	} else {
		found, el, err = p.Has(target)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup of %s failed: %w", target, translate(err))
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", output.ErrElementNotFound, target)
	}
	return el, nil
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(/")
}

func exceptionText(details *proto.RuntimeExceptionDetails) string {
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	text := details.Text
	if details.LineNumber > 0 {
		text += " at line " + strconv.Itoa(details.LineNumber+1)
	}
	return text
}

// translate maps transport failures onto ErrSessionClosed so callers can
// tell a dead browser from a failed action.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cdp.ErrConnClosed) {
		return fmt.Errorf("%w: %v", output.ErrSessionClosed, err)
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && isClosedText(cdpErr) {
		return fmt.Errorf("%w: %v", output.ErrSessionClosed, err)
	}
	return err
}

func isClosedText(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "target crashed")
}
