// Package outputtest provides an in-memory browser engine for tests.
package outputtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
)

var (
	_ output.BrowserEngine  = (*Engine)(nil)
	_ output.BrowserSession = (*Session)(nil)
)

type Element struct {
	Text  string
	HTML  string
	Value string
}

type Page struct {
	URL      string
	Title    string
	BodyText string
	BodyHTML string
	Elements map[string]*Element
	// SubmitURL is loaded when the form on this page is submitted.
	SubmitURL string
}

func (p Page) clone() *Page {
	elems := make(map[string]*Element, len(p.Elements))
	for sel, el := range p.Elements {
		cp := *el
		elems[sel] = &cp
	}
	p.Elements = elems
	return &p
}

type Event struct {
	Op    string
	Enter time.Time
	Exit  time.Time
}

// Engine is a scriptable fake. All exported fields must be set before use.
type Engine struct {
	Pages map[string]Page
	// Scripts maps code to its evaluation result; ScriptErrors to an exception text.
	Scripts      map[string]entity.ScriptValue
	ScriptErrors map[string]string
	// Delay is applied to every page operation, honouring ctx unless
	// IgnoreContext is set.
	Delay         time.Duration
	DelayOps      map[string]time.Duration
	IgnoreContext bool
	// LaunchErrors are returned by successive Launch calls before launches
	// start succeeding.
	LaunchErrors []error
	// LaunchDelay makes Launch take that long regardless of ctx.
	LaunchDelay time.Duration

	// busy makes Alive block until its ctx ends, like a renderer stuck in a
	// script.
	busy bool

	mu         sync.Mutex
	launches   int
	crashNext  int
	sessions   []*Session
	events     []Event
	navigation []string
}

func NewEngine(pages ...Page) *Engine {
	e := &Engine{
		Pages:        make(map[string]Page),
		Scripts:      make(map[string]entity.ScriptValue),
		ScriptErrors: make(map[string]string),
		DelayOps:     make(map[string]time.Duration),
	}
	for _, p := range pages {
		e.Pages[p.URL] = p
	}
	return e
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Launch(ctx context.Context, cfg entity.BrowserConfig) (output.BrowserSession, error) {
	if e.LaunchDelay > 0 {
		time.Sleep(e.LaunchDelay)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launches++
	if len(e.LaunchErrors) > 0 {
		err := e.LaunchErrors[0]
		e.LaunchErrors = e.LaunchErrors[1:]
		return nil, err
	}
	s := &Session{engine: e, page: &Page{URL: "about:blank", Elements: map[string]*Element{}}}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// CrashNext makes the next n page operations kill their session.
func (e *Engine) CrashNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.crashNext = n
}

// SetBusy toggles whether health checks hang.
func (e *Engine) SetBusy(busy bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = busy
}

func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.launches
}

func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Navigations lists every URL loaded, including form submissions.
func (e *Engine) Navigations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.navigation))
	copy(out, e.navigation)
	return out
}

type Session struct {
	engine *Engine

	mu     sync.Mutex
	page   *Page
	dead   bool
	closed bool
}

// Kill simulates a crashed render process.
func (s *Session) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Value returns the current value of a form element on the loaded page.
func (s *Session) Value(selector string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.page.Elements[selector]
	if !ok {
		return "", false
	}
	return el.Value, true
}

func (s *Session) op(ctx context.Context, name string, fn func() error) error {
	event := Event{Op: name, Enter: time.Now()}
	defer func() {
		event.Exit = time.Now()
		s.engine.mu.Lock()
		s.engine.events = append(s.engine.events, event)
		s.engine.mu.Unlock()
	}()

	s.engine.mu.Lock()
	crash := s.engine.crashNext > 0
	if crash {
		s.engine.crashNext--
	}
	delay := s.engine.Delay
	if d, ok := s.engine.DelayOps[name]; ok {
		delay = d
	}
	ignore := s.engine.IgnoreContext
	s.engine.mu.Unlock()

	s.mu.Lock()
	if crash {
		s.dead = true
	}
	dead := s.dead || s.closed
	s.mu.Unlock()
	if dead {
		return output.ErrSessionClosed
	}

	if delay > 0 {
		if ignore {
			time.Sleep(delay)
		} else {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Session) load(url string) error {
	tpl, ok := s.engine.Pages[url]
	if !ok {
		return fmt.Errorf("navigation failed: net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	s.page = tpl.clone()
	s.engine.mu.Lock()
	s.engine.navigation = append(s.engine.navigation, url)
	s.engine.mu.Unlock()
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.op(ctx, "navigate", func() error {
		return s.load(url)
	})
}

func (s *Session) WaitFor(ctx context.Context, selector string) error {
	return s.op(ctx, "wait", func() error {
		if _, ok := s.page.Elements[selector]; ok {
			return nil
		}
		s.mu.Unlock()
		<-ctx.Done()
		s.mu.Lock()
		return ctx.Err()
	})
}

func (s *Session) Info(ctx context.Context) (*entity.PageInfo, error) {
	var info *entity.PageInfo
	err := s.op(ctx, "info", func() error {
		info = &entity.PageInfo{URL: s.page.URL, Title: s.page.Title}
		return nil
	})
	return info, err
}

func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.op(ctx, "text", func() error {
		if selector == "" {
			text = s.page.BodyText
			return nil
		}
		el, ok := s.page.Elements[selector]
		if !ok {
			return fmt.Errorf("%w: %s", output.ErrElementNotFound, selector)
		}
		text = el.Text
		return nil
	})
	return text, err
}

func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := s.op(ctx, "html", func() error {
		if selector == "" {
			html = s.page.BodyHTML
			return nil
		}
		el, ok := s.page.Elements[selector]
		if !ok {
			return fmt.Errorf("%w: %s", output.ErrElementNotFound, selector)
		}
		html = el.HTML
		return nil
	})
	return html, err
}

func (s *Session) waitElement(ctx context.Context, selector string) (*Element, error) {
	if el, ok := s.page.Elements[selector]; ok {
		return el, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	s.mu.Lock()
	return nil, fmt.Errorf("%w: %s", output.ErrElementNotFound, selector)
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.op(ctx, "click", func() error {
		_, err := s.waitElement(ctx, selector)
		return err
	})
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.op(ctx, "fill", func() error {
		el, err := s.waitElement(ctx, selector)
		if err != nil {
			return err
		}
		el.Value = value
		return nil
	})
}

func (s *Session) Submit(ctx context.Context, lastField string) error {
	return s.op(ctx, "submit", func() error {
		if s.page.SubmitURL == "" {
			return nil
		}
		return s.load(s.page.SubmitURL)
	})
}

func (s *Session) Screenshot(ctx context.Context, req entity.ScreenshotRequest) ([]byte, error) {
	var data []byte
	err := s.op(ctx, "screenshot", func() error {
		w, h := 640, 360
		switch req.Mode {
		case entity.ScreenshotFullPage:
			h = 1200
		case entity.ScreenshotElement:
			if _, ok := s.page.Elements[req.Selector]; !ok {
				return fmt.Errorf("%w: %s", output.ErrElementNotFound, req.Selector)
			}
			w, h = 200, 50
		}
		var err error
		data, err = solidPNG(w, h)
		return err
	})
	return data, err
}

func (s *Session) Evaluate(ctx context.Context, code string) (*entity.ScriptValue, error) {
	var value *entity.ScriptValue
	err := s.op(ctx, "evaluate", func() error {
		if msg, ok := s.engine.ScriptErrors[code]; ok {
			return fmt.Errorf("%w: %s", output.ErrScriptFailed, msg)
		}
		v, ok := s.engine.Scripts[code]
		if !ok {
			v = entity.ScriptValue{Type: "undefined", Serializable: true}
		}
		value = &v
		return nil
	})
	return value, err
}

func (s *Session) Alive(ctx context.Context) bool {
	s.engine.mu.Lock()
	busy := s.engine.busy
	s.engine.mu.Unlock()
	if busy {
		<-ctx.Done()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead && !s.closed
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session already closed")
	}
	s.closed = true
	return nil
}

func solidPNG(w, h int) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 40, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
