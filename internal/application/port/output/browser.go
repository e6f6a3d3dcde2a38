package output

import (
	"context"
	"errors"
	"fmt"

	"browser-mcp/internal/domain/entity"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrScriptFailed    = errors.New("script raised an exception")
	ErrSessionClosed   = errors.New("browser session closed")
)

// BrowserEngine opens sessions. Implementations must honour ctx for the
// whole launch.
type BrowserEngine interface {
	Name() string
	Launch(ctx context.Context, cfg entity.BrowserConfig) (BrowserSession, error)
}

// BrowserSession is one live browser/page pair. Every blocking call must
// return once ctx is done; missing elements are reported as
// ErrElementNotFound, page exceptions as ErrScriptFailed.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string) error
	Info(ctx context.Context) (*entity.PageInfo, error)

	// Text and HTML read the first match of selector, or the document body
	// when selector is empty. They do not wait for the selector.
	Text(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context, selector string) (string, error)

	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Submit(ctx context.Context, lastField string) error
	Screenshot(ctx context.Context, req entity.ScreenshotRequest) ([]byte, error)
	Evaluate(ctx context.Context, code string) (*entity.ScriptValue, error)

	Alive(ctx context.Context) bool
	Close() error
}

// FieldError reports the form field that stopped a fill_form run.
type FieldError struct {
	Selector string
	Filled   []string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("filling field %q failed: %v", e.Selector, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
