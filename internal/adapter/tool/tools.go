package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
	"browser-mcp/internal/infrastructure/htmltext"
	"browser-mcp/internal/infrastructure/imageutil"
)

const (
	clickSettle  = 500 * time.Millisecond
	submitSettle = 2 * time.Second
)

var (
	_ output.ToolPort = (*NavigateTool)(nil)
	_ output.ToolPort = (*PageContentTool)(nil)
	_ output.ToolPort = (*ClickTool)(nil)
	_ output.ToolPort = (*FillFormTool)(nil)
	_ output.ToolPort = (*ScreenshotTool)(nil)
	_ output.ToolPort = (*ScriptTool)(nil)
)

// All returns one instance of every catalog tool, advertising the timeout
// and screenshot limits of cfg.
func All(logger output.LoggerPort, cfg entity.BrowserConfig) []output.ToolPort {
	timeout := entity.TimeoutSeconds(cfg.DefaultTimeout)
	return []output.ToolPort{
		NewNavigateTool(logger, timeout),
		NewPageContentTool(logger),
		NewClickTool(logger, timeout),
		NewFillFormTool(logger),
		NewScreenshotTool(logger, cfg.ScreenshotMaxWidth),
		NewScriptTool(logger),
	}
}

type NavigateTool struct {
	logger         output.LoggerPort
	defaultTimeout int
}

func NewNavigateTool(logger output.LoggerPort, defaultTimeout int) *NavigateTool {
	return &NavigateTool{logger: logger, defaultTimeout: defaultTimeout}
}

func (t *NavigateTool) Name() entity.ToolName { return entity.ToolNavigateTo }
func (t *NavigateTool) Description() string {
	return "Navigate the browser to a URL. Optionally waits for a CSS selector to appear after the page has loaded. Returns the final URL (after redirects) and the page title."
}
func (t *NavigateTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"url": map[string]interface{}{
			"type":        "string",
			"description": "Absolute http(s) URL to navigate to",
		},
		"wait_for": map[string]interface{}{
			"type":        "string",
			"description": "CSS selector to wait for after navigation (optional)",
		},
		"timeout": timeoutSchema(t.defaultTimeout),
	}, "url")
}

func (t *NavigateTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.NavigateArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	if err := session.Navigate(ctx, in.URL); err != nil {
		return nil, err
	}
	if in.WaitFor != "" {
		t.logger.Debug("Waiting for selector", "selector", in.WaitFor)
		if err := session.WaitFor(ctx, in.WaitFor); err != nil {
			return nil, err
		}
	}

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}
	return entity.NavigateResult{
		URL:       info.URL,
		Title:     info.Title,
		Loaded:    true,
		WaitedFor: in.WaitFor,
	}, nil
}

type PageContentTool struct {
	logger output.LoggerPort
}

func NewPageContentTool(logger output.LoggerPort) *PageContentTool {
	return &PageContentTool{logger: logger}
}

func (t *PageContentTool) Name() entity.ToolName { return entity.ToolGetPageContent }
func (t *PageContentTool) Description() string {
	return "Extract the visible text of the current page, or of the first element matching a CSS selector. Can also list the links (href and text) inside that scope, without duplicates."
}
func (t *PageContentTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"selector": map[string]interface{}{
			"type":        "string",
			"description": "CSS selector of the element to read; the whole document when omitted",
		},
		"include_links": map[string]interface{}{
			"type":        "boolean",
			"description": "Include links found in the extracted scope (default: false)",
			"default":     false,
		},
	})
}

func (t *PageContentTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.PageContentArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}

	text, err := session.Text(ctx, in.Selector)
	if err != nil {
		return nil, err
	}
	content := htmltext.NormalizeText(text)

	t.logger.Debug("Read page text", "scope", scopeOf(in.Selector), "length", len(content))

	result := entity.PageContentResult{
		URL:           info.URL,
		Title:         info.Title,
		Content:       content,
		ContentLength: len([]rune(content)),
		SelectorUsed:  in.Selector,
	}

	if in.IncludeLinks {
		fragment, err := session.HTML(ctx, in.Selector)
		if err != nil {
			return nil, err
		}
		links := htmltext.ExtractLinks(fragment, info.URL)
		count := len(links)
		t.logger.Debug("Collected links", "scope", scopeOf(in.Selector), "count", count)
		result.Links = links
		result.LinkCount = &count
	}

	return result, nil
}

type ClickTool struct {
	logger         output.LoggerPort
	defaultTimeout int
}

func NewClickTool(logger output.LoggerPort, defaultTimeout int) *ClickTool {
	return &ClickTool{logger: logger, defaultTimeout: defaultTimeout}
}

func (t *ClickTool) Name() entity.ToolName { return entity.ToolClickElement }
func (t *ClickTool) Description() string {
	return "Click the element matched by a CSS selector (XPath when the selector starts with '/'). Waits up to the timeout for the element to exist and become clickable."
}
func (t *ClickTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"selector": map[string]interface{}{
			"type":        "string",
			"description": "CSS selector for the element to click",
		},
		"timeout": timeoutSchema(t.defaultTimeout),
	}, "selector")
}

func (t *ClickTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.ClickArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	if err := session.Click(ctx, in.Selector); err != nil {
		return nil, err
	}
	t.logger.Debug("Clicked element", "selector", in.Selector)
	settle(ctx, clickSettle)

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}
	return entity.ClickResult{
		Selector: in.Selector,
		Clicked:  true,
		FinalURL: info.URL,
	}, nil
}

type FillFormTool struct {
	logger output.LoggerPort
}

func NewFillFormTool(logger output.LoggerPort) *FillFormTool {
	return &FillFormTool{logger: logger}
}

func (t *FillFormTool) Name() entity.ToolName { return entity.ToolFillForm }
func (t *FillFormTool) Description() string {
	return "Fill form fields, given as an object mapping CSS selectors to values, in the order given. Existing content is replaced. Stops at the first field that cannot be filled. Optionally submits the form afterwards."
}
func (t *FillFormTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"fields": map[string]interface{}{
			"type":                 "object",
			"description":          "Object mapping CSS selectors to values, e.g. {\"#email\": \"john@example.com\"}",
			"minProperties":        1,
			"additionalProperties": map[string]interface{}{"type": "string"},
		},
		"submit": map[string]interface{}{
			"type":        "boolean",
			"description": "Submit the form after filling (default: false)",
			"default":     false,
		},
	}, "fields")
}

func (t *FillFormTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.FillFormArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	filled := make([]string, 0, len(in.Fields))
	for _, field := range in.Fields {
		if err := session.Fill(ctx, field.Selector, field.Value); err != nil {
			return nil, &output.FieldError{Selector: field.Selector, Filled: filled, Err: err}
		}
		filled = append(filled, field.Selector)
		t.logger.Debug("Filled field", "selector", field.Selector)
	}

	result := entity.FillFormResult{
		FilledCount:  len(filled),
		FilledFields: filled,
	}

	if in.Submit {
		if err := session.Submit(ctx, filled[len(filled)-1]); err != nil {
			return nil, fmt.Errorf("form submission failed: %w", err)
		}
		result.Submitted = true
		settle(ctx, submitSettle)
	}

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}
	result.FinalURL = info.URL
	return result, nil
}

type ScreenshotTool struct {
	logger   output.LoggerPort
	maxWidth int
}

func NewScreenshotTool(logger output.LoggerPort, maxWidth int) *ScreenshotTool {
	return &ScreenshotTool{logger: logger, maxWidth: maxWidth}
}

func (t *ScreenshotTool) Name() entity.ToolName { return entity.ToolTakeScreenshot }
func (t *ScreenshotTool) Description() string {
	return "Take a PNG screenshot of the viewport, the full page, or a single element. The image is returned base64 encoded."
}
func (t *ScreenshotTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"full_page": map[string]interface{}{
			"type":        "boolean",
			"description": "Capture the full scrollable page instead of the viewport (default: false)",
			"default":     false,
		},
		"selector": map[string]interface{}{
			"type":        "string",
			"description": "CSS selector of an element to capture (optional)",
		},
	})
}

func (t *ScreenshotTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.ScreenshotArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	req := entity.ScreenshotRequest{Mode: entity.ScreenshotViewport}
	switch {
	case in.Selector != "":
		req = entity.ScreenshotRequest{Mode: entity.ScreenshotElement, Selector: in.Selector}
	case in.FullPage:
		req.Mode = entity.ScreenshotFullPage
	}

	data, err := session.Screenshot(ctx, req)
	if err != nil {
		return nil, err
	}
	img, err := imageutil.FitWidth(data, t.maxWidth)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Captured screenshot",
		"mode", req.Mode,
		"raw_bytes", len(data),
		"width", img.Width,
		"height", img.Height,
		"max_width", t.maxWidth,
	)

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}
	return entity.ScreenshotResult{
		Screenshot: base64.StdEncoding.EncodeToString(img.Data),
		Format:     "png",
		Type:       string(req.Mode),
		SizeBytes:  len(img.Data),
		Width:      img.Width,
		Height:     img.Height,
		URL:        info.URL,
		Selector:   in.Selector,
	}, nil
}

type ScriptTool struct {
	logger output.LoggerPort
}

func NewScriptTool(logger output.LoggerPort) *ScriptTool {
	return &ScriptTool{logger: logger}
}

func (t *ScriptTool) Name() entity.ToolName { return entity.ToolExecuteJavaScript }
func (t *ScriptTool) Description() string {
	return "Evaluate a JavaScript expression in the page context. Promises are awaited. Values that cannot be represented as JSON (functions, symbols, cyclic objects) come back as a placeholder string."
}
func (t *ScriptTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"code": map[string]interface{}{
			"type":        "string",
			"description": "JavaScript code to evaluate",
		},
		"return_value": map[string]interface{}{
			"type":        "boolean",
			"description": "Return the result of the evaluation (default: true)",
			"default":     true,
		},
	}, "code")
}

func (t *ScriptTool) Execute(ctx context.Context, session output.BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error) {
	in, ok := args.(entity.ScriptArgs)
	if !ok {
		return nil, argsMismatch(t.Name(), args)
	}

	value, err := session.Evaluate(ctx, in.Code)
	if err != nil {
		return nil, err
	}
	if value != nil && !value.Serializable {
		t.logger.Debug("Script returned an unserializable value", "type", value.Type)
	}

	info, err := session.Info(ctx)
	if err != nil {
		return nil, err
	}

	result := entity.ScriptResult{
		ReturnedValue: in.ReturnValue,
		Executed:      true,
		URL:           info.URL,
	}
	if in.ReturnValue {
		v := scriptResult(value)
		result.Result = &v
	}
	return result, nil
}

func scriptResult(v *entity.ScriptValue) any {
	if v == nil {
		return nil
	}
	if !v.Serializable {
		return fmt.Sprintf("[unserializable %s]", v.Type)
	}
	return v.Value
}

// settle gives the page a moment to react without outliving ctx.
func settle(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func argsMismatch(name entity.ToolName, args entity.ToolArgs) error {
	return fmt.Errorf("tool %s received arguments for %T", name, args)
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func timeoutSchema(def int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": fmt.Sprintf("Timeout in seconds (%d-%d, default: %d)", entity.MinTimeoutSeconds, entity.MaxTimeoutSeconds, def),
		"minimum":     entity.MinTimeoutSeconds,
		"maximum":     entity.MaxTimeoutSeconds,
		"default":     def,
	}
}

func scopeOf(selector string) string {
	if selector == "" {
		return "body"
	}
	return selector
}
