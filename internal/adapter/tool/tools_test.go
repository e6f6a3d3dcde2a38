package tool

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/application/port/output/outputtest"
	"browser-mcp/internal/domain/entity"
	"browser-mcp/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const pageURL = "https://shop.example/catalog"

func testPages() []outputtest.Page {
	return []outputtest.Page{
		{
			URL:      pageURL,
			Title:    "Catalog",
			BodyText: "  Welcome   to the shop \n\n\n\n Items below ",
			BodyHTML: `<body><a href="/item/1">Item 1</a><a href="/item/1">dup</a><a href="https://other.example/">Other</a></body>`,
			Elements: map[string]*outputtest.Element{
				"#list":   {Text: "Item 1", HTML: `<ul id="list"><li><a href="item/1">Item 1</a></li></ul>`},
				"#buy":    {Text: "Buy"},
				"#email":  {Value: "old@example.com"},
				"#name":   {},
				"#banner": {Text: "Sale"},
			},
			SubmitURL: "https://shop.example/thanks",
		},
		{URL: "https://shop.example/thanks", Title: "Thanks"},
	}
}

func newSession(t *testing.T) (*outputtest.Engine, output.BrowserSession) {
	t.Helper()
	engine := outputtest.NewEngine(testPages()...)
	session, err := engine.Launch(context.Background(), entity.DefaultBrowserConfig())
	require.NoError(t, err)
	return engine, session
}

func loadedSession(t *testing.T) (*outputtest.Engine, output.BrowserSession) {
	t.Helper()
	engine, session := newSession(t)
	require.NoError(t, session.Navigate(context.Background(), pageURL))
	return engine, session
}

func timeoutCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestAll_CoversCatalog(t *testing.T) {
	tools := All(logger.NewNop(), entity.DefaultBrowserConfig())

	require.Len(t, tools, len(entity.AllTools()))
	for i, name := range entity.AllTools() {
		assert.Equal(t, name, tools[i].Name())
		assert.NotEmpty(t, tools[i].Description())
		params := tools[i].Parameters()
		assert.Equal(t, "object", params["type"])
		assert.NotNil(t, params["required"])
	}
}

func TestAll_AdvertisesConfiguredTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    int
	}{
		{"configured", 45 * time.Second, 45},
		{"out of range falls back", 0, entity.DefaultTimeoutSecs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := entity.DefaultBrowserConfig()
			cfg.DefaultTimeout = tt.timeout

			var withTimeout []entity.ToolName
			for _, tl := range All(logger.NewNop(), cfg) {
				props := tl.Parameters()["properties"].(map[string]interface{})
				schema, ok := props["timeout"].(map[string]interface{})
				if !ok {
					continue
				}
				withTimeout = append(withTimeout, tl.Name())
				assert.Equal(t, tt.want, schema["default"])
				assert.Contains(t, schema["description"], fmt.Sprintf("default: %d", tt.want))
			}
			assert.Equal(t, []entity.ToolName{entity.ToolNavigateTo, entity.ToolClickElement}, withTimeout)
		})
	}
}

func TestNavigateTool(t *testing.T) {
	_, session := newSession(t)
	tool := NewNavigateTool(logger.NewNop(), entity.DefaultTimeoutSecs)

	payload, err := tool.Execute(timeoutCtx(t, time.Second), session,
		entity.NavigateArgs{URL: pageURL, WaitFor: "#list", TimeoutSeconds: 1})
	require.NoError(t, err)

	assert.Equal(t, entity.NavigateResult{
		URL:       pageURL,
		Title:     "Catalog",
		Loaded:    true,
		WaitedFor: "#list",
	}, payload)
}

func TestNavigateTool_WaitForExpires(t *testing.T) {
	_, session := newSession(t)
	tool := NewNavigateTool(logger.NewNop(), entity.DefaultTimeoutSecs)

	_, err := tool.Execute(timeoutCtx(t, 50*time.Millisecond), session,
		entity.NavigateArgs{URL: pageURL, WaitFor: "#never", TimeoutSeconds: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNavigateTool_UnknownHost(t *testing.T) {
	_, session := newSession(t)
	tool := NewNavigateTool(logger.NewNop(), entity.DefaultTimeoutSecs)

	_, err := tool.Execute(context.Background(), session, entity.NavigateArgs{URL: "https://nowhere.example/"})
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
}

func TestPageContentTool(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewPageContentTool(logger.NewNop())

	payload, err := tool.Execute(context.Background(), session, entity.PageContentArgs{IncludeLinks: true})
	require.NoError(t, err)

	result := payload.(entity.PageContentResult)
	assert.Equal(t, "Welcome to the shop\n\nItems below", result.Content)
	assert.Equal(t, len("Welcome to the shop\n\nItems below"), result.ContentLength)
	assert.Empty(t, result.SelectorUsed)
	assert.Equal(t, []entity.Link{
		{Href: "https://shop.example/item/1", Text: "Item 1"},
		{Href: "https://other.example/", Text: "Other"},
	}, result.Links)
	require.NotNil(t, result.LinkCount)
	assert.Equal(t, 2, *result.LinkCount)
}

func TestPageContentTool_Selector(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewPageContentTool(logger.NewNop())

	payload, err := tool.Execute(context.Background(), session,
		entity.PageContentArgs{Selector: "#list", IncludeLinks: true})
	require.NoError(t, err)

	result := payload.(entity.PageContentResult)
	assert.Equal(t, "Item 1", result.Content)
	assert.Equal(t, "#list", result.SelectorUsed)
	assert.Equal(t, []entity.Link{{Href: "https://shop.example/item/1", Text: "Item 1"}}, result.Links)
}

func TestPageContentTool_WithoutLinks(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewPageContentTool(logger.NewNop())

	payload, err := tool.Execute(context.Background(), session, entity.PageContentArgs{})
	require.NoError(t, err)

	result := payload.(entity.PageContentResult)
	assert.Nil(t, result.Links)
	assert.Nil(t, result.LinkCount)
}

func TestPageContentTool_MissingSelector(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewPageContentTool(logger.NewNop())

	_, err := tool.Execute(context.Background(), session, entity.PageContentArgs{Selector: "#missing"})
	assert.ErrorIs(t, err, output.ErrElementNotFound)
}

func TestClickTool(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewClickTool(logger.NewNop(), entity.DefaultTimeoutSecs)

	payload, err := tool.Execute(timeoutCtx(t, 5*time.Second), session,
		entity.ClickArgs{Selector: "#buy", TimeoutSeconds: 5})
	require.NoError(t, err)
	assert.Equal(t, entity.ClickResult{Selector: "#buy", Clicked: true, FinalURL: pageURL}, payload)
}

func TestClickTool_NotFound(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewClickTool(logger.NewNop(), entity.DefaultTimeoutSecs)

	_, err := tool.Execute(timeoutCtx(t, 50*time.Millisecond), session,
		entity.ClickArgs{Selector: "#nope", TimeoutSeconds: 1})
	assert.ErrorIs(t, err, output.ErrElementNotFound)
}

func TestFillFormTool(t *testing.T) {
	engine, session := loadedSession(t)
	tool := NewFillFormTool(logger.NewNop())

	payload, err := tool.Execute(timeoutCtx(t, 5*time.Second), session, entity.FillFormArgs{
		Fields: []entity.FormField{
			{Selector: "#email", Value: "john@example.com"},
			{Selector: "#name", Value: "John"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.FillFormResult{
		FilledCount:  2,
		FilledFields: []string{"#email", "#name"},
		FinalURL:     pageURL,
	}, payload)

	fake := session.(*outputtest.Session)
	value, ok := fake.Value("#email")
	require.True(t, ok)
	assert.Equal(t, "john@example.com", value)
	assert.Equal(t, []string{pageURL}, engine.Navigations(), "filling must not navigate")
}

func TestFillFormTool_Submit(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewFillFormTool(logger.NewNop())

	payload, err := tool.Execute(timeoutCtx(t, 5*time.Second), session, entity.FillFormArgs{
		Fields: []entity.FormField{{Selector: "#email", Value: "a@b.c"}},
		Submit: true,
	})
	require.NoError(t, err)

	result := payload.(entity.FillFormResult)
	assert.True(t, result.Submitted)
	assert.Equal(t, "https://shop.example/thanks", result.FinalURL)
}

func TestFillFormTool_StopsAtFirstFailure(t *testing.T) {
	engine, session := loadedSession(t)
	tool := NewFillFormTool(logger.NewNop())

	_, err := tool.Execute(timeoutCtx(t, 50*time.Millisecond), session, entity.FillFormArgs{
		Fields: []entity.FormField{
			{Selector: "#email", Value: "x@y.z"},
			{Selector: "#missing", Value: "1"},
			{Selector: "#name", Value: "never"},
		},
		Submit: true,
	})

	var fieldErr *output.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "#missing", fieldErr.Selector)
	assert.Equal(t, []string{"#email"}, fieldErr.Filled)
	assert.ErrorIs(t, err, output.ErrElementNotFound)

	value, _ := session.(*outputtest.Session).Value("#name")
	assert.Empty(t, value, "fields after the failure must stay untouched")
	assert.Len(t, engine.Navigations(), 1, "form must not be submitted")
}

func TestScreenshotTool(t *testing.T) {
	_, session := loadedSession(t)

	tests := []struct {
		name     string
		maxWidth int
		args     entity.ScreenshotArgs
		typ      string
		width    int
		height   int
	}{
		{"viewport", 1920, entity.ScreenshotArgs{}, "viewport", 640, 360},
		{"full page", 1920, entity.ScreenshotArgs{FullPage: true}, "full_page", 640, 1200},
		{"element wins over full page", 1920, entity.ScreenshotArgs{FullPage: true, Selector: "#banner"}, "element", 200, 50},
		{"downscaled", 320, entity.ScreenshotArgs{}, "viewport", 320, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewScreenshotTool(logger.NewNop(), tt.maxWidth)

			payload, err := tool.Execute(context.Background(), session, tt.args)
			require.NoError(t, err)

			result := payload.(entity.ScreenshotResult)
			assert.Equal(t, "png", result.Format)
			assert.Equal(t, tt.typ, result.Type)
			assert.Equal(t, tt.width, result.Width)
			assert.Equal(t, tt.height, result.Height)
			assert.Equal(t, pageURL, result.URL)
			assert.Equal(t, tt.args.Selector, result.Selector)

			data, err := base64.StdEncoding.DecodeString(result.Screenshot)
			require.NoError(t, err)
			assert.Equal(t, len(data), result.SizeBytes)
			assert.Equal(t, []byte("\x89PNG"), data[:4])
		})
	}
}

func TestScreenshotTool_LogsDownscale(t *testing.T) {
	_, session := loadedSession(t)
	core, logs := observer.New(zapcore.DebugLevel)
	tool := NewScreenshotTool(logger.FromZap(zap.New(core)), 320)

	_, err := tool.Execute(context.Background(), session, entity.ScreenshotArgs{})
	require.NoError(t, err)

	entries := logs.FilterMessage("Captured screenshot").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 320, fields["width"])
	assert.EqualValues(t, 320, fields["max_width"])
}

func TestScreenshotTool_MissingElement(t *testing.T) {
	_, session := loadedSession(t)
	tool := NewScreenshotTool(logger.NewNop(), 1920)

	_, err := tool.Execute(context.Background(), session, entity.ScreenshotArgs{Selector: "#gone"})
	assert.ErrorIs(t, err, output.ErrElementNotFound)
}

func TestScriptTool(t *testing.T) {
	engine, session := loadedSession(t)
	engine.Scripts["document.title"] = entity.ScriptValue{Value: "Catalog", Type: "string", Serializable: true}
	engine.Scripts["() => 1"] = entity.ScriptValue{Type: "function"}
	engine.ScriptErrors["boom()"] = "ReferenceError: boom is not defined"
	tool := NewScriptTool(logger.NewNop())
	ctx := context.Background()

	payload, err := tool.Execute(ctx, session, entity.ScriptArgs{Code: "document.title", ReturnValue: true})
	require.NoError(t, err)
	result := payload.(entity.ScriptResult)
	require.NotNil(t, result.Result)
	assert.Equal(t, "Catalog", *result.Result)
	assert.True(t, result.ReturnedValue)
	assert.True(t, result.Executed)
	assert.Equal(t, pageURL, result.URL)

	payload, err = tool.Execute(ctx, session, entity.ScriptArgs{Code: "() => 1", ReturnValue: true})
	require.NoError(t, err)
	require.NotNil(t, payload.(entity.ScriptResult).Result)
	assert.Equal(t, "[unserializable function]", *payload.(entity.ScriptResult).Result)

	payload, err = tool.Execute(ctx, session, entity.ScriptArgs{Code: "void 0", ReturnValue: true})
	require.NoError(t, err)
	require.NotNil(t, payload.(entity.ScriptResult).Result, "an undefined value is still returned")
	assert.Nil(t, *payload.(entity.ScriptResult).Result)

	payload, err = tool.Execute(ctx, session, entity.ScriptArgs{Code: "document.title", ReturnValue: false})
	require.NoError(t, err)
	assert.Nil(t, payload.(entity.ScriptResult).Result)
	assert.False(t, payload.(entity.ScriptResult).ReturnedValue)

	_, err = tool.Execute(ctx, session, entity.ScriptArgs{Code: "boom()", ReturnValue: true})
	assert.ErrorIs(t, err, output.ErrScriptFailed)
	assert.ErrorContains(t, err, "boom is not defined")
}

func TestExecute_RejectsForeignArgs(t *testing.T) {
	_, session := loadedSession(t)

	_, err := NewClickTool(logger.NewNop(), entity.DefaultTimeoutSecs).Execute(context.Background(), session, entity.ScriptArgs{Code: "1"})
	assert.ErrorContains(t, err, "received arguments")
}
