package envelope

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"browser-mcp/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, env entity.ResponseEnvelope) map[string]any {
	t.Helper()
	require.Len(t, env.Content, 1)
	var body map[string]any
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(env.Text(), &body))
	return body
}

func ptr(v any) *any { return &v }

// keyOrder returns the positions of the given top level keys in text.
func keyOrder(t *testing.T, text string, keys ...string) []int {
	t.Helper()
	positions := make([]int, 0, len(keys))
	for _, k := range keys {
		i := strings.Index(text, `"`+k+`":`)
		require.GreaterOrEqual(t, i, 0, "key %q missing", k)
		positions = append(positions, i)
	}
	return positions
}

func TestBuilder_OK(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 500, time.FixedZone("CET", 3600))
	env := New().OK(&entity.ActionResult{
		Tool: entity.ToolClickElement,
		Payload: entity.ClickResult{
			Selector: "#buy",
			Clicked:  true,
			FinalURL: "https://shop.example/cart?a=1&b=<2>",
		},
		Timestamp: ts,
		Elapsed:   1500 * time.Millisecond,
	})
	assert.False(t, env.IsError)
	assert.Equal(t, entity.ContentTypeText, env.Content[0].Type)

	body := decode(t, env)
	assert.Equal(t, map[string]any{
		"success":    true,
		"tool":       "click_element",
		"selector":   "#buy",
		"clicked":    true,
		"final_url":  "https://shop.example/cart?a=1&b=<2>",
		"timestamp":  "2026-03-01T11:00:00.0000005Z",
		"elapsed_ms": float64(1500),
	}, body)

	text := env.Text()
	assert.True(t, strings.HasPrefix(text, "{\n  \"success\": true"), text)
	assert.IsIncreasing(t, keyOrder(t, text, "success", "tool", "selector", "clicked", "final_url", "timestamp", "elapsed_ms"))
	assert.Contains(t, text, `b=\u003c2\u003e`)
}

func TestBuilder_OKOmitsEmptyOptionals(t *testing.T) {
	env := New().OK(&entity.ActionResult{
		Tool:      entity.ToolGetPageContent,
		Payload:   entity.PageContentResult{URL: "https://example.com/", Title: "Example", Content: "Hi", ContentLength: 2},
		Timestamp: time.Now(),
	})
	body := decode(t, env)
	assert.NotContains(t, body, "links")
	assert.NotContains(t, body, "link_count")
	assert.NotContains(t, body, "selector_used")
	assert.Equal(t, float64(2), body["content_length"])
}

func TestBuilder_OKScriptResult(t *testing.T) {
	env := New().OK(&entity.ActionResult{
		Tool: entity.ToolExecuteJavaScript,
		Payload: entity.ScriptResult{
			Result:        ptr(map[string]any{"b": 2, "a": []any{1, "x"}}),
			ReturnedValue: true,
			Executed:      true,
			URL:           "https://example.com/",
		},
		Timestamp: time.Now(),
	})
	body := decode(t, env)
	assert.Equal(t, map[string]any{"a": []any{float64(1), "x"}, "b": float64(2)}, body["result"])
	assert.IsIncreasing(t, keyOrder(t, env.Text(), "result", "returned_value", "executed", "url"))
}

func TestBuilder_OKScriptResultPresence(t *testing.T) {
	tests := []struct {
		name    string
		payload entity.ScriptResult
		present bool
	}{
		{"value not requested", entity.ScriptResult{Executed: true}, false},
		{"null value", entity.ScriptResult{Result: ptr(nil), ReturnedValue: true, Executed: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := New().OK(&entity.ActionResult{
				Tool:      entity.ToolExecuteJavaScript,
				Payload:   tt.payload,
				Timestamp: time.Now(),
			})
			body := decode(t, env)
			result, ok := body["result"]
			assert.Equal(t, tt.present, ok)
			assert.Nil(t, result)
		})
	}
}

func TestBuilder_OKUnserializablePayload(t *testing.T) {
	env := New().OK(&entity.ActionResult{
		Tool:      entity.ToolExecuteJavaScript,
		Payload:   entity.ScriptResult{Result: ptr(math.NaN()), ReturnedValue: true, Executed: true},
		Timestamp: time.Now(),
	})
	assert.True(t, env.IsError)
	body := decode(t, env)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "InternalError", body["kind"])
	assert.Equal(t, "execute_javascript", body["tool"])
	assert.Contains(t, body["error"], "could not be serialized")
}

func TestBuilder_Err(t *testing.T) {
	toolErr := entity.NewToolError(entity.ErrorElementNotFound, "fill_form", "element not found: #phone").
		WithArguments(map[string]any{"fields": map[string]any{"#phone": "1"}}).
		WithDetail("failed_field", "#phone").
		WithDetail("filled_fields", []string{"#email"}).
		WithCause(errors.New("internal cause must not leak"))

	env := New().Err(toolErr)
	assert.True(t, env.IsError)

	body := decode(t, env)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ElementNotFound", body["kind"])
	assert.Equal(t, "element not found: #phone", body["error"])
	assert.Equal(t, "fill_form", body["tool"])
	assert.Equal(t, false, body["retryable"])
	assert.Equal(t, map[string]any{"fields": map[string]any{"#phone": "1"}}, body["arguments"])
	assert.Equal(t, map[string]any{"failed_field": "#phone", "filled_fields": []any{"#email"}}, body["details"])
	assert.NotContains(t, env.Text(), "internal cause")

	_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
	assert.NoError(t, err)
	assert.IsIncreasing(t, keyOrder(t, env.Text(), "success", "kind", "error", "tool", "arguments", "retryable", "details", "timestamp"))
}

func TestBuilder_ErrDefaults(t *testing.T) {
	env := New().Err(entity.NewToolError(entity.ErrorTimeout, "navigate_to", "operation timed out after 1s"))

	body := decode(t, env)
	assert.Equal(t, map[string]any{}, body["arguments"])
	assert.Equal(t, true, body["retryable"])
	assert.NotContains(t, body, "details")
}

func TestBuilder_ErrUnserializableDetails(t *testing.T) {
	toolErr := entity.NewToolError(entity.ErrorScript, "execute_javascript", "boom").
		WithDetail("value", math.Inf(1))

	body := decode(t, New().Err(toolErr))
	assert.Equal(t, "InternalError", body["kind"])
	assert.Equal(t, "execute_javascript", body["tool"])
}
