// Package envelope renders tool outcomes into the text envelope returned to
// the caller.
package envelope

import (
	"fmt"
	"time"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

var _ output.EnvelopeBuilder = (*Builder)(nil)

var api = jsoniter.Config{
	IndentionStep:          2,
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

const fixedInternalError = `{
  "success": false,
  "kind": "InternalError",
  "error": "response could not be serialized"
}`

type Builder struct{}

func New() *Builder {
	return &Builder{}
}

type field struct {
	key   string
	value any
}

// OK renders a success body: success and tool first, then the payload
// fields in declaration order, then timestamp and elapsed_ms.
func (b *Builder) OK(result *entity.ActionResult) entity.ResponseEnvelope {
	body, err := renderSuccess(result)
	if err != nil {
		return internalError(string(result.Tool), err)
	}
	return entity.ResponseEnvelope{
		Content: []entity.ContentBlock{{Type: entity.ContentTypeText, Text: body}},
	}
}

func (b *Builder) Err(toolErr *entity.ToolError) entity.ResponseEnvelope {
	body, err := renderError(toolErr, time.Now().UTC())
	if err != nil {
		return internalError(toolErr.Tool, err)
	}
	return entity.ResponseEnvelope{
		Content: []entity.ContentBlock{{Type: entity.ContentTypeText, Text: body}},
		IsError: true,
	}
}

func renderSuccess(result *entity.ActionResult) (string, error) {
	fields, err := payloadFields(result.Payload)
	if err != nil {
		return "", err
	}

	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("success")
	stream.WriteBool(true)
	stream.WriteMore()
	stream.WriteObjectField("tool")
	stream.WriteString(string(result.Tool))
	for _, f := range fields {
		stream.WriteMore()
		stream.WriteObjectField(f.key)
		stream.WriteVal(f.value)
	}
	stream.WriteMore()
	stream.WriteObjectField("timestamp")
	stream.WriteString(result.Timestamp.UTC().Format(time.RFC3339Nano))
	stream.WriteMore()
	stream.WriteObjectField("elapsed_ms")
	stream.WriteInt64(result.Elapsed.Milliseconds())
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return "", stream.Error
	}
	return string(stream.Buffer()), nil
}

// payloadFields flattens a payload into its top level keys, keeping the
// order of the struct's json tags.
func payloadFields(payload entity.ActionPayload) ([]field, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := api.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var fields []field
	iter := jsoniter.ParseBytes(api, raw)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		fields = append(fields, field{key: key, value: it.Read()})
		return true
	})
	if iter.Error != nil {
		return nil, fmt.Errorf("flatten payload: %w", iter.Error)
	}
	return fields, nil
}

type errorBody struct {
	Success   bool           `json:"success"`
	Kind      string         `json:"kind"`
	Error     string         `json:"error"`
	Tool      string         `json:"tool"`
	Arguments any            `json:"arguments"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func renderError(toolErr *entity.ToolError, now time.Time) (string, error) {
	args := toolErr.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := api.Marshal(errorBody{
		Kind:      toolErr.Kind.String(),
		Error:     toolErr.Message,
		Tool:      toolErr.Tool,
		Arguments: args,
		Retryable: toolErr.Kind.Retryable(),
		Details:   toolErr.Details,
		Timestamp: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type internalBody struct {
	Success   bool   `json:"success"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
	Tool      string `json:"tool"`
	Timestamp string `json:"timestamp"`
}

func internalError(tool string, cause error) entity.ResponseEnvelope {
	text := fixedInternalError
	data, err := api.Marshal(internalBody{
		Kind:      entity.ErrorInternal.String(),
		Error:     fmt.Sprintf("response could not be serialized: %v", cause),
		Tool:      tool,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err == nil {
		text = string(data)
	}
	return entity.ResponseEnvelope{
		Content: []entity.ContentBlock{{Type: entity.ContentTypeText, Text: text}},
		IsError: true,
	}
}
