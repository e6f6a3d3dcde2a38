package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"browser-mcp/internal/application/port/input"
	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var _ input.ToolDispatcher = (*UseCase)(nil)

const maxEchoedCode = 100

type Validator interface {
	Validate(name entity.ToolName, raw json.RawMessage) (entity.ToolArgs, *entity.ToolError)
}

type UseCase struct {
	catalog   output.ToolCatalog
	validator Validator
	executor  input.ActionExecutor
	envelopes output.EnvelopeBuilder
	logger    output.LoggerPort
}

func New(
	catalog output.ToolCatalog,
	validator Validator,
	executor input.ActionExecutor,
	envelopes output.EnvelopeBuilder,
	logger output.LoggerPort,
) *UseCase {
	return &UseCase{
		catalog:   catalog,
		validator: validator,
		executor:  executor,
		envelopes: envelopes,
		logger:    logger.WithField("component", "dispatcher"),
	}
}

// Dispatch answers one tool call. It always returns an envelope; panics are
// turned into InternalError.
func (uc *UseCase) Dispatch(ctx context.Context, req entity.ToolRequest) (env entity.ResponseEnvelope) {
	start := time.Now()
	log := uc.logger.WithFields(map[string]any{
		"call_id": uuid.NewString(),
		"tool":    req.Name,
	})

	defer func() {
		if r := recover(); r != nil {
			toolErr := entity.NewToolError(entity.ErrorInternal, req.Name, "internal error: %v", r).
				WithArguments(echoArguments(req))
			log.Error("Tool call panicked", "panic", fmt.Sprint(r), "duration_ms", time.Since(start).Milliseconds())
			env = uc.envelopes.Err(toolErr)
		}
	}()

	result, toolErr := uc.dispatch(ctx, req)
	if toolErr != nil {
		if toolErr.Arguments == nil {
			toolErr.WithArguments(echoArguments(req))
		}
		uc.logFailure(log, start, toolErr)
		return uc.envelopes.Err(toolErr)
	}

	log.Info("Tool call finished", "outcome", "ok", "duration_ms", time.Since(start).Milliseconds())
	return uc.envelopes.OK(result)
}

func (uc *UseCase) dispatch(ctx context.Context, req entity.ToolRequest) (*entity.ActionResult, *entity.ToolError) {
	name, ok := entity.ParseToolName(req.Name)
	if !ok {
		return nil, entity.NewToolError(entity.ErrorUnknownTool, req.Name, "unknown tool %q", req.Name).
			WithDetail("available_tools", toolNames(uc.catalog))
	}
	if _, ok := uc.catalog.Get(name); !ok {
		return nil, entity.NewToolError(entity.ErrorUnknownTool, req.Name, "tool %q is not registered", req.Name)
	}

	args, toolErr := uc.validator.Validate(name, req.Arguments)
	if toolErr != nil {
		return nil, toolErr
	}
	return uc.executor.Execute(ctx, args)
}

func (uc *UseCase) logFailure(log output.LoggerPort, start time.Time, toolErr *entity.ToolError) {
	fields := []any{
		"outcome", toolErr.Kind.String(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", toolErr.Message,
	}
	if toolErr.Cause != nil {
		fields = append(fields, "cause", toolErr.Cause.Error())
	}

	switch toolErr.Kind {
	case entity.ErrorUnknownTool, entity.ErrorValidation:
		log.Warn("Tool call rejected", fields...)
	default:
		log.Error("Tool call failed", fields...)
	}
}

func toolNames(catalog output.ToolCatalog) []string {
	defs := catalog.Definitions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name.String())
	}
	return names
}

// echoArguments returns the caller's arguments for error bodies. Script
// source is cut to maxEchoedCode characters.
func echoArguments(req entity.ToolRequest) any {
	trimmed := bytes.TrimSpace(req.Arguments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}
	}

	var args map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(trimmed, &args); err != nil {
		return string(trimmed)
	}
	if req.Name == entity.ToolExecuteJavaScript.String() {
		if code, ok := args["code"].(string); ok {
			args["code"] = truncate(code, maxEchoedCode)
		}
	}
	return args
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
