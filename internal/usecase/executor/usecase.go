package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"browser-mcp/internal/application/port/input"
	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
)

var _ input.ActionExecutor = (*UseCase)(nil)

const (
	defaultGrace       = 2 * time.Second
	healthCheckTimeout = 2 * time.Second
)

var errPanicked = errors.New("tool panicked")

type UseCase struct {
	sessions output.SessionProvider
	tools    output.ToolCatalog
	logger   output.LoggerPort
	grace    time.Duration
}

type Option func(*UseCase)

// WithGrace sets how long a call that ignores its deadline is waited for
// before the session is abandoned.
func WithGrace(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.grace = d
	}
}

func New(
	sessions output.SessionProvider,
	tools output.ToolCatalog,
	logger output.LoggerPort,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		sessions: sessions,
		tools:    tools,
		logger:   logger.WithField("component", "executor"),
		grace:    defaultGrace,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UseCase) Execute(ctx context.Context, args entity.ToolArgs) (*entity.ActionResult, *entity.ToolError) {
	name := args.Tool()
	tool, ok := uc.tools.Get(name)
	if !ok {
		return nil, entity.NewToolError(entity.ErrorUnknownTool, string(name), "unknown tool %q", name)
	}

	session, err := uc.sessions.Acquire(ctx)
	if err != nil {
		return nil, uc.acquireError(name, err)
	}
	defer uc.sessions.Release()

	start := time.Now()
	payload, err := uc.attempt(ctx, tool, session, args)
	if err != nil {
		toolErr := uc.mapError(ctx, tool, session, args, err)
		if toolErr != nil {
			return nil, toolErr
		}

		uc.logger.Warn("Browser session died during call, relaunching", "tool", name, "error", err)
		session, err = uc.sessions.Reset(ctx)
		if err != nil {
			return nil, entity.NewToolError(entity.ErrorSessionUnavailable, string(name),
				"browser session could not be relaunched: %v", err).WithCause(err)
		}

		payload, err = uc.attempt(ctx, tool, session, args)
		if err != nil {
			if toolErr := uc.mapError(ctx, tool, session, args, err); toolErr != nil {
				return nil, toolErr
			}
			return nil, entity.NewToolError(entity.ErrorSessionUnavailable, string(name),
				"browser session died again after relaunch: %v", err).WithCause(err)
		}
	}

	return &entity.ActionResult{
		Tool:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Elapsed:   time.Since(start),
	}, nil
}

type outcome struct {
	payload entity.ActionPayload
	err     error
}

// stuckError is returned when a tool did not come back within the grace
// period after its deadline.
type stuckError struct {
	err error
}

func (e *stuckError) Error() string { return e.err.Error() }
func (e *stuckError) Unwrap() error { return e.err }

func (uc *UseCase) attempt(
	ctx context.Context,
	tool output.ToolPort,
	session output.BrowserSession,
	args entity.ToolArgs,
) (entity.ActionPayload, error) {
	opCtx, cancel := context.WithTimeout(ctx, args.Timeout())
	defer cancel()

	go func() {
		select {
		case <-uc.sessions.Done():
			cancel()
		case <-opCtx.Done():
		}
	}()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", errPanicked, r)}
			}
		}()
		payload, err := tool.Execute(opCtx, session, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-opCtx.Done():
	}

	grace := time.NewTimer(uc.grace)
	defer grace.Stop()
	select {
	case out := <-done:
		if out.err == nil {
			return out.payload, nil
		}
		return nil, out.err
	case <-grace.C:
		return nil, &stuckError{err: opCtx.Err()}
	}
}

// mapError classifies a failed attempt. A nil result means the session died
// and the caller should relaunch and retry.
func (uc *UseCase) mapError(
	ctx context.Context,
	tool output.ToolPort,
	session output.BrowserSession,
	args entity.ToolArgs,
	err error,
) *entity.ToolError {
	name := string(tool.Name())

	select {
	case <-uc.sessions.Done():
		return entity.NewToolError(entity.ErrorSessionUnavailable, name,
			"browser session is shutting down").WithCause(err)
	default:
	}

	var stuck *stuckError
	if errors.As(err, &stuck) {
		uc.logger.Warn("Tool ignored its deadline, resetting browser session", "tool", name)
		uc.abandon(ctx)
		return timeoutError(name, args, err)
	}

	var toolErr *entity.ToolError
	switch {
	case errors.Is(err, output.ErrElementNotFound):
		toolErr = entity.NewToolError(entity.ErrorElementNotFound, name, "%s", err.Error())
	case errors.Is(err, output.ErrScriptFailed):
		toolErr = entity.NewToolError(entity.ErrorScript, name, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		if !uc.alive(ctx, session) {
			uc.logger.Warn("Browser session unresponsive after timeout, resetting", "tool", name)
			uc.abandon(ctx)
		}
		toolErr = timeoutError(name, args, err)
	case errors.Is(err, errPanicked):
		toolErr = entity.NewToolError(entity.ErrorInternal, name, "%s", err.Error())
	case errors.Is(err, output.ErrSessionClosed) || !uc.alive(ctx, session):
		return nil
	default:
		toolErr = entity.NewToolError(entity.ErrorExecutionFailed, name, "%s", err.Error())
	}

	var fieldErr *output.FieldError
	if errors.As(err, &fieldErr) {
		toolErr.WithDetail("failed_field", fieldErr.Selector).
			WithDetail("filled_fields", append([]string{}, fieldErr.Filled...))
	}
	return toolErr.WithCause(err)
}

func (uc *UseCase) acquireError(name entity.ToolName, err error) *entity.ToolError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return entity.NewToolError(entity.ErrorTimeout, string(name),
			"gave up waiting for the browser session: %v", err).WithCause(err)
	}
	return entity.NewToolError(entity.ErrorSessionUnavailable, string(name), "%s", err.Error()).WithCause(err)
}

func (uc *UseCase) alive(ctx context.Context, session output.BrowserSession) bool {
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthCheckTimeout)
	defer cancel()
	return session.Alive(checkCtx)
}

// abandon replaces a session whose call is stuck. Closing the old session
// unblocks the stuck call.
func (uc *UseCase) abandon(ctx context.Context) {
	if _, err := uc.sessions.Reset(context.WithoutCancel(ctx)); err != nil {
		uc.logger.Error("Relaunch after stuck call failed", "error", err)
	}
}

func timeoutError(name string, args entity.ToolArgs, err error) *entity.ToolError {
	secs := int(args.Timeout() / time.Second)
	return entity.NewToolError(entity.ErrorTimeout, name, "operation timed out after %ds", secs).
		WithDetail("timeout_seconds", secs).
		WithCause(err)
}
