package di

import (
	"context"
	"fmt"
	"sync"

	"browser-mcp/internal/adapter/envelope"
	"browser-mcp/internal/adapter/mcpserver"
	"browser-mcp/internal/adapter/tool"
	"browser-mcp/internal/application/port/input"
	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/application/service"
	"browser-mcp/internal/domain/entity"
	"browser-mcp/internal/infrastructure/browser/playwright"
	"browser-mcp/internal/infrastructure/browser/rod"
	"browser-mcp/internal/infrastructure/config"
	"browser-mcp/internal/usecase/dispatcher"
	"browser-mcp/internal/usecase/executor"
)

const (
	ServerName    = "browser-mcp"
	ServerVersion = "1.0.0"
)

type Container struct {
	Logger     output.LoggerPort
	Sessions   *service.SessionManager
	Tools      output.ToolCatalog
	Executor   input.ActionExecutor
	Dispatcher input.ToolDispatcher
	Server     *mcpserver.Server

	closeOnce sync.Once
	closeErr  error
}

// NewContainer wires the server. The browser is not started here; the first
// tool call launches it.
func NewContainer(cfg config.Config, log output.LoggerPort) (*Container, error) {
	return NewContainerWithEngine(cfg, log, NewEngine(cfg.Browser.Type, log))
}

func NewContainerWithEngine(cfg config.Config, log output.LoggerPort, engine output.BrowserEngine) (*Container, error) {
	tools, err := service.NewToolCatalog(tool.All(log, cfg.Browser)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool catalog: %w", err)
	}

	sessions := service.NewSessionManager(engine, cfg.Browser, log)
	exec := executor.New(sessions, tools, log)
	disp := dispatcher.New(
		tools,
		service.NewValidator(cfg.Browser.DefaultTimeout),
		exec,
		envelope.New(),
		log,
	)

	return &Container{
		Logger:     log,
		Sessions:   sessions,
		Tools:      tools,
		Executor:   exec,
		Dispatcher: disp,
		Server:     mcpserver.New(ServerName, ServerVersion, tools, disp, log),
	}, nil
}

// NewEngine picks the engine adapter for a browser type.
func NewEngine(typ entity.BrowserType, log output.LoggerPort) output.BrowserEngine {
	if typ == entity.BrowserChromium {
		return rod.NewEngine(log)
	}
	return playwright.NewEngine(log)
}

// Close shuts the browser session down. Only the first call has an effect.
func (c *Container) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Sessions.Shutdown(ctx)
	})
	return c.closeErr
}
