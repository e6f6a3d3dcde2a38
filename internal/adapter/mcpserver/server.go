// Package mcpserver exposes the tool catalog over the Model Context Protocol.
package mcpserver

import (
	"context"

	"browser-mcp/internal/application/port/input"
	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const methodCallTool = "tools/call"

type Server struct {
	server     *mcp.Server
	catalog    output.ToolCatalog
	dispatcher input.ToolDispatcher
	logger     output.LoggerPort
}

func New(
	name, version string,
	catalog output.ToolCatalog,
	dispatcher input.ToolDispatcher,
	logger output.LoggerPort,
) *Server {
	s := &Server{
		server:     mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		catalog:    catalog,
		dispatcher: dispatcher,
		logger:     logger.WithField("component", "mcp"),
	}

	for _, def := range catalog.Definitions() {
		s.server.AddTool(&mcp.Tool{
			Name:        def.Name.String(),
			Description: def.Description,
			InputSchema: def.Parameters,
		}, s.handle)
	}
	s.server.AddReceivingMiddleware(s.unknownTools)
	return s
}

// Run serves the protocol on stdin/stdout until ctx ends or the peer
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving tools over stdio", "tools", len(s.catalog.All()))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session on t, for embedding and tests.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, req.Params.Name, req.Params.Arguments), nil
}

// unknownTools answers calls to names outside the catalog with an
// UnknownTool envelope instead of a protocol error.
func (s *Server) unknownTools(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method != methodCallTool {
			return next(ctx, method, req)
		}
		call, ok := req.(*mcp.CallToolRequest)
		if !ok || call.Params == nil {
			return next(ctx, method, req)
		}
		if name, known := entity.ParseToolName(call.Params.Name); known {
			if _, registered := s.catalog.Get(name); registered {
				return next(ctx, method, req)
			}
		}
		return s.call(ctx, call.Params.Name, call.Params.Arguments), nil
	}
}

func (s *Server) call(ctx context.Context, name string, args []byte) *mcp.CallToolResult {
	env := s.dispatcher.Dispatch(ctx, entity.ToolRequest{Name: name, Arguments: args})
	content := make([]mcp.Content, 0, len(env.Content))
	for _, block := range env.Content {
		content = append(content, &mcp.TextContent{Text: block.Text})
	}
	return &mcp.CallToolResult{Content: content, IsError: env.IsError}
}
