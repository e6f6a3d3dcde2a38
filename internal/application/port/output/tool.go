package output

import (
	"context"

	"browser-mcp/internal/domain/entity"
)

type ToolPort interface {
	Name() entity.ToolName
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, session BrowserSession, args entity.ToolArgs) (entity.ActionPayload, error)
}

type ToolCatalog interface {
	Get(name entity.ToolName) (ToolPort, bool)
	All() []ToolPort
	Definitions() []entity.ToolDefinition
}
