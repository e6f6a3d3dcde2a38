package input

import (
	"context"

	"browser-mcp/internal/domain/entity"
)

type ActionExecutor interface {
	Execute(ctx context.Context, args entity.ToolArgs) (*entity.ActionResult, *entity.ToolError)
}
