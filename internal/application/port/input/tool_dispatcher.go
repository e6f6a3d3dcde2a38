package input

import (
	"context"

	"browser-mcp/internal/domain/entity"
)

// ToolDispatcher answers every request with exactly one envelope.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, req entity.ToolRequest) entity.ResponseEnvelope
}
