package output

import "browser-mcp/internal/domain/entity"

type EnvelopeBuilder interface {
	OK(result *entity.ActionResult) entity.ResponseEnvelope
	Err(err *entity.ToolError) entity.ResponseEnvelope
}
