package service

import (
	"fmt"

	"browser-mcp/internal/application/port/output"
	"browser-mcp/internal/domain/entity"
)

var _ output.ToolCatalog = (*ToolCatalogImpl)(nil)

// ToolCatalogImpl is the closed tool table. It is filled once at construction
// and must contain exactly the tools named by entity.AllTools.
type ToolCatalogImpl struct {
	tools map[entity.ToolName]output.ToolPort
}

func NewToolCatalog(tools ...output.ToolPort) (*ToolCatalogImpl, error) {
	c := &ToolCatalogImpl{
		tools: make(map[entity.ToolName]output.ToolPort, len(tools)),
	}
	for _, tool := range tools {
		name := tool.Name()
		if _, ok := entity.ParseToolName(string(name)); !ok {
			return nil, fmt.Errorf("tool %q is not part of the catalog", name)
		}
		if _, dup := c.tools[name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", name)
		}
		c.tools[name] = tool
	}
	for _, name := range entity.AllTools() {
		if _, ok := c.tools[name]; !ok {
			return nil, fmt.Errorf("tool %q has no implementation", name)
		}
	}
	return c, nil
}

func (c *ToolCatalogImpl) Get(name entity.ToolName) (output.ToolPort, bool) {
	tool, ok := c.tools[name]
	return tool, ok
}

func (c *ToolCatalogImpl) All() []output.ToolPort {
	result := make([]output.ToolPort, 0, len(c.tools))
	for _, name := range entity.AllTools() {
		result = append(result, c.tools[name])
	}
	return result
}

func (c *ToolCatalogImpl) Definitions() []entity.ToolDefinition {
	result := make([]entity.ToolDefinition, 0, len(c.tools))
	for _, tool := range c.All() {
		result = append(result, entity.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return result
}
