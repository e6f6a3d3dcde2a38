package entity

import "encoding/json"

type ToolName string

const (
	ToolNavigateTo        ToolName = "navigate_to"
	ToolGetPageContent    ToolName = "get_page_content"
	ToolClickElement      ToolName = "click_element"
	ToolFillForm          ToolName = "fill_form"
	ToolTakeScreenshot    ToolName = "take_screenshot"
	ToolExecuteJavaScript ToolName = "execute_javascript"
)

var allTools = []ToolName{
	ToolNavigateTo,
	ToolGetPageContent,
	ToolClickElement,
	ToolFillForm,
	ToolTakeScreenshot,
	ToolExecuteJavaScript,
}

// AllTools returns the fixed tool catalog in advertisement order.
func AllTools() []ToolName {
	out := make([]ToolName, len(allTools))
	copy(out, allTools)
	return out
}

func ParseToolName(s string) (ToolName, bool) {
	for _, t := range allTools {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

func (t ToolName) String() string {
	return string(t)
}

// ToolRequest is one decoded tool call. Arguments stay raw so that key order
// survives until validation.
type ToolRequest struct {
	Name      string
	Arguments json.RawMessage
}

type ToolDefinition struct {
	Name        ToolName
	Description string
	Parameters  map[string]interface{}
}
