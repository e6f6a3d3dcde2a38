package entity

type PageInfo struct {
	URL   string
	Title string
}

type ScreenshotMode string

const (
	ScreenshotViewport ScreenshotMode = "viewport"
	ScreenshotFullPage ScreenshotMode = "full_page"
	ScreenshotElement  ScreenshotMode = "element"
)

type ScreenshotRequest struct {
	Mode     ScreenshotMode
	Selector string
}

// ScriptValue is what the page returned from an evaluation. When Serializable
// is false, Value is nil and Type names what could not be transported.
type ScriptValue struct {
	Value        any
	Type         string
	Serializable bool
}
