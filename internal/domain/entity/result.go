package entity

import "time"

// ActionPayload is the tool specific part of a successful call.
type ActionPayload interface {
	actionPayload()
}

type ActionResult struct {
	Tool      ToolName
	Payload   ActionPayload
	Timestamp time.Time
	Elapsed   time.Duration
}

type NavigateResult struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Loaded    bool   `json:"loaded"`
	WaitedFor string `json:"waited_for,omitempty"`
}

type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

type PageContentResult struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ContentLength int    `json:"content_length"`
	SelectorUsed  string `json:"selector_used,omitempty"`
	Links         []Link `json:"links,omitempty"`
	LinkCount     *int   `json:"link_count,omitempty"`
}

type ClickResult struct {
	Selector string `json:"selector"`
	Clicked  bool   `json:"clicked"`
	FinalURL string `json:"final_url"`
}

type FillFormResult struct {
	FilledCount  int      `json:"filled_count"`
	FilledFields []string `json:"filled_fields"`
	Submitted    bool     `json:"submitted"`
	FinalURL     string   `json:"final_url"`
}

type ScreenshotResult struct {
	Screenshot string `json:"screenshot"`
	Format     string `json:"format"`
	Type       string `json:"type"`
	SizeBytes  int    `json:"size_bytes"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	URL        string `json:"url"`
	Selector   string `json:"selector,omitempty"`
}

// ScriptResult carries Result only when the caller asked for the value; a
// non-nil Result may still hold a JSON null.
type ScriptResult struct {
	Result        *any   `json:"result,omitempty"`
	ReturnedValue bool   `json:"returned_value"`
	Executed      bool   `json:"executed"`
	URL           string `json:"url"`
}

func (NavigateResult) actionPayload()    {}
func (PageContentResult) actionPayload() {}
func (ClickResult) actionPayload()       {}
func (FillFormResult) actionPayload()    {}
func (ScreenshotResult) actionPayload()  {}
func (ScriptResult) actionPayload()      {}
