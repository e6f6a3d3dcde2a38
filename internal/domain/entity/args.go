package entity

import "time"

// ToolArgs is the validated argument set of one tool. The variant set is
// closed: only the types in this file implement it.
type ToolArgs interface {
	Tool() ToolName
	Timeout() time.Duration
	toolArgs()
}

type NavigateArgs struct {
	URL            string `json:"url"`
	WaitFor        string `json:"wait_for,omitempty"`
	TimeoutSeconds int    `json:"timeout"`
}

type PageContentArgs struct {
	Selector       string `json:"selector,omitempty"`
	IncludeLinks   bool   `json:"include_links"`
	TimeoutSeconds int    `json:"-"`
}

type ClickArgs struct {
	Selector       string `json:"selector"`
	TimeoutSeconds int    `json:"timeout"`
}

type FormField struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

// FillFormArgs keeps fields in the order the caller sent them.
type FillFormArgs struct {
	Fields         []FormField `json:"fields"`
	Submit         bool        `json:"submit"`
	TimeoutSeconds int         `json:"-"`
}

type ScreenshotArgs struct {
	FullPage       bool   `json:"full_page"`
	Selector       string `json:"selector,omitempty"`
	TimeoutSeconds int    `json:"-"`
}

type ScriptArgs struct {
	Code           string `json:"code"`
	ReturnValue    bool   `json:"return_value"`
	TimeoutSeconds int    `json:"-"`
}

func (NavigateArgs) Tool() ToolName    { return ToolNavigateTo }
func (PageContentArgs) Tool() ToolName { return ToolGetPageContent }
func (ClickArgs) Tool() ToolName       { return ToolClickElement }
func (FillFormArgs) Tool() ToolName    { return ToolFillForm }
func (ScreenshotArgs) Tool() ToolName  { return ToolTakeScreenshot }
func (ScriptArgs) Tool() ToolName      { return ToolExecuteJavaScript }

func (a NavigateArgs) Timeout() time.Duration    { return seconds(a.TimeoutSeconds) }
func (a PageContentArgs) Timeout() time.Duration { return seconds(a.TimeoutSeconds) }
func (a ClickArgs) Timeout() time.Duration       { return seconds(a.TimeoutSeconds) }
func (a FillFormArgs) Timeout() time.Duration    { return seconds(a.TimeoutSeconds) }
func (a ScreenshotArgs) Timeout() time.Duration  { return seconds(a.TimeoutSeconds) }
func (a ScriptArgs) Timeout() time.Duration      { return seconds(a.TimeoutSeconds) }

func (NavigateArgs) toolArgs()    {}
func (PageContentArgs) toolArgs() {}
func (ClickArgs) toolArgs()       {}
func (FillFormArgs) toolArgs()    {}
func (ScreenshotArgs) toolArgs()  {}
func (ScriptArgs) toolArgs()      {}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
