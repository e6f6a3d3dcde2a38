package entity

const ContentTypeText = "text"

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponseEnvelope is the only shape handed back to the caller.
type ResponseEnvelope struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

func (e ResponseEnvelope) Text() string {
	if len(e.Content) == 0 {
		return ""
	}
	return e.Content[0].Text
}
