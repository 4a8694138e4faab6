// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

// Content is the closed set of outbound message kinds.
type Content interface {
	outboundContent()
}

type Text struct {
	Body     string
	QuotedID string
}

type MediaUpload struct {
	Data     []byte
	Mimetype string
	Filename string
	Caption  string
}

type Buttons struct {
	Text     string
	Footer   string
	ImageURL string
	Buttons  []Button
}

type Button struct {
	ID   string
	Text string
}

type List struct {
	Text       string
	Footer     string
	Title      string
	ButtonText string
	Sections   []ListSection
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

type ListRow struct {
	ID          string
	Title       string
	Description string
}

type Poll struct {
	Name            string
	Options         []string
	SelectableCount int
}

// ActionType is the kind of a template/interactive button.
type ActionType string

const (
	ActionURL        ActionType = "url"
	ActionCall       ActionType = "call"
	ActionQuickReply ActionType = "quickReply"
)

type ActionButton struct {
	Type  ActionType
	Text  string
	URL   string
	Phone string
	ID    string
}

type Template struct {
	Text     string
	Footer   string
	MediaURL string
	Buttons  []ActionButton
}

type Interactive struct {
	Text     string
	Footer   string
	MediaURL string
	Buttons  []ActionButton
}

type Carousel struct {
	Text   string
	Footer string
	Cards  []Card
}

type Card struct {
	HeaderURL string
	Body      string
	Footer    string
	Buttons   []ActionButton
}

func (Text) outboundContent()        {}
func (MediaUpload) outboundContent() {}
func (Buttons) outboundContent()     {}
func (List) outboundContent()        {}
func (Poll) outboundContent()        {}
func (Template) outboundContent()    {}
func (Interactive) outboundContent() {}
func (Carousel) outboundContent()    {}
