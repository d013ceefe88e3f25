package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxBriefBytes bounds the brief embedded in a prompt.
const DefaultMaxBriefBytes = 20000

type BriefSource string

const (
	BriefSourcePaste  BriefSource = "paste"
	BriefSourceUpload BriefSource = "upload"
)

// Brief is the user-supplied project description.
type Brief struct {
	Text     string      `json:"text"`
	Source   BriefSource `json:"source"`
	FileName string      `json:"fileName,omitempty"`
}

// NewBrief trims the text and normalizes line endings.
func NewBrief(text string, source BriefSource) Brief {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return Brief{Text: strings.TrimSpace(text), Source: source}
}

func (b Brief) IsEmpty() bool {
	return strings.TrimSpace(b.Text) == ""
}

// CheckLength returns a description of the problem, or "" when the brief fits.
func (b Brief) CheckLength(maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBriefBytes
	}
	if !utf8.ValidString(b.Text) {
		return "brief is not valid UTF-8 text"
	}
	if len(b.Text) > maxBytes {
		return fmt.Sprintf("brief is %d bytes, the limit is %d", len(b.Text), maxBytes)
	}
	return ""
}
