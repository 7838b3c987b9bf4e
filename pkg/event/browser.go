package event

import (
	"fmt"

	"github.com/je4/mediaport/pkg/media"
)

// ScreenshotMessage is both request and answer of a display screenshot.
// Width or height 0 keeps the aspect ratio; Image is base64 on the wire.
type ScreenshotMessage struct {
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Sigma    float64          `json:"sigma,omitempty"`
	MimeType string           `json:"mimeType,omitempty"`
	Image    []byte           `json:"image,omitempty"`
	Result   media.ResultKind `json:"result,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	answer   bool
}

func (m *ScreenshotMessage) String() string {
	if m.answer {
		return fmt.Sprintf("screenshot %dx%d: %s, %d bytes", m.Width, m.Height, m.Result, len(m.Image))
	}
	return fmt.Sprintf("screenshot %dx%d", m.Width, m.Height)
}

func (m *ScreenshotMessage) Type() EventType {
	if m.answer {
		return TypeBrowserScreenshotResult
	}
	return TypeBrowserScreenshot
}

func NewScreenshotAnswer(width, height int, image []byte, mimeType string, err error) *ScreenshotMessage {
	msg := &ScreenshotMessage{Width: width, Height: height, Image: image, MimeType: mimeType, Result: media.Classify(err), answer: true}
	if err != nil {
		msg.Reason = err.Error()
	}
	return msg
}

// LogMessage carries the recent console output of the display page. The
// request has no lines.
type LogMessage struct {
	Lines  []string         `json:"lines,omitempty"`
	Result media.ResultKind `json:"result,omitempty"`
	Reason string           `json:"reason,omitempty"`
	answer bool
}

func (m *LogMessage) String() string {
	return fmt.Sprintf("console log: %d lines", len(m.Lines))
}

func (m *LogMessage) Type() EventType {
	if m.answer {
		return TypeBrowserLogResult
	}
	return TypeBrowserLog
}

func NewLogAnswer(lines []string, err error) *LogMessage {
	msg := &LogMessage{Lines: lines, Result: media.Classify(err), answer: true}
	if err != nil {
		msg.Reason = err.Error()
	}
	return msg
}

var (
	_ DataInterface = (*ScreenshotMessage)(nil)
	_ DataInterface = (*LogMessage)(nil)
)
