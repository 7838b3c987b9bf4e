package event

import (
	"encoding/json"
	"fmt"

	"emperror.dev/errors"
	"github.com/je4/mediaport/pkg/media"
)

// CommandMessage is the tagged wire form of a media command:
// {"tag": "Seek", "id": "v1", "data": 42}
type CommandMessage struct {
	Tag  string          `json:"tag"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

type trackModeData struct {
	TrackNumber *int   `json:"trackNumber"`
	Mode        string `json:"mode"`
}

func (m *CommandMessage) String() string {
	return fmt.Sprintf("%s #%s", m.Tag, m.ID)
}

func (m *CommandMessage) Type() EventType {
	return TypeMediaCommand
}

// Command decodes the message. Tags not known here become media.Unknown.
// A Seek or FastSeek without data is invalid, but an explicit null time
// decodes as 0, the way a page treats currentTime = null.
func (m *CommandMessage) Command() (media.Command, error) {
	switch m.Tag {
	case media.TagPlay:
		return media.Play{ID: m.ID}, nil
	case media.TagPause:
		return media.Pause{ID: m.ID}, nil
	case media.TagLoad:
		return media.Load{ID: m.ID}, nil
	case media.TagSeek, media.TagFastSeek:
		var t float64
		if err := json.Unmarshal(m.Data, &t); err != nil {
			return nil, errors.Wrapf(err, "invalid time for %s: %s", m.Tag, m.Data)
		}
		if m.Tag == media.TagSeek {
			return media.Seek{ID: m.ID, Time: t}, nil
		}
		return media.FastSeek{ID: m.ID, Time: t}, nil
	case media.TagChangeTextTrackMode:
		var data trackModeData
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return nil, errors.Wrapf(err, "invalid text track data: %s", m.Data)
		}
		if data.TrackNumber == nil {
			return nil, errors.Errorf("text track data without trackNumber: %s", m.Data)
		}
		mode, err := media.ParseTrackMode(data.Mode)
		if err != nil {
			return nil, err
		}
		return media.ChangeTextTrackMode{ID: m.ID, TrackNumber: *data.TrackNumber, Mode: mode}, nil
	case media.TagCapture:
		constraints := media.DefaultConstraints
		if len(m.Data) > 0 && string(m.Data) != "null" {
			if err := json.Unmarshal(m.Data, &constraints); err != nil {
				return nil, errors.Wrapf(err, "invalid capture constraints: %s", m.Data)
			}
		}
		return media.Capture{ID: m.ID, Constraints: constraints}, nil
	default:
		return media.Unknown{ID: m.ID, RawTag: m.Tag}, nil
	}
}

// NewCommandMessage builds the wire form of cmd.
func NewCommandMessage(cmd media.Command) (*CommandMessage, error) {
	msg := &CommandMessage{Tag: cmd.Tag(), ID: cmd.TargetID()}
	var data any
	switch c := cmd.(type) {
	case media.Seek:
		data = c.Time
	case media.FastSeek:
		data = c.Time
	case media.ChangeTextTrackMode:
		data = trackModeData{TrackNumber: &c.TrackNumber, Mode: string(c.Mode)}
	case media.Capture:
		data = c.Constraints
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot marshal data of %s", msg)
		}
		msg.Data = raw
	}
	return msg, nil
}

const ResultDecodeError media.ResultKind = "decode-error"

// ResultMessage reports the outcome of one media command.
type ResultMessage struct {
	Tag    string           `json:"tag"`
	ID     string           `json:"id"`
	Result media.ResultKind `json:"result"`
	Kind   string           `json:"kind,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

func (m *ResultMessage) String() string {
	if m.Reason != "" {
		return fmt.Sprintf("%s #%s: %s (%s)", m.Tag, m.ID, m.Result, m.Reason)
	}
	return fmt.Sprintf("%s #%s: %s", m.Tag, m.ID, m.Result)
}

func (m *ResultMessage) Type() EventType {
	return TypeMediaResult
}

// NewResultMessage turns the adapter's answer for tag/id into a result message.
func NewResultMessage(tag, id string, err error) *ResultMessage {
	msg := &ResultMessage{Tag: tag, ID: id, Result: media.Classify(err)}
	if err == nil {
		return msg
	}
	msg.Reason = err.Error()
	var notMedia *media.NotMediaElementError
	var rejected *media.PlayRejectedError
	var capture *media.CaptureFailedError
	switch {
	case errors.As(err, &notMedia):
		msg.Kind = notMedia.Kind
	case errors.As(err, &rejected):
		msg.Reason = rejected.Reason
	case errors.As(err, &capture):
		msg.Reason = capture.Reason
	}
	return msg
}

// CanPlayTypeMessage is both query and answer of a codec support check.
type CanPlayTypeMessage struct {
	ID       string           `json:"id"`
	MimeType string           `json:"mimeType"`
	Answer   media.CanPlay    `json:"answer,omitempty"`
	Result   media.ResultKind `json:"result,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	answer   bool
}

func (m *CanPlayTypeMessage) String() string {
	return fmt.Sprintf("canPlayType #%s %s: %s", m.ID, m.MimeType, m.Answer)
}

func (m *CanPlayTypeMessage) Type() EventType {
	if m.answer {
		return TypeMediaCanPlayTypeResult
	}
	return TypeMediaCanPlayType
}

func NewCanPlayTypeAnswer(id, mimeType string, answer media.CanPlay, err error) *CanPlayTypeMessage {
	msg := &CanPlayTypeMessage{ID: id, MimeType: mimeType, Answer: answer, Result: media.Classify(err), answer: true}
	if err != nil {
		msg.Reason = err.Error()
	}
	return msg
}

// StateMessage is both query and answer of a state request.
type StateMessage struct {
	ID     string           `json:"id"`
	State  *media.State     `json:"state,omitempty"`
	Result media.ResultKind `json:"result,omitempty"`
	Reason string           `json:"reason,omitempty"`
	answer bool
}

func (m *StateMessage) String() string {
	return fmt.Sprintf("state #%s: %s", m.ID, m.Result)
}

func (m *StateMessage) Type() EventType {
	if m.answer {
		return TypeMediaStateResult
	}
	return TypeMediaState
}

func NewStateAnswer(id string, state *media.State, err error) *StateMessage {
	msg := &StateMessage{ID: id, State: state, Result: media.Classify(err), answer: true}
	if err != nil {
		msg.Reason = err.Error()
	}
	return msg
}

var (
	_ DataInterface = (*CommandMessage)(nil)
	_ DataInterface = (*ResultMessage)(nil)
	_ DataInterface = (*CanPlayTypeMessage)(nil)
	_ DataInterface = (*StateMessage)(nil)
)
