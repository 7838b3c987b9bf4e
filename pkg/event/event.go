package event

import (
	"encoding/json"
	"fmt"

	"emperror.dev/errors"
)

type DataInterface interface {
	String() string
	Type() EventType
}

func NewEvent(data DataInterface, target string, token string) (*Event, error) {
	jsonStr, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot marshal event data: %v", data)
	}
	return &Event{
		Type:   data.Type(),
		Target: target,
		Token:  token,
		Data:   jsonStr,
	}, nil
}

type Event struct {
	Type   EventType       `json:"type"`
	Source string          `json:"source"`
	Target string          `json:"target"`
	Token  string          `json:"token"`
	Data   json.RawMessage `json:"data"`
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s -> %s", e.Type, e.Source, e.Target)
}

func (e *Event) GetType() EventType {
	return e.Type
}

func (e *Event) GetSource() string {
	return e.Source
}

func (e *Event) GetTarget() string {
	return e.Target
}

func (e *Event) GetToken() string {
	return e.Token
}

// GetData decodes the payload according to the event type.
func (e *Event) GetData() (interface{}, error) {
	switch e.Type {
	case TypeNTPQuery, TypeNTPResponse, TypeNTPError:
		var raw = []byte{}
		if err := json.Unmarshal(e.Data, &raw); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal NTP event: %s", e.Data)
		}
		return raw, nil
	case TypeMediaCommand:
		var msg = &CommandMessage{}
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal media command: %s", e.Data)
		}
		return msg, nil
	case TypeMediaResult:
		var msg = &ResultMessage{}
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal media result: %s", e.Data)
		}
		return msg, nil
	case TypeMediaCanPlayType, TypeMediaCanPlayTypeResult:
		var msg = &CanPlayTypeMessage{}
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal canPlayType message: %s", e.Data)
		}
		return msg, nil
	case TypeMediaState, TypeMediaStateResult:
		var msg = &StateMessage{}
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal state message: %s", e.Data)
		}
		return msg, nil
	case TypeBrowserScreenshot, TypeBrowserScreenshotResult:
		var msg = &ScreenshotMessage{}
		if err := json.Unmarshal(e.Data, msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal screenshot message: %s", e.Data)
		}
		msg.answer = e.Type == TypeBrowserScreenshotResult
		return msg, nil
	case TypeBrowserLog, TypeBrowserLogResult:
		var msg = &LogMessage{}
		if len(e.Data) > 0 && string(e.Data) != "null" {
			if err := json.Unmarshal(e.Data, msg); err != nil {
				return nil, errors.Wrapf(err, "cannot unmarshal log message: %s", e.Data)
			}
		}
		msg.answer = e.Type == TypeBrowserLogResult
		return msg, nil
	default:
		var msg string
		if err := json.Unmarshal(e.Data, &msg); err != nil {
			return nil, errors.Wrapf(err, "cannot unmarshal StringMessage event message: %s", e.Data)
		}
		return msg, nil
	}
}

func NewGenericStringMessage(t EventType, msg string) DataInterface {
	return &GenericStringMessage{
		type_: t,
		msg:   msg,
	}
}

type GenericStringMessage struct {
	type_ EventType
	msg   string
}

func (m *GenericStringMessage) String() string {
	return m.msg
}

func (m *GenericStringMessage) Type() EventType {
	return m.type_
}

func (m *GenericStringMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.msg)
}

var _ DataInterface = (*GenericStringMessage)(nil)
