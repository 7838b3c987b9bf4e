package media

import "emperror.dev/errors"

// Command is one control message for a media element.
// The set of variants is closed; Unknown carries tags this package does not know.
type Command interface {
	TargetID() string
	Tag() string
	command()
}

type Play struct {
	ID string
}

type Pause struct {
	ID string
}

type Seek struct {
	ID   string
	Time float64
}

type FastSeek struct {
	ID   string
	Time float64
}

type Load struct {
	ID string
}

type ChangeTextTrackMode struct {
	ID          string
	TrackNumber int
	Mode        TrackMode
}

// Capture attaches a capture device stream (camera/microphone) to the element.
type Capture struct {
	ID          string
	Constraints Constraints
}

// Unknown is a command with a tag newer than this implementation.
// Executing it does nothing.
type Unknown struct {
	ID     string
	RawTag string
}

func (c Play) TargetID() string                { return c.ID }
func (c Pause) TargetID() string               { return c.ID }
func (c Seek) TargetID() string                { return c.ID }
func (c FastSeek) TargetID() string            { return c.ID }
func (c Load) TargetID() string                { return c.ID }
func (c ChangeTextTrackMode) TargetID() string { return c.ID }
func (c Capture) TargetID() string             { return c.ID }
func (c Unknown) TargetID() string             { return c.ID }

const (
	TagPlay                = "Play"
	TagPause               = "Pause"
	TagSeek                = "Seek"
	TagFastSeek            = "FastSeek"
	TagLoad                = "Load"
	TagChangeTextTrackMode = "ChangeTextTrackMode"
	TagCapture             = "Capture"
)

func (Play) Tag() string                { return TagPlay }
func (Pause) Tag() string               { return TagPause }
func (Seek) Tag() string                { return TagSeek }
func (FastSeek) Tag() string            { return TagFastSeek }
func (Load) Tag() string                { return TagLoad }
func (ChangeTextTrackMode) Tag() string { return TagChangeTextTrackMode }
func (Capture) Tag() string             { return TagCapture }
func (c Unknown) Tag() string           { return c.RawTag }

func (Play) command()                {}
func (Pause) command()               {}
func (Seek) command()                {}
func (FastSeek) command()            {}
func (Load) command()                {}
func (ChangeTextTrackMode) command() {}
func (Capture) command()             {}
func (Unknown) command()             {}

type TrackMode string

const (
	TrackDisabled TrackMode = "disabled"
	TrackHidden   TrackMode = "hidden"
	TrackShowing  TrackMode = "showing"
)

func ParseTrackMode(s string) (TrackMode, error) {
	switch m := TrackMode(s); m {
	case TrackDisabled, TrackHidden, TrackShowing:
		return m, nil
	default:
		return "", errors.Errorf("invalid text track mode %q", s)
	}
}

// Constraints selects the capture devices requested for a Capture command.
type Constraints struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

var DefaultConstraints = Constraints{Audio: true, Video: true}
