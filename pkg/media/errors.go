package media

import (
	"fmt"

	"emperror.dev/errors"
)

// ErrNotImplemented is returned by a synthesised capture function when the
// host has neither the modern nor a legacy capture API.
var ErrNotImplemented = errors.NewPlain("getUserMedia is not implemented in this browser")

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node with id #%s not found", e.ID)
}

type NotMediaElementError struct {
	ID   string
	Kind string
}

func (e *NotMediaElementError) Error() string {
	return fmt.Sprintf("node with id #%s is a %s, not a media element", e.ID, e.Kind)
}

type PlayRejectedError struct {
	ID     string
	Reason string
}

func (e *PlayRejectedError) Error() string {
	return fmt.Sprintf("media element with id #%s failed to play because of %s", e.ID, e.Reason)
}

type NotTimeRangesError struct {
	Reason string
}

func (e *NotTimeRangesError) Error() string {
	return fmt.Sprintf("not a time ranges object: %s", e.Reason)
}

type CaptureFailedError struct {
	ID     string
	Reason string
}

func (e *CaptureFailedError) Error() string {
	return fmt.Sprintf("cannot capture into media element with id #%s: %s", e.ID, e.Reason)
}

// ResultKind is the wire name of a command outcome.
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultNotFound        ResultKind = "not-found"
	ResultNotMediaElement ResultKind = "not-media-element"
	ResultPlayRejected    ResultKind = "play-rejected"
	ResultNotTimeRanges   ResultKind = "not-time-ranges"
	ResultCaptureFailed   ResultKind = "capture-failed"
	ResultHostError       ResultKind = "host-error"
)

// Classify maps the error returned by the adapter to its result kind.
func Classify(err error) ResultKind {
	if err == nil {
		return ResultSuccess
	}
	var notFound *NotFoundError
	var notMedia *NotMediaElementError
	var rejected *PlayRejectedError
	var notRanges *NotTimeRangesError
	var capture *CaptureFailedError
	switch {
	case errors.As(err, &notFound):
		return ResultNotFound
	case errors.As(err, &notMedia):
		return ResultNotMediaElement
	case errors.As(err, &rejected):
		return ResultPlayRejected
	case errors.As(err, &notRanges):
		return ResultNotTimeRanges
	case errors.As(err, &capture):
		return ResultCaptureFailed
	default:
		return ResultHostError
	}
}
