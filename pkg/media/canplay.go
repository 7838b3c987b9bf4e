package media

import "emperror.dev/errors"

type CanPlay string

const (
	Probably CanPlay = "probably"
	Maybe    CanPlay = "maybe"
	No       CanPlay = "no"
)

// ParseCanPlay maps the answer of HTMLMediaElement.canPlayType.
func ParseCanPlay(answer string) (CanPlay, error) {
	switch answer {
	case "probably":
		return Probably, nil
	case "maybe":
		return Maybe, nil
	case "":
		return No, nil
	default:
		return "", errors.Errorf("unexpected canPlayType answer %q", answer)
	}
}
