package media

import (
	"context"
	"sync"

	"emperror.dev/errors"
)

// SynthesizeUserMedia returns modern if the host has it. Otherwise the
// legacy callback API is wrapped so each call resolves exactly once; the
// first callback wins and later ones are dropped. Without either API every
// call fails with ErrNotImplemented.
func SynthesizeUserMedia(modern UserMediaFunc, legacy LegacyUserMediaFunc) UserMediaFunc {
	if modern != nil {
		return modern
	}
	if legacy == nil {
		return func(context.Context, Constraints) (Stream, error) {
			return nil, ErrNotImplemented
		}
	}
	return func(ctx context.Context, c Constraints) (Stream, error) {
		type outcome struct {
			stream Stream
			err    error
		}
		done := make(chan outcome, 1)
		var once sync.Once
		resolve := func(o outcome) {
			once.Do(func() { done <- o })
		}
		legacy(c,
			func(s Stream) { resolve(outcome{stream: s}) },
			func(err error) {
				if err == nil {
					err = errors.New("capture rejected without reason")
				}
				resolve(outcome{err: err})
			},
		)
		select {
		case o := <-done:
			return o.stream, o.err
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for capture device")
		}
	}
}
