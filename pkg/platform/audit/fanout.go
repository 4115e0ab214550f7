package audit

import (
	"context"
	"errors"
)

// Fanout emits every event to each of its emitters. A failing sink does not
// stop the others; their errors are joined.
type Fanout []Emitter

// NewFanout drops nil emitters and returns nil when none remain, so callers
// can pass the result straight to NewLogger.
func NewFanout(emitters ...Emitter) Emitter {
	var out Fanout
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (f Fanout) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
