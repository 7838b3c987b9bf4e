package media

import (
	"fmt"
	"reflect"
)

type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TimeRanges is the native range-reporting type (buffered, seekable, played).
type TimeRanges interface {
	Len() int
	Start(i int) float64
	End(i int) float64
}

// DecodeTimeRanges converts a native range object into ranges ordered by index.
func DecodeTimeRanges(v any) ([]TimeRange, error) {
	ranges, err := asTimeRanges(v)
	if err != nil {
		return nil, err
	}
	n := ranges.Len()
	result := make([]TimeRange, n)
	// built from the last index down; the result still ends up in index order
	for i := n - 1; i >= 0; i-- {
		result[i] = TimeRange{Start: ranges.Start(i), End: ranges.End(i)}
	}
	return result, nil
}

// asTimeRanges checks that v is a usable range object. A nil pointer
// counts as absent, like an untyped nil.
func asTimeRanges(v any) (TimeRanges, error) {
	if v == nil {
		return nil, &NotTimeRangesError{Reason: "Null"}
	}
	ranges, ok := v.(TimeRanges)
	if !ok {
		return nil, &NotTimeRangesError{Reason: fmt.Sprintf("%T", v)}
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, &NotTimeRangesError{Reason: "Null"}
	}
	return ranges, nil
}

// RangeSlice is a TimeRanges backed by a slice, e.g. the asArray view
// returned by a page.
type RangeSlice []TimeRange

func (r RangeSlice) Len() int            { return len(r) }
func (r RangeSlice) Start(i int) float64 { return r[i].Start }
func (r RangeSlice) End(i int) float64   { return r[i].End }
func (r RangeSlice) AsArray() []TimeRange {
	arr := make([]TimeRange, len(r))
	copy(arr, r)
	return arr
}

var _ TimeRanges = RangeSlice(nil)
var _ RangeArrayer = RangeSlice(nil)
