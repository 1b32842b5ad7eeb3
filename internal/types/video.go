package types

import (
	"fmt"
	"time"
)

// endClampTolerance absorbs container rounding between what the model sees and
// what ffprobe reports.
const endClampTolerance = 0.5

// Duration is a video length that may be unknown when probing failed.
type Duration struct {
	Seconds float64 `json:"seconds"`
	Known   bool    `json:"known"`
}

func KnownDuration(seconds float64) Duration {
	return Duration{Seconds: seconds, Known: true}
}

func UnknownDuration() Duration {
	return Duration{}
}

func (d Duration) String() string {
	if !d.Known {
		return "unknown"
	}
	return fmt.Sprintf("%.1fs", d.Seconds)
}

// VideoAsset is an uploaded source video.
type VideoAsset struct {
	Id           string    `json:"id"`
	Path         string    `json:"path"`
	OriginalName string    `json:"original_name"`
	Duration     Duration  `json:"duration"`
	Probed       bool      `json:"probed"`
	ProbeError   string    `json:"probe_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CutRange is a [Start, End) window in seconds that is kept in the output.
type CutRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r CutRange) Length() float64 {
	return r.End - r.Start
}

func (r CutRange) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", r.Start, r.End)
}

// Validate checks 0 <= start < end <= duration. An unknown duration leaves the
// upper bound unchecked. An end that overshoots a known duration by no more
// than endClampTolerance is clamped and returned.
func (r CutRange) Validate(d Duration) (CutRange, error) {
	if r.Start < 0 {
		return r, fmt.Errorf("start %.3f is negative", r.Start)
	}
	if r.End <= r.Start {
		return r, fmt.Errorf("end %.3f is not after start %.3f", r.End, r.Start)
	}
	if !d.Known {
		return r, nil
	}
	if r.Start >= d.Seconds {
		return r, fmt.Errorf("start %.3f is beyond duration %.3f", r.Start, d.Seconds)
	}
	if r.End > d.Seconds {
		if r.End-d.Seconds > endClampTolerance {
			return r, fmt.Errorf("end %.3f exceeds duration %.3f", r.End, d.Seconds)
		}
		r.End = d.Seconds
	}
	return r, nil
}

// Timeline is an immutable ordered sequence of cut ranges. Its order is the
// playback order of the assembled output; nothing downstream reorders or
// deduplicates it.
type Timeline struct {
	ranges []CutRange
}

func NewTimeline(ranges ...CutRange) Timeline {
	return Timeline{ranges: append([]CutRange(nil), ranges...)}
}

func (t Timeline) Len() int {
	return len(t.ranges)
}

func (t Timeline) At(i int) CutRange {
	return t.ranges[i]
}

// Ranges returns a copy of the ranges in playback order.
func (t Timeline) Ranges() []CutRange {
	return append([]CutRange(nil), t.ranges...)
}

// Total is the summed length of all ranges.
func (t Timeline) Total() float64 {
	var total float64
	for _, r := range t.ranges {
		total += r.Length()
	}
	return total
}
