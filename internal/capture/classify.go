package capture

import "strings"

// FailureKind is the coarse reason a capture attempt failed
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureBusy
	FailureFormat
)

func (k FailureKind) String() string {
	switch k {
	case FailureBusy:
		return "busy"
	case FailureFormat:
		return "format"
	default:
		return "other"
	}
}

var (
	busyMarkers   = []string{"Device or resource busy"}
	formatMarkers = []string{"Invalid argument", "VIDIOC_REQBUFS"}
)

// Classify maps capture tool diagnostics to a FailureKind. It only matches on text, so
// it is the one place to change when the tool's wording changes.
func Classify(diagnostic string) FailureKind {
	for _, m := range busyMarkers {
		if strings.Contains(diagnostic, m) {
			return FailureBusy
		}
	}
	for _, m := range formatMarkers {
		if strings.Contains(diagnostic, m) {
			return FailureFormat
		}
	}
	return FailureOther
}
