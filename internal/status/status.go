// Package status defines the closed presence status enumeration and the
// mapping from raw wire values into it.
package status

// Status is one of a closed set of presence states. Raw values that do not
// match any member reduce to StatusUnknown; mapping never fails.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusCall       Status = "call"
	StatusMeeting    Status = "meeting"
	StatusPresenting Status = "presenting"
	StatusDND        Status = "dnd"
	StatusUnknown    Status = "unknown"
)

// known holds every member of the enumeration except StatusUnknown, which is
// the fallback rather than a wire value.
var known = []Status{
	StatusActive,
	StatusInactive,
	StatusCall,
	StatusMeeting,
	StatusPresenting,
	StatusDND,
}

// FromRaw maps a raw presence value to its enumeration member by exact match.
// Unrecognized values, including the empty string, map to StatusUnknown.
func FromRaw(raw string) Status {
	for _, s := range known {
		if string(s) == raw {
			return s
		}
	}
	return StatusUnknown
}

func (s Status) String() string {
	return string(s)
}

// Known reports whether s is a member of the closed set (unknown included).
func Known(s Status) bool {
	if s == StatusUnknown {
		return true
	}
	for _, k := range known {
		if k == s {
			return true
		}
	}
	return false
}
