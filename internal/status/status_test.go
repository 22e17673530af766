package status

import "testing"

func TestFromRaw(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"active", StatusActive},
		{"inactive", StatusInactive},
		{"call", StatusCall},
		{"meeting", StatusMeeting},
		{"presenting", StatusPresenting},
		{"dnd", StatusDND},
		{"", StatusUnknown},
		{"ACTIVE", StatusUnknown}, // exact match only
		{"on-a-boat", StatusUnknown},
		{"unknown", StatusUnknown},
	}

	for _, tc := range cases {
		if got := FromRaw(tc.raw); got != tc.want {
			t.Errorf("FromRaw(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestKnown(t *testing.T) {
	for _, s := range known {
		if !Known(s) {
			t.Errorf("Known(%q) = false, want true", s)
		}
	}
	if !Known(StatusUnknown) {
		t.Error("Known(unknown) = false, want true")
	}
	if Known(Status("busy")) {
		t.Error("Known(busy) = true, want false")
	}
}
