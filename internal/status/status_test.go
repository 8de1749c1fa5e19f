package status_test

import (
	"testing"

	"github.com/NamanBalaji/rangedl/internal/status"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    status.Status
		want string
	}{
		{status.Pending, "Pending"},
		{status.Active, "Active"},
		{status.Completed, "Completed"},
		{status.Failed, "Failed"},
		{status.Cancelled, "Cancelled"},
		{status.Status(99), "Unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", int32(tt.s), got, tt.want)
		}
	}
}

func TestStatusResumable(t *testing.T) {
	if status.Completed.Resumable() {
		t.Errorf("completed downloads must not resume")
	}
	for _, s := range []status.Status{status.Pending, status.Active, status.Failed, status.Cancelled} {
		if !s.Resumable() {
			t.Errorf("%s should be resumable", s)
		}
	}
}
