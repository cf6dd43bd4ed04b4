package booking

import (
	"errors"
	"testing"
)

func TestLegalActionsTable(t *testing.T) {
	cases := []struct {
		status Status
		want   []Action
	}{
		{StatusPending, []Action{ActionAdvance, ActionCancel}},
		{StatusDiproses, []Action{ActionAdvance, ActionCancel}},
		{StatusSelesai, nil},
		{StatusDibatalkan, nil},
	}
	for _, tc := range cases {
		got := LegalActions(tc.status)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: want %d actions, got %d", tc.status, len(tc.want), len(got))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: action %d: want %s got %s", tc.status, i, tc.want[i], got[i])
			}
		}
	}
}

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		want   Status
	}{
		{StatusPending, ActionAdvance, StatusDiproses},
		{StatusPending, ActionCancel, StatusDibatalkan},
		{StatusDiproses, ActionAdvance, StatusSelesai},
		{StatusDiproses, ActionCancel, StatusDibatalkan},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.action)
		if err != nil {
			t.Fatalf("%s + %s: unexpected error %v", tc.from, tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("%s + %s: want %s got %s", tc.from, tc.action, tc.want, got)
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, status := range []Status{StatusSelesai, StatusDibatalkan} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
		for _, action := range []Action{ActionAdvance, ActionCancel} {
			_, err := Next(status, action)
			var illegal *IllegalTransitionError
			if !errors.As(err, &illegal) {
				t.Fatalf("%s + %s: want IllegalTransitionError, got %v", status, action, err)
			}
			if illegal.Status != status || illegal.Action != action {
				t.Fatalf("error carries wrong detail: %+v", illegal)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"Pending", "Diproses", "Selesai", "Dibatalkan"} {
		if _, err := ParseStatus(raw); err != nil {
			t.Fatalf("ParseStatus(%q): %v", raw, err)
		}
	}
	if _, err := ParseStatus("Shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
