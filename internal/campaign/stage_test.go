package campaign

import (
	"testing"
	"time"
)

func validTable() Table {
	return Table{
		Type:           "quote_follow_up",
		Anchor:         AnchorCreation,
		TerminalStatus: StatusExpired,
		Interval:       24 * time.Hour,
		Stages: []StageDefinition{
			{Index: 0, Name: "day1", Offset: 24 * time.Hour},
			{Index: 1, Name: "day3", Offset: 72 * time.Hour},
			{Index: 2, Name: "day7", Offset: 168 * time.Hour},
			{Index: 3, Name: "day14", Offset: 336 * time.Hour, Terminal: true},
		},
	}
}

func TestTableValidate_OK(t *testing.T) {
	if err := validTable().Validate(); err != nil {
		t.Fatalf("expected valid table, got: %v", err)
	}
}

func TestTableValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Table)
	}{
		{"empty_stages", func(tbl *Table) { tbl.Stages = nil }},
		{"missing_type", func(tbl *Table) { tbl.Type = "" }},
		{"bad_anchor", func(tbl *Table) { tbl.Anchor = "lunar" }},
		{"skipped_terminal_status", func(tbl *Table) { tbl.TerminalStatus = StatusSkipped }},
		{"active_terminal_status", func(tbl *Table) { tbl.TerminalStatus = StatusActive }},
		{"non_contiguous_index", func(tbl *Table) { tbl.Stages[2].Index = 5 }},
		{"non_monotonic_offsets", func(tbl *Table) { tbl.Stages[1].Offset = 24 * time.Hour }},
		{"decreasing_offsets", func(tbl *Table) { tbl.Stages[2].Offset = 48 * time.Hour }},
		{"negative_offset_creation_anchor", func(tbl *Table) { tbl.Stages[0].Offset = -time.Hour }},
		{"terminal_not_last", func(tbl *Table) { tbl.Stages[1].Terminal = true }},
		{"last_not_terminal", func(tbl *Table) { tbl.Stages[3].Terminal = false }},
		{"missing_stage_name", func(tbl *Table) { tbl.Stages[0].Name = "" }},
		{"negative_interval", func(tbl *Table) { tbl.Interval = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := validTable()
			tt.mutate(&tbl)
			if err := tbl.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestTableValidate_NegativeOffsetAllowedForAppointmentAnchor(t *testing.T) {
	tbl := Table{
		Type:           "booking_reminder",
		Anchor:         AnchorAppointment,
		TerminalStatus: StatusCompleted,
		Stages: []StageDefinition{
			{Index: 0, Name: "day_before", Offset: -24 * time.Hour, Terminal: true},
		},
	}
	if err := tbl.Validate(); err != nil {
		t.Fatalf("expected valid table, got: %v", err)
	}
}

func TestNewRegistry_RejectsDuplicateAndInvalid(t *testing.T) {
	if _, err := NewRegistry(validTable(), validTable()); err == nil {
		t.Fatal("expected duplicate type error")
	}

	bad := validTable()
	bad.Stages[0].Offset = 500 * time.Hour
	if _, err := NewRegistry(bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(validTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := reg.Table("quote_follow_up"); !ok {
		t.Error("expected quote_follow_up to be registered")
	}
	if _, ok := reg.Table("unknown"); ok {
		t.Error("expected unknown type to be absent")
	}
	if got := reg.Types(); len(got) != 1 || got[0] != "quote_follow_up" {
		t.Errorf("unexpected types: %v", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, false},
		{StatusCompleted, true},
		{StatusExpired, true},
		{StatusSkipped, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
