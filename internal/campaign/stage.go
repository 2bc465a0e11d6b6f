// Package campaign implements the staged notification state machine:
// stage tables, the eligibility evaluator, and the advancer that turns
// "a stage is due" into "a stage was fired exactly once".
package campaign

import (
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle state of a campaign subject.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether a subject in this status is done with the
// campaign. Terminal subjects are excluded from every future scan.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusSkipped
}

// Anchor selects which subject timestamp stage offsets are measured from.
type Anchor string

const (
	// AnchorCreation measures offsets from the subject's created_at.
	AnchorCreation Anchor = "creation"
	// AnchorAppointment measures offsets from the subject's appointment
	// time. Offsets may be negative (e.g. -24h for a day-before reminder).
	AnchorAppointment Anchor = "appointment"
)

// StageDefinition is one step of a campaign: when it becomes eligible
// relative to the anchor, and whether firing it ends the campaign.
type StageDefinition struct {
	Index    int
	Name     string
	Offset   time.Duration
	Terminal bool
}

// Table is the immutable, ordered stage list for one campaign type.
// Loaded once at startup and never mutated afterwards.
type Table struct {
	Type   string
	Anchor Anchor

	// TerminalStatus is the status written when the terminal stage fires:
	// Expired for lapse-style campaigns, Completed for reminders.
	TerminalStatus Status

	// Interval is the default tick cadence for this campaign type.
	Interval time.Duration

	Stages []StageDefinition
}

// Len returns the number of stages.
func (t Table) Len() int { return len(t.Stages) }

// Validate checks the structural invariants of the stage list. A table
// that fails validation must stop the process before any tick runs.
func (t Table) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("campaign table missing type")
	}
	if len(t.Stages) == 0 {
		return fmt.Errorf("campaign %q: empty stage list", t.Type)
	}
	if t.Anchor != AnchorCreation && t.Anchor != AnchorAppointment {
		return fmt.Errorf("campaign %q: unknown anchor %q", t.Type, t.Anchor)
	}
	if !t.TerminalStatus.Terminal() || t.TerminalStatus == StatusSkipped {
		return fmt.Errorf("campaign %q: terminal status must be completed or expired, got %q", t.Type, t.TerminalStatus)
	}
	if t.Interval < 0 {
		return fmt.Errorf("campaign %q: negative interval", t.Type)
	}

	for i, stage := range t.Stages {
		if stage.Index != i {
			return fmt.Errorf("campaign %q: stage %d has index %d, indexes must be contiguous from 0", t.Type, i, stage.Index)
		}
		if stage.Name == "" {
			return fmt.Errorf("campaign %q: stage %d missing name", t.Type, i)
		}
		if i > 0 && stage.Offset <= t.Stages[i-1].Offset {
			return fmt.Errorf("campaign %q: stage %d offset %s not after stage %d offset %s",
				t.Type, i, stage.Offset, i-1, t.Stages[i-1].Offset)
		}
		if t.Anchor == AnchorCreation && stage.Offset < 0 {
			return fmt.Errorf("campaign %q: stage %d has negative offset with creation anchor", t.Type, i)
		}

		last := i == len(t.Stages)-1
		if stage.Terminal && !last {
			return fmt.Errorf("campaign %q: stage %d is terminal but not last", t.Type, i)
		}
		if last && !stage.Terminal {
			return fmt.Errorf("campaign %q: final stage %d must be terminal", t.Type, i)
		}
	}

	return nil
}

// Registry is the immutable set of campaign tables the process runs,
// keyed by campaign type.
type Registry struct {
	tables map[string]Table
}

// NewRegistry validates every table and builds the lookup. Any
// validation failure is a configuration error and aborts startup.
func NewRegistry(tables ...Table) (*Registry, error) {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m[t.Type]; dup {
			return nil, fmt.Errorf("duplicate campaign table %q", t.Type)
		}
		m[t.Type] = t
	}
	return &Registry{tables: m}, nil
}

// Table returns the stage table for a campaign type.
func (r *Registry) Table(campaignType string) (Table, bool) {
	t, ok := r.tables[campaignType]
	return t, ok
}

// Types returns the registered campaign types in stable order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.tables))
	for k := range r.tables {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}
