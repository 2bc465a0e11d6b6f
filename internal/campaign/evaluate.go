package campaign

import "time"

// NextDueStage returns the single next stage that should fire for the
// subject at the given instant, if any. Pure: no I/O, no side effects.
//
// Only the stage at the cursor is ever considered. If the subject sat
// dormant long enough for several offsets to elapse, each stage still
// needs its own tick after the previous one has been recorded as fired.
// That bounds every tick to at most one dispatch per subject and keeps
// the cursor/time relationship auditable.
func NextDueStage(sub Subject, tbl Table, now time.Time) (StageDefinition, bool) {
	if sub.Status.Terminal() {
		return StageDefinition{}, false
	}

	i := sub.StageCursor
	if i < 0 || i >= len(tbl.Stages) {
		// Fully advanced (or corrupt). Caller marks completed.
		return StageDefinition{}, false
	}

	anchor, ok := anchorTime(sub, tbl.Anchor)
	if !ok {
		return StageDefinition{}, false
	}

	if now.Sub(anchor) >= tbl.Stages[i].Offset {
		return tbl.Stages[i], true
	}
	return StageDefinition{}, false
}
