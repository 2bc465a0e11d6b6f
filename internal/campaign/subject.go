package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Subject is one entity enrolled in a campaign, as seen by the
// scheduler. The scheduler reads everything here and writes only the
// cursor, status, and last-fired timestamp — and those only through the
// store's conditional advance.
type Subject struct {
	ID           uuid.UUID
	CampaignType string
	Status       Status

	// StageCursor counts stages successfully fired so far. It is the
	// sole progress marker and only ever grows by 1 per advance.
	StageCursor int

	CreatedAt        time.Time
	LastStageFiredAt *time.Time

	// AppointmentAt is set for appointment-anchored campaigns only.
	AppointmentAt *time.Time

	// Domain fields the payload builders render from. Owned by the
	// originating entity; read-only here.
	CustomerName   string
	Email          string
	Phone          string
	ServiceType    string
	ServiceAddress string
	PreferredTime  string
	EstimatedPrice float64

	// Reference links rendered content back to the originating quote or
	// booking (e.g. a booking-page URL parameter).
	Reference string
}

// anchorTime resolves the timestamp stage offsets are measured from.
// Returns ok=false when the subject lacks the required anchor field.
func anchorTime(sub Subject, anchor Anchor) (time.Time, bool) {
	switch anchor {
	case AnchorCreation:
		return sub.CreatedAt, true
	case AnchorAppointment:
		if sub.AppointmentAt == nil {
			return time.Time{}, false
		}
		return *sub.AppointmentAt, true
	default:
		return time.Time{}, false
	}
}
