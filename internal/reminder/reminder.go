// Package reminder defines the appointment reminder campaign: a single
// SMS stage that fires 24 hours before the booked appointment and
// completes the campaign.
package reminder

import (
	"fmt"
	"time"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// CampaignType identifies booking reminder subjects in the store.
const CampaignType = "booking_reminder"

// StageDayBefore is the only stage.
const StageDayBefore = "day_before"

// Table is the reminder stage table: appointment-anchored, one
// terminal stage at -24h.
func Table() campaign.Table {
	return campaign.Table{
		Type:           CampaignType,
		Anchor:         campaign.AnchorAppointment,
		TerminalStatus: campaign.StatusCompleted,
		Interval:       24 * time.Hour,
		Stages: []campaign.StageDefinition{
			{Index: 0, Name: StageDayBefore, Offset: -24 * time.Hour, Terminal: true},
		},
	}
}

// Builder renders the reminder SMS from booking fields. Pure.
type Builder struct {
	BusinessName  string
	BusinessPhone string
}

// Build renders the reminder. A booking without a phone number can
// never receive an SMS, so that is a permanent failure the domain
// resolves by skipping the subject.
func (b Builder) Build(sub campaign.Subject, stage campaign.StageDefinition) (campaign.RenderedPayload, error) {
	if stage.Name != StageDayBefore {
		return campaign.RenderedPayload{}, campaign.Permanent(fmt.Errorf("unknown reminder stage %q", stage.Name))
	}
	if sub.Phone == "" {
		return campaign.RenderedPayload{}, campaign.Permanent(fmt.Errorf("booking %s has no phone number", sub.ID))
	}

	when := sub.PreferredTime
	if when == "" {
		when = "TBD"
	}

	body := fmt.Sprintf(
		"Hi %s! This is a reminder about your %s appointment tomorrow at %s. Address: %s. Questions? Call %s. - %s",
		sub.CustomerName, sub.ServiceType, when, sub.ServiceAddress, b.BusinessPhone, b.BusinessName,
	)

	return campaign.RenderedPayload{
		Channel: "sms",
		To:      sub.Phone,
		Body:    body,
	}, nil
}
