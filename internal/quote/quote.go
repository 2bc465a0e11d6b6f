// Package quote defines the quote follow-up campaign: four email
// stages at 1, 3, 7, and 14 days after the quote request, with the
// final stage expiring the quote.
package quote

import (
	"fmt"
	"time"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// CampaignType identifies quote follow-up subjects in the store.
const CampaignType = "quote_follow_up"

// DiscountPercent is the limited-time offer attached to the day-7 stage.
const DiscountPercent = 10

// Stage names, by index.
const (
	StageDay1  = "day1"
	StageDay3  = "day3"
	StageDay7  = "day7"
	StageDay14 = "day14"
)

// Table is the quote follow-up stage table. Offsets are measured from
// the quote request's creation; the day-14 stage expires the quote.
func Table() campaign.Table {
	return campaign.Table{
		Type:           CampaignType,
		Anchor:         campaign.AnchorCreation,
		TerminalStatus: campaign.StatusExpired,
		Interval:       24 * time.Hour,
		Stages: []campaign.StageDefinition{
			{Index: 0, Name: StageDay1, Offset: 24 * time.Hour},
			{Index: 1, Name: StageDay3, Offset: 3 * 24 * time.Hour},
			{Index: 2, Name: StageDay7, Offset: 7 * 24 * time.Hour},
			{Index: 3, Name: StageDay14, Offset: 14 * 24 * time.Hour, Terminal: true},
		},
	}
}

// Builder renders follow-up emails from quote fields. Pure.
type Builder struct {
	// BookingBaseURL is the public booking page; stage links carry the
	// quote reference so the booking form can pre-fill.
	BookingBaseURL string
	BusinessName   string
	BusinessPhone  string
}

// Build renders the email for one stage. A quote with no email address
// cannot ever succeed, so that is a permanent failure.
func (b Builder) Build(sub campaign.Subject, stage campaign.StageDefinition) (campaign.RenderedPayload, error) {
	if sub.Email == "" {
		return campaign.RenderedPayload{}, campaign.Permanent(fmt.Errorf("quote %s has no email address", sub.ID))
	}

	bookURL := fmt.Sprintf("%s/booking?quote=%s", b.BookingBaseURL, sub.Reference)

	var subject, body string
	switch stage.Name {
	case StageDay1:
		subject = "Thanks for Your Quote Request!"
		body = fmt.Sprintf(
			`<h2>Hi %s!</h2>
<p>Thank you for requesting a quote from %s.</p>
<p><strong>Your Estimated Price: $%.2f</strong></p>
<p>We're ready to help you reclaim your space! Click below to book your service:</p>
<p><a href="%s">Book Now</a></p>
<p>Questions? Call us at %s</p>`,
			sub.CustomerName, b.BusinessName, sub.EstimatedPrice, bookURL, b.BusinessPhone,
		)
	case StageDay3:
		subject = "Still Need Help with Junk Removal?"
		body = fmt.Sprintf(
			`<h2>Hi %s,</h2>
<p>We noticed you haven't booked your %s service yet. We're here to help!</p>
<p><strong>Your Quote: $%.2f</strong></p>
<p><a href="%s">Book Your Service</a></p>`,
			sub.CustomerName, sub.ServiceType, sub.EstimatedPrice, bookURL,
		)
	case StageDay7:
		discounted := sub.EstimatedPrice * (1 - float64(DiscountPercent)/100)
		subject = fmt.Sprintf("Special Offer: %d%% Off Your %s", DiscountPercent, sub.ServiceType)
		body = fmt.Sprintf(
			`<h2>Hi %s,</h2>
<p><strong>Limited Time Offer: Save %d%% on your %s!</strong></p>
<p>Original Quote: <s>$%.2f</s></p>
<p><strong>Your Price: $%.2f</strong></p>
<p>This offer expires in 7 days. Don't miss out!</p>
<p><a href="%s&discount=%d">Claim Your Discount</a></p>`,
			sub.CustomerName, DiscountPercent, sub.ServiceType, sub.EstimatedPrice, discounted, bookURL, DiscountPercent,
		)
	case StageDay14:
		subject = "Last Chance: Your Quote is About to Expire"
		body = fmt.Sprintf(
			`<h2>Hi %s,</h2>
<p>This is our final reminder about your %s quote.</p>
<p>Your quote of <strong>$%.2f</strong> will expire soon.</p>
<p>If you're still interested, we'd love to help you. If not, no worries - we'll remove you from our follow-up list.</p>
<p><a href="%s">Book Now</a></p>`,
			sub.CustomerName, sub.ServiceType, sub.EstimatedPrice, bookURL,
		)
	default:
		return campaign.RenderedPayload{}, campaign.Permanent(fmt.Errorf("unknown quote follow-up stage %q", stage.Name))
	}

	return campaign.RenderedPayload{
		Channel: "email",
		To:      sub.Email,
		Subject: subject,
		Body:    body,
	}, nil
}
