package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/cadence/internal/campaign"
)

// CampaignSubject is the campaign_subjects row: one entity (quote
// request, confirmed booking) enrolled in a staged campaign. The
// scheduler mutates only stage_cursor, status, and last_stage_fired_at,
// and only through the conditional advance.
type CampaignSubject struct {
	ID               uuid.UUID  `json:"id"`
	CampaignType     string     `json:"campaign_type"`
	Status           string     `json:"status"`
	StageCursor      int        `json:"stage_cursor"`
	LastStageFiredAt *time.Time `json:"last_stage_fired_at,omitempty"`
	AppointmentAt    *time.Time `json:"appointment_at,omitempty"`

	CustomerName   string  `json:"customer_name"`
	Email          string  `json:"email,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	ServiceType    string  `json:"service_type,omitempty"`
	ServiceAddress string  `json:"service_address,omitempty"`
	PreferredTime  string  `json:"preferred_time,omitempty"`
	EstimatedPrice float64 `json:"estimated_price,omitempty"`
	Reference      string  `json:"reference,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToCampaign converts the row into the view the scheduler core uses.
func (s *CampaignSubject) ToCampaign() campaign.Subject {
	return campaign.Subject{
		ID:               s.ID,
		CampaignType:     s.CampaignType,
		Status:           campaign.Status(s.Status),
		StageCursor:      s.StageCursor,
		CreatedAt:        s.CreatedAt,
		LastStageFiredAt: s.LastStageFiredAt,
		AppointmentAt:    s.AppointmentAt,
		CustomerName:     s.CustomerName,
		Email:            s.Email,
		Phone:            s.Phone,
		ServiceType:      s.ServiceType,
		ServiceAddress:   s.ServiceAddress,
		PreferredTime:    s.PreferredTime,
		EstimatedPrice:   s.EstimatedPrice,
		Reference:        s.Reference,
	}
}
