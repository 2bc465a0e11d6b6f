package quote

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/cadence/internal/campaign"
)

func testBuilder() Builder {
	return Builder{
		BookingBaseURL: "https://example.com",
		BusinessName:   "StoneRiver Junk Removal",
		BusinessPhone:  "(612) 555-0142",
	}
}

func testSubject() campaign.Subject {
	return campaign.Subject{
		ID:             uuid.New(),
		CampaignType:   CampaignType,
		Status:         campaign.StatusActive,
		CreatedAt:      time.Now(),
		CustomerName:   "Dana",
		Email:          "dana@example.com",
		ServiceType:    "junk removal",
		EstimatedPrice: 250,
		Reference:      "q-1234",
	}
}

func TestTableIsValid(t *testing.T) {
	if err := Table().Validate(); err != nil {
		t.Fatalf("quote table invalid: %v", err)
	}
}

func TestTableShape(t *testing.T) {
	tbl := Table()
	if tbl.Len() != 4 {
		t.Fatalf("stages = %d, want 4", tbl.Len())
	}
	if tbl.TerminalStatus != campaign.StatusExpired {
		t.Errorf("terminal status = %s, want expired", tbl.TerminalStatus)
	}
	wantOffsets := []time.Duration{24 * time.Hour, 72 * time.Hour, 168 * time.Hour, 336 * time.Hour}
	for i, s := range tbl.Stages {
		if s.Offset != wantOffsets[i] {
			t.Errorf("stage %d offset = %s, want %s", i, s.Offset, wantOffsets[i])
		}
	}
	if !tbl.Stages[3].Terminal {
		t.Error("day14 must be terminal")
	}
}

func TestBuild_RendersEachStage(t *testing.T) {
	b := testBuilder()
	sub := testSubject()

	tests := []struct {
		stage        string
		wantSubject  string
		wantInBody   []string
	}{
		{StageDay1, "Thanks for Your Quote Request!", []string{"Dana", "$250.00", "quote=q-1234"}},
		{StageDay3, "Still Need Help with Junk Removal?", []string{"haven't booked", "$250.00"}},
		{StageDay7, "Special Offer: 10% Off Your junk removal", []string{"$225.00", "discount=10"}},
		{StageDay14, "Last Chance: Your Quote is About to Expire", []string{"final reminder", "$250.00"}},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			stage := stageByName(t, tt.stage)
			payload, err := b.Build(sub, stage)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.Channel != "email" {
				t.Errorf("channel = %s, want email", payload.Channel)
			}
			if payload.To != sub.Email {
				t.Errorf("to = %s, want %s", payload.To, sub.Email)
			}
			if payload.Subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", payload.Subject, tt.wantSubject)
			}
			for _, frag := range tt.wantInBody {
				if !strings.Contains(payload.Body, frag) {
					t.Errorf("body missing %q", frag)
				}
			}
		})
	}
}

func TestBuild_MissingEmailIsPermanent(t *testing.T) {
	sub := testSubject()
	sub.Email = ""

	_, err := testBuilder().Build(sub, stageByName(t, StageDay1))
	if err == nil || !campaign.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestBuild_UnknownStageIsPermanent(t *testing.T) {
	_, err := testBuilder().Build(testSubject(), campaign.StageDefinition{Index: 9, Name: "day90"})
	if err == nil || !campaign.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func stageByName(t *testing.T, name string) campaign.StageDefinition {
	t.Helper()
	for _, s := range Table().Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no stage %q", name)
	return campaign.StageDefinition{}
}
