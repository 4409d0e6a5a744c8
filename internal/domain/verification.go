package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Party roles inside a transaction (uploader roles add AGENT).
const (
	PartyBuyer  = "BUYER"
	PartySeller = "SELLER"
	PartyAgent  = "AGENT"
)

// Field verification protocol steps, in order. The attempt is immutable once
// CompletedAt is set (step APPROVED or REJECTED).
const (
	StepLocationCheck = "LOCATION_CHECK"
	StepOTPExchange   = "OTP_EXCHANGE"
	StepChecklist     = "CHECKLIST"
	StepFinalReview   = "FINAL_REVIEW"
	StepApproved      = "APPROVED"
	StepRejected      = "REJECTED"
)

// ChecklistItems is the fixed inspection list an agent fills during the visit.
// No item is individually mandatory; an incomplete checklist is surfaced as a
// warning in the final review, never a block.
var ChecklistItems = []string{
	"property_exists",
	"exterior_matches_photos",
	"interior_matches_photos",
	"access_confirmed",
	"no_legal_notices",
	"safe_environment",
}

type VerificationAttempt struct {
	AttemptID     uuid.UUID `gorm:"column:attempt_id;type:uuid;primaryKey" json:"attempt_id"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;index" json:"transaction_id"`
	AgentID       uuid.UUID `gorm:"column:agent_id;type:uuid;not null" json:"agent_id"`
	PartyRole     string    `gorm:"column:party_role;type:varchar(10);not null" json:"party_role"`
	Step          string    `gorm:"column:step;type:varchar(20);default:'LOCATION_CHECK'" json:"step"`

	GpsLat       *float64 `gorm:"column:gps_lat;type:decimal(10,7)" json:"gps_lat"`
	GpsLng       *float64 `gorm:"column:gps_lng;type:decimal(10,7)" json:"gps_lng"`
	GpsDistanceM *float64 `gorm:"column:gps_distance_m;type:decimal(10,2)" json:"gps_distance_m"`
	GpsPassed    bool     `gorm:"column:gps_passed;default:false" json:"gps_passed"`
	// True when the property has no registered coordinates and the location
	// step was skipped rather than measured.
	GpsSkipped bool `gorm:"column:gps_skipped;default:false" json:"gps_skipped"`

	OtpVerifiedAt *time.Time `gorm:"column:otp_verified_at" json:"otp_verified_at"`

	Checklist datatypes.JSON `gorm:"column:checklist;type:json" json:"checklist"`

	Approved        bool       `gorm:"column:approved;default:false" json:"approved"`
	RejectionReason string     `gorm:"column:rejection_reason" json:"rejection_reason"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at"`
	// Set when the transaction consumed this attempt, so one attempt cannot
	// be replayed into recordPartyVerification twice.
	ConsumedAt *time.Time `gorm:"column:consumed_at" json:"consumed_at"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (VerificationAttempt) TableName() string {
	return "VerificationAttempts"
}

func (v *VerificationAttempt) BeforeCreate(tx *gorm.DB) error {
	if v.AttemptID == uuid.Nil {
		v.AttemptID = uuid.New()
	}
	return nil
}

// Completed reports whether the attempt reached a final decision.
func (v *VerificationAttempt) Completed() bool {
	return v.CompletedAt != nil
}
