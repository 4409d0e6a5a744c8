// Package verification implements the agent-led field check of one party to a
// transaction: a GPS proximity gate, an in-person OTP exchange, an
// informational inspection checklist and a final approve/reject decision. The
// buyer-side and seller-side flows are independent and may run as two parallel
// agent sessions.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nestfind-backend/internal/domain"
	"nestfind-backend/internal/pkg/geo"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB     *gorm.DB
	OTP    *OTPStore
	Sender OTPSender
	// Maximum agent distance from the property's registered coordinates.
	RadiusM float64
}

// Get returns an attempt by id.
func (s *Service) Get(ctx context.Context, attemptID uuid.UUID) (*domain.VerificationAttempt, error) {
	var a domain.VerificationAttempt
	if err := s.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&a).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &domain.NotFoundError{Resource: "verification attempt"}
		}
		return nil, err
	}
	return &a, nil
}

// Start opens a verification attempt for one party. If an in-flight attempt
// already exists for the same party it is returned instead of duplicated.
// Properties without registered coordinates skip the location step: that step
// is a proximity aid, not a security gate, when there is nothing to measure
// against.
func (s *Service) Start(ctx context.Context, txID, agentID uuid.UUID, partyRole string) (*domain.VerificationAttempt, error) {
	if partyRole != domain.PartyBuyer && partyRole != domain.PartySeller {
		return nil, &domain.ValidationError{Field: "party_role", Reason: "must be BUYER or SELLER"}
	}

	var out *domain.VerificationAttempt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Transaction
		if err := tx.Where("tx_id = ?", txID).First(&t).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "transaction"}
			}
			return err
		}
		if t.Status != domain.TxSlotBooked && !t.PartiallyVerified() {
			return &domain.InvalidStateError{Action: "start verification", From: t.Status}
		}
		if (partyRole == domain.PartyBuyer && t.BuyerVerifiedAt != nil) ||
			(partyRole == domain.PartySeller && t.SellerVerifiedAt != nil) {
			return &domain.InvalidStateError{Action: "start verification", From: "party already verified"}
		}

		var existing domain.VerificationAttempt
		err := tx.Where("transaction_id = ? AND party_role = ? AND completed_at IS NULL", txID, partyRole).
			First(&existing).Error
		if err == nil {
			out = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		var prop domain.Property
		if err := tx.Where("property_id = ?", t.PropertyID).First(&prop).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "property"}
			}
			return err
		}

		a := domain.VerificationAttempt{
			TransactionID: txID,
			AgentID:       agentID,
			PartyRole:     partyRole,
			Step:          domain.StepLocationCheck,
		}
		if prop.Latitude == nil || prop.Longitude == nil {
			a.GpsSkipped = true
			a.Step = domain.StepOTPExchange
		}
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		out = &a
		return nil
	})
	return out, err
}

// SubmitLocation records one GPS sample from the agent's device. Passing
// (distance within radius) advances to the OTP exchange; failing reports the
// measured distance and leaves the step open for re-sampling, with no attempt
// limit.
func (s *Service) SubmitLocation(ctx context.Context, attemptID uuid.UUID, lat, lng float64) (*domain.VerificationAttempt, error) {
	var out *domain.VerificationAttempt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.loadMutable(tx, attemptID)
		if err != nil {
			return err
		}
		if a.Step != domain.StepLocationCheck {
			return &domain.InvalidStateError{Action: "submit location", From: a.Step}
		}

		var prop domain.Property
		if err := tx.
			Joins("JOIN \"Transactions\" t ON t.property_id = \"Properties\".property_id").
			Where("t.tx_id = ?", a.TransactionID).
			First(&prop).Error; err != nil {
			return err
		}

		// Coordinates can disappear after Start if a listing edit clears them;
		// without a reference point there is nothing to measure against.
		if prop.Latitude == nil || prop.Longitude == nil {
			return &domain.PreconditionFailedError{Reason: "property has no registered coordinates to measure against"}
		}

		dist := geo.DistanceMeters(lat, lng, *prop.Latitude, *prop.Longitude)
		a.GpsLat = &lat
		a.GpsLng = &lng
		a.GpsDistanceM = &dist

		if dist > s.RadiusM {
			if err := tx.Save(a).Error; err != nil {
				return err
			}
			return &domain.PreconditionFailedError{
				Reason: fmt.Sprintf("agent is %.0fm from the property, beyond the %.0fm radius", dist, s.RadiusM),
			}
		}

		a.GpsPassed = true
		a.Step = domain.StepOTPExchange
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// RequestOTP issues a fresh code for the party and hands it to the delivery
// collaborator. Re-requesting replaces the previous code and resets the
// attempt counter.
func (s *Service) RequestOTP(ctx context.Context, attemptID uuid.UUID) (*domain.VerificationAttempt, error) {
	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Completed() {
		return nil, &domain.InvalidStateError{Action: "request OTP", From: a.Step}
	}
	if a.Step != domain.StepOTPExchange {
		return nil, &domain.InvalidStateError{Action: "request OTP", From: a.Step}
	}

	code, err := s.OTP.Issue(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.Sender.Send(ctx, attemptID, a.PartyRole, code); err != nil {
		return nil, err
	}
	return a, nil
}

// VerifyOTP checks the code the party handed to the agent in person. A wrong
// code stays on the OTP step with an error; a correct one advances to the
// checklist. Re-verifying an already-verified attempt is a no-op success.
func (s *Service) VerifyOTP(ctx context.Context, attemptID uuid.UUID, code string) (*domain.VerificationAttempt, error) {
	var out *domain.VerificationAttempt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.loadMutable(tx, attemptID)
		if err != nil {
			return err
		}
		if a.OtpVerifiedAt != nil {
			out = a
			return nil
		}
		if a.Step != domain.StepOTPExchange {
			return &domain.InvalidStateError{Action: "verify OTP", From: a.Step}
		}
		if err := s.OTP.Check(ctx, attemptID, code); err != nil {
			return err
		}

		now := time.Now()
		a.OtpVerifiedAt = &now
		a.Step = domain.StepChecklist
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// UpdateChecklist stores the agent's inspection toggles. Unknown items are
// dropped. The checklist is informational: saving it moves the attempt to the
// final review, but completeness is never enforced.
func (s *Service) UpdateChecklist(ctx context.Context, attemptID uuid.UUID, items map[string]bool) (*domain.VerificationAttempt, error) {
	var out *domain.VerificationAttempt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.loadMutable(tx, attemptID)
		if err != nil {
			return err
		}
		if a.Step != domain.StepChecklist && a.Step != domain.StepFinalReview {
			return &domain.InvalidStateError{Action: "update checklist", From: a.Step}
		}

		known := make(map[string]bool, len(domain.ChecklistItems))
		for _, item := range domain.ChecklistItems {
			if v, ok := items[item]; ok {
				known[item] = v
			}
		}
		b, err := json.Marshal(known)
		if err != nil {
			return err
		}
		a.Checklist = datatypes.JSON(b)
		a.Step = domain.StepFinalReview
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// Finalize records the agent's decision. Approve is refused at this boundary
// (not merely in UI) unless the location and OTP checks both passed; reject
// needs a non-empty reason and is allowed regardless of checklist state. The
// attempt is immutable afterwards. Returned warnings surface an incomplete
// checklist without blocking either decision.
func (s *Service) Finalize(ctx context.Context, attemptID uuid.UUID, approve bool, reason string) (*domain.VerificationAttempt, []string, error) {
	var (
		out      *domain.VerificationAttempt
		warnings []string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.loadMutable(tx, attemptID)
		if err != nil {
			return err
		}

		if approve {
			if !(a.GpsPassed || a.GpsSkipped) || a.OtpVerifiedAt == nil {
				return &domain.PreconditionFailedError{Reason: "location and OTP checks must both pass before approval"}
			}
			a.Step = domain.StepApproved
			a.Approved = true
		} else {
			if reason == "" {
				return &domain.ValidationError{Field: "rejection_reason", Reason: "required"}
			}
			a.Step = domain.StepRejected
			a.Approved = false
			a.RejectionReason = reason
		}

		if missing := s.missingChecklistItems(a); len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("checklist incomplete: %d item(s) unanswered", len(missing)))
		}

		now := time.Now()
		a.CompletedAt = &now
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, warnings, nil
}

func (s *Service) missingChecklistItems(a *domain.VerificationAttempt) []string {
	answered := map[string]bool{}
	if len(a.Checklist) > 0 {
		_ = json.Unmarshal(a.Checklist, &answered)
	}
	var missing []string
	for _, item := range domain.ChecklistItems {
		if _, ok := answered[item]; !ok {
			missing = append(missing, item)
		}
	}
	return missing
}

// loadMutable fetches an attempt and refuses mutation once completed.
func (s *Service) loadMutable(tx *gorm.DB, attemptID uuid.UUID) (*domain.VerificationAttempt, error) {
	var a domain.VerificationAttempt
	if err := tx.Where("attempt_id = ?", attemptID).First(&a).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &domain.NotFoundError{Resource: "verification attempt"}
		}
		return nil, err
	}
	if a.Completed() {
		return nil, &domain.InvalidStateError{Action: "modify verification attempt", From: a.Step}
	}
	return &a, nil
}
