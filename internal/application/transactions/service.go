package transactions

import (
	"context"
	"encoding/json"
	"time"

	"nestfind-backend/internal/application/commission"
	"nestfind-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentGate reports whether every uploaded document for a transaction is
// admin-verified. Implemented by the documents service. The gorm handle is the
// caller's enclosing transaction so the gate read and the guarded status write
// see the same snapshot.
type DocumentGate interface {
	AllClear(db *gorm.DB, txID uuid.UUID) (bool, error)
}

type Service struct {
	DB   *gorm.DB
	Gate DocumentGate
}

// Get returns a transaction by id.
func (s *Service) Get(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := s.DB.WithContext(ctx).Where("tx_id = ?", txID).First(&t).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &domain.NotFoundError{Resource: "transaction"}
		}
		return nil, err
	}
	return &t, nil
}

// ListByRole returns the transactions visible to an actor: buyers and sellers
// see their own deals, agents the deals assigned to them, admins everything.
func (s *Service) ListByRole(ctx context.Context, userID uuid.UUID, role string) ([]domain.Transaction, error) {
	db := s.DB.WithContext(ctx).Order("\"createdAt\" desc")
	switch role {
	case domain.RoleBuyer:
		db = db.Where("buyer_id = ?", userID)
	case domain.RoleSeller:
		db = db.Where("seller_id = ?", userID)
	case domain.RoleAgent:
		db = db.Where("agent_id = ? OR buyer_agent_id = ?", userID, userID)
	case domain.RoleAdmin:
		// unrestricted
	default:
		return nil, &domain.ValidationError{Field: "role", Reason: "unknown role"}
	}
	var txs []domain.Transaction
	err := db.Find(&txs).Error
	return txs, err
}

// transition applies updates to a transaction guarded by its optimistic
// version. RowsAffected == 0 after a passing precondition read means another
// writer got there first.
func transition(tx *gorm.DB, t *domain.Transaction, updates map[string]interface{}) error {
	updates["version"] = t.Version + 1
	res := tx.Model(&domain.Transaction{}).
		Where("tx_id = ? AND version = ?", t.TxID, t.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ConcurrencyConflictError{Resource: "transaction"}
	}
	return nil
}

func (s *Service) load(tx *gorm.DB, txID uuid.UUID) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := tx.Where("tx_id = ?", txID).First(&t).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &domain.NotFoundError{Resource: "transaction"}
		}
		return nil, err
	}
	return &t, nil
}

// BookSlot reserves the registration-office slot. Legal only from INITIATED
// with a future time. Re-submitting the identical office and time while
// already SLOT_BOOKED returns the stored booking (safe retry).
func (s *Service) BookSlot(ctx context.Context, txID uuid.UUID, office, address string, at time.Time) (*domain.Transaction, error) {
	if office == "" {
		return nil, &domain.ValidationError{Field: "registration_office", Reason: "required"}
	}
	if !at.After(time.Now()) {
		return nil, &domain.ValidationError{Field: "registration_time", Reason: "must be in the future"}
	}

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Status == domain.TxSlotBooked && t.RegistrationOffice == office &&
			t.RegistrationTime != nil && t.RegistrationTime.Equal(at) {
			out = t
			return nil
		}
		if t.Status != domain.TxInitiated {
			return &domain.InvalidStateError{Action: "book slot", From: t.Status}
		}
		if err := transition(tx, t, map[string]interface{}{
			"status":               domain.TxSlotBooked,
			"registration_office":  office,
			"registration_address": address,
			"registration_time":    at,
		}); err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// RecordPartyVerification consumes a completed VerificationAttempt for one
// party. Approved attempts require both the GPS and OTP checks to have passed;
// the buyer/seller join is order-independent and computed from persisted
// state. A rejected attempt does not advance or cancel the transaction: it is
// flagged for manual review, since one failed check is not grounds for
// auto-termination.
func (s *Service) RecordPartyVerification(ctx context.Context, txID, attemptID uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != domain.TxSlotBooked && !t.PartiallyVerified() {
			return &domain.InvalidStateError{Action: "record party verification", From: t.Status}
		}

		var att domain.VerificationAttempt
		if err := tx.Where("attempt_id = ? AND transaction_id = ?", attemptID, txID).First(&att).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "verification attempt"}
			}
			return err
		}
		if !att.Completed() {
			return &domain.PreconditionFailedError{Reason: "verification attempt is not finalized"}
		}
		if att.ConsumedAt != nil {
			return &domain.InvalidStateError{Action: "record party verification", From: "attempt already consumed"}
		}

		if !att.Approved {
			if err := transition(tx, t, map[string]interface{}{
				"needs_manual_review": true,
			}); err != nil {
				return err
			}
			log.Warn().
				Str("tx_id", t.TxID.String()).
				Str("party_role", att.PartyRole).
				Str("reason", att.RejectionReason).
				Msg("Party verification rejected, transaction flagged for manual review")
			out, err = s.load(tx, txID)
			return err
		}

		if !(att.GpsPassed || att.GpsSkipped) || att.OtpVerifiedAt == nil {
			return &domain.PreconditionFailedError{Reason: "GPS and OTP checks must both pass before approval"}
		}

		now := time.Now()
		updates := map[string]interface{}{}
		switch att.PartyRole {
		case domain.PartyBuyer:
			if t.BuyerVerifiedAt != nil {
				return &domain.InvalidStateError{Action: "record party verification", From: "buyer already verified"}
			}
			updates["buyer_verified_at"] = now
			if t.SellerVerifiedAt != nil {
				updates["status"] = domain.TxAllVerified
			} else {
				updates["status"] = domain.TxBuyerVerified
			}
		case domain.PartySeller:
			if t.SellerVerifiedAt != nil {
				return &domain.InvalidStateError{Action: "record party verification", From: "seller already verified"}
			}
			updates["seller_verified_at"] = now
			if t.BuyerVerifiedAt != nil {
				updates["status"] = domain.TxAllVerified
			} else {
				updates["status"] = domain.TxSellerVerified
			}
		default:
			return &domain.ValidationError{Field: "party_role", Reason: "must be BUYER or SELLER"}
		}

		if err := transition(tx, t, updates); err != nil {
			return err
		}
		if err := tx.Model(&domain.VerificationAttempt{}).
			Where("attempt_id = ?", att.AttemptID).
			Update("consumed_at", now).Error; err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// RecordSellerPayment stores the payment reference. Legal only from
// ALL_VERIFIED; the row lands directly in DOCUMENTS_PENDING because payment
// and document collection run concurrently in practice (SELLER_PAID is a
// checkpoint, not a blocking gate).
func (s *Service) RecordSellerPayment(ctx context.Context, txID uuid.UUID, reference, method string) (*domain.Transaction, error) {
	if reference == "" {
		return nil, &domain.ValidationError{Field: "reference", Reason: "required"}
	}

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != domain.TxAllVerified {
			return &domain.InvalidStateError{Action: "record seller payment", From: t.Status}
		}
		if err := transition(tx, t, map[string]interface{}{
			"status":                   domain.TxDocumentsPending,
			"seller_payment_reference": reference,
			"seller_payment_method":    method,
			"seller_paid_at":           time.Now(),
		}); err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// SubmitForReview moves DOCUMENTS_PENDING -> ADMIN_REVIEW, gated on every
// uploaded document being admin-verified.
func (s *Service) SubmitForReview(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != domain.TxDocumentsPending {
			return &domain.InvalidStateError{Action: "submit for review", From: t.Status}
		}
		clear, err := s.Gate.AllClear(tx, txID)
		if err != nil {
			return err
		}
		if !clear {
			return &domain.PreconditionFailedError{Reason: "all documents must be admin-verified before review"}
		}
		if err := transition(tx, t, map[string]interface{}{
			"status": domain.TxAdminReview,
		}); err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// Approve is the single terminal success transition. Legal only from
// ADMIN_REVIEW; the document gate is re-checked because documents may have
// been added or rejected since submission. Computes and freezes the commission
// split and marks the property SOLD. Irreversible.
func (s *Service) Approve(ctx context.Context, txID, adminID uuid.UUID, notes string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Status != domain.TxAdminReview {
			return &domain.InvalidStateError{Action: "approve", From: t.Status}
		}
		clear, err := s.Gate.AllClear(tx, txID)
		if err != nil {
			return err
		}
		if !clear {
			return &domain.PreconditionFailedError{Reason: "all documents must be admin-verified before approval"}
		}

		split := commission.Compute(t.TotalPrice, t.AgentID != nil && t.BuyerAgentID != nil)
		breakdown, err := json.Marshal(split)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := transition(tx, t, map[string]interface{}{
			"status":               domain.TxCompleted,
			"platform_fee":         split.PlatformFee,
			"agent_commission":     split.AgentCommission,
			"commission_breakdown": datatypes.JSON(breakdown),
			"admin_approved_by":    adminID,
			"admin_approved_at":    now,
			"admin_notes":          notes,
		}); err != nil {
			return err
		}
		if err := tx.Model(&domain.Property{}).
			Where("property_id = ?", t.PropertyID).
			Update("status", domain.PropertySold).Error; err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// Cancel is legal from any non-terminal state. Records the responsible party
// and the refund tier for the stage reached, and releases the property back to
// LISTED. Re-entering a terminal state is an error, never a silent no-op.
func (s *Service) Cancel(ctx context.Context, txID uuid.UUID, byRole, reason string) (*domain.Transaction, error) {
	if byRole != domain.PartyBuyer && byRole != domain.PartySeller && byRole != domain.PartyAgent && byRole != "ADMIN" {
		return nil, &domain.ValidationError{Field: "by_role", Reason: "unknown cancelling party"}
	}
	if reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Reason: "required"}
	}

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(tx, txID)
		if err != nil {
			return err
		}
		if t.Terminal() {
			return &domain.InvalidStateError{Action: "cancel", From: t.Status}
		}

		refund := commission.RefundPercent(t.Status)
		if err := transition(tx, t, map[string]interface{}{
			"status":                domain.TxCancelled,
			"cancelled_by":          byRole,
			"cancellation_reason":   reason,
			"refund_percent":        refund,
			"cancelled_at":          time.Now(),
			"cancelled_from_status": t.Status,
		}); err != nil {
			return err
		}
		if err := tx.Model(&domain.Property{}).
			Where("property_id = ?", t.PropertyID).
			Update("status", domain.PropertyListed).Error; err != nil {
			return err
		}
		out, err = s.load(tx, txID)
		return err
	})
	return out, err
}

// CommissionProjection returns the frozen split of a completed transaction.
func (s *Service) CommissionProjection(ctx context.Context, txID uuid.UUID) (*commission.Split, error) {
	t, err := s.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TxCompleted {
		return nil, &domain.InvalidStateError{Action: "read commission", From: t.Status}
	}
	var split commission.Split
	if err := json.Unmarshal(t.CommissionBreakdown, &split); err != nil {
		return nil, err
	}
	return &split, nil
}
