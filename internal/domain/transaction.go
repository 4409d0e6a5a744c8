package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transaction statuses, in lifecycle order. BUYER_VERIFIED and SELLER_VERIFIED
// are the two halves of a parallel join: field agents may verify either party
// first, and the transaction rests in whichever half completed until the other
// does. SELLER_PAID is a checkpoint only: recording the seller payment lands
// the row directly in DOCUMENTS_PENDING.
const (
	TxInitiated        = "INITIATED"
	TxSlotBooked       = "SLOT_BOOKED"
	TxBuyerVerified    = "BUYER_VERIFIED"
	TxSellerVerified   = "SELLER_VERIFIED"
	TxAllVerified      = "ALL_VERIFIED"
	TxSellerPaid       = "SELLER_PAID"
	TxDocumentsPending = "DOCUMENTS_PENDING"
	TxAdminReview      = "ADMIN_REVIEW"
	TxCompleted        = "COMPLETED"
	TxCancelled        = "CANCELLED"
)

// statusRank orders the forward lifecycle. CANCELLED sits outside the order;
// it is reachable sideways from any non-terminal state.
var statusRank = map[string]int{
	TxInitiated:        0,
	TxSlotBooked:       1,
	TxBuyerVerified:    2,
	TxSellerVerified:   2,
	TxAllVerified:      3,
	TxSellerPaid:       4,
	TxDocumentsPending: 5,
	TxAdminReview:      6,
	TxCompleted:        7,
}

// StatusRank returns the position of a status in the forward lifecycle, and
// false for CANCELLED or unknown statuses.
func StatusRank(status string) (int, bool) {
	r, ok := statusRank[status]
	return r, ok
}

type Transaction struct {
	TxID       uuid.UUID  `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	PropertyID uuid.UUID  `gorm:"column:property_id;type:uuid;not null;index" json:"property_id"`
	BuyerID    uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	SellerID   uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	AgentID    *uuid.UUID `gorm:"column:agent_id;type:uuid;index" json:"agent_id"`
	// Second agent on two-agent deals (buyer-side agent). Splits the agent pool.
	BuyerAgentID *uuid.UUID `gorm:"column:buyer_agent_id;type:uuid" json:"buyer_agent_id"`
	TotalPrice   float64    `gorm:"column:total_price;type:decimal(18,2);not null" json:"total_price"`
	Status       string     `gorm:"column:status;type:varchar(30);default:'INITIATED'" json:"status"`
	// Optimistic concurrency: every transition is applied with a
	// WHERE version = ? guard and bumps this by one.
	Version int `gorm:"column:version;not null;default:0" json:"version"`

	// Registration slot booking.
	RegistrationOffice  string     `gorm:"column:registration_office" json:"registration_office"`
	RegistrationAddress string     `gorm:"column:registration_address" json:"registration_address"`
	RegistrationTime    *time.Time `gorm:"column:registration_time" json:"registration_time"`

	// Field verification join, written from persisted VerificationAttempt rows.
	BuyerVerifiedAt   *time.Time `gorm:"column:buyer_verified_at" json:"buyer_verified_at"`
	SellerVerifiedAt  *time.Time `gorm:"column:seller_verified_at" json:"seller_verified_at"`
	NeedsManualReview bool       `gorm:"column:needs_manual_review;default:false" json:"needs_manual_review"`

	// Signatures collected at the registration office.
	BuyerSignedAt  *time.Time `gorm:"column:buyer_signed_at" json:"buyer_signed_at"`
	SellerSignedAt *time.Time `gorm:"column:seller_signed_at" json:"seller_signed_at"`
	AgentSignedAt  *time.Time `gorm:"column:agent_signed_at" json:"agent_signed_at"`

	// Seller payment checkpoint.
	SellerPaymentReference string     `gorm:"column:seller_payment_reference" json:"seller_payment_reference"`
	SellerPaymentMethod    string     `gorm:"column:seller_payment_method" json:"seller_payment_method"`
	SellerPaidAt           *time.Time `gorm:"column:seller_paid_at" json:"seller_paid_at"`

	// Commission, computed once at approval and frozen.
	PlatformFee         float64        `gorm:"column:platform_fee;type:decimal(18,2);default:0" json:"platform_fee"`
	AgentCommission     float64        `gorm:"column:agent_commission;type:decimal(18,2);default:0" json:"agent_commission"`
	CommissionBreakdown datatypes.JSON `gorm:"column:commission_breakdown;type:json" json:"commission_breakdown"`

	AdminApprovedBy *uuid.UUID `gorm:"column:admin_approved_by;type:uuid" json:"admin_approved_by"`
	AdminApprovedAt *time.Time `gorm:"column:admin_approved_at" json:"admin_approved_at"`
	AdminNotes      string     `gorm:"column:admin_notes" json:"admin_notes"`

	// Cancellation record: who cancelled, why, and the refund tier applied.
	CancelledBy         string     `gorm:"column:cancelled_by;type:varchar(20)" json:"cancelled_by"`
	CancellationReason  string     `gorm:"column:cancellation_reason" json:"cancellation_reason"`
	RefundPercent       *float64   `gorm:"column:refund_percent;type:decimal(5,2)" json:"refund_percent"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancelledFromStatus string     `gorm:"column:cancelled_from_status;type:varchar(30)" json:"cancelled_from_status"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "Transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}

// Terminal reports whether the transaction can never change again.
func (t *Transaction) Terminal() bool {
	return t.Status == TxCompleted || t.Status == TxCancelled
}

// PartiallyVerified reports whether exactly one party has passed field verification.
func (t *Transaction) PartiallyVerified() bool {
	return t.Status == TxBuyerVerified || t.Status == TxSellerVerified
}
