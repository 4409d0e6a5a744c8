package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Offer statuses. PENDING and COUNTERED are the two non-terminal states; a buyer
// and property may hold at most one offer in either of them at a time.
const (
	OfferPending   = "PENDING"
	OfferAccepted  = "ACCEPTED"
	OfferRejected  = "REJECTED"
	OfferCountered = "COUNTERED"
	OfferExpired   = "EXPIRED"
	OfferWithdrawn = "WITHDRAWN"
)

type Offer struct {
	OfferID      uuid.UUID      `gorm:"column:offer_id;type:uuid;primaryKey" json:"offer_id"`
	PropertyID   uuid.UUID      `gorm:"column:property_id;type:uuid;not null;index" json:"property_id"`
	BuyerID      uuid.UUID      `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	Amount       float64        `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Status       string         `gorm:"column:status;type:varchar(20);default:'PENDING'" json:"status"`
	CounterPrice *float64       `gorm:"column:counter_price;type:decimal(18,2)" json:"counter_price"`
	ExpiresAt    time.Time      `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt    time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Offer) TableName() string {
	return "Offers"
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.OfferID == uuid.Nil {
		o.OfferID = uuid.New()
	}
	return nil
}

// Open reports whether the offer is still negotiable.
func (o *Offer) Open() bool {
	return o.Status == OfferPending || o.Status == OfferCountered
}
