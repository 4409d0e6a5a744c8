package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Property listing statuses. UNDER_TRANSACTION is owned exclusively by the
// property's single non-terminal transaction.
const (
	PropertyListed           = "LISTED"
	PropertyUnderTransaction = "UNDER_TRANSACTION"
	PropertySold             = "SOLD"
)

type Property struct {
	PropertyID uuid.UUID      `gorm:"column:property_id;type:uuid;primaryKey" json:"property_id"`
	SellerID   uuid.UUID      `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Address    string         `gorm:"column:address" json:"address"`
	City       string         `gorm:"column:city" json:"city"`
	Price      float64        `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	// Registered coordinates for the agent field visit. Nullable: properties
	// without coordinates skip the GPS step of field verification.
	Latitude  *float64       `gorm:"column:latitude;type:decimal(10,7)" json:"latitude"`
	Longitude *float64       `gorm:"column:longitude;type:decimal(10,7)" json:"longitude"`
	Status    string         `gorm:"column:status;type:varchar(30);default:'LISTED'" json:"status"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Property) TableName() string {
	return "Properties"
}

func (p *Property) BeforeCreate(tx *gorm.DB) error {
	if p.PropertyID == uuid.Nil {
		p.PropertyID = uuid.New()
	}
	return nil
}
