package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction document types.
const (
	DocNestfindAgreement       = "NESTFIND_AGREEMENT"
	DocRegistrationCertificate = "REGISTRATION_CERTIFICATE"
	DocSaleDeed                = "SALE_DEED"
	DocVerificationPhoto       = "VERIFICATION_PHOTO"
	DocIDProof                 = "ID_PROOF"
	DocOther                   = "OTHER"
)

// DocumentTypes lists the accepted document_type values.
var DocumentTypes = map[string]bool{
	DocNestfindAgreement:       true,
	DocRegistrationCertificate: true,
	DocSaleDeed:                true,
	DocVerificationPhoto:       true,
	DocIDProof:                 true,
	DocOther:                   true,
}

type TransactionDocument struct {
	DocumentID    uuid.UUID `gorm:"column:document_id;type:uuid;primaryKey" json:"document_id"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;index" json:"transaction_id"`
	UploaderID    uuid.UUID `gorm:"column:uploader_id;type:uuid;not null" json:"uploader_id"`
	UploaderRole  string    `gorm:"column:uploader_role;type:varchar(10);not null" json:"uploader_role"`
	DocumentType  string    `gorm:"column:document_type;type:varchar(30);not null" json:"document_type"`
	FileURL       string    `gorm:"column:file_url;type:text;not null" json:"file_url"`

	AdminVerified   bool       `gorm:"column:admin_verified;default:false" json:"admin_verified"`
	AdminVerifiedBy *uuid.UUID `gorm:"column:admin_verified_by;type:uuid" json:"admin_verified_by"`
	AdminVerifiedAt *time.Time `gorm:"column:admin_verified_at" json:"admin_verified_at"`
	// Set true when an admin has reviewed and rejected the document. A rejected
	// document stays in the list and keeps the all-clear gate closed.
	AdminRejected bool   `gorm:"column:admin_rejected;default:false" json:"admin_rejected"`
	AdminNotes    string `gorm:"column:admin_notes" json:"admin_notes"`

	UploadedAt time.Time `gorm:"column:uploaded_at;autoCreateTime" json:"uploaded_at"`
	UpdatedAt  time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (TransactionDocument) TableName() string {
	return "TransactionDocuments"
}

func (d *TransactionDocument) BeforeCreate(tx *gorm.DB) error {
	if d.DocumentID == uuid.Nil {
		d.DocumentID = uuid.New()
	}
	return nil
}
