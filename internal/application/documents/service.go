package documents

import (
	"context"
	"time"

	"nestfind-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	DB *gorm.DB
}

// Upload appends a new document with admin_verified=false. Allowed while the
// transaction is non-terminal; there is no upper limit per type (multiple ID
// proofs are fine).
func (s *Service) Upload(ctx context.Context, txID, uploaderID uuid.UUID, role, docType, fileURL string) (*domain.TransactionDocument, error) {
	if role != domain.PartyBuyer && role != domain.PartySeller && role != domain.PartyAgent {
		return nil, &domain.ValidationError{Field: "uploader_role", Reason: "must be BUYER, SELLER or AGENT"}
	}
	if !domain.DocumentTypes[docType] {
		return nil, &domain.ValidationError{Field: "document_type", Reason: "unknown document type"}
	}
	if fileURL == "" {
		return nil, &domain.ValidationError{Field: "file_url", Reason: "required"}
	}

	var doc *domain.TransactionDocument
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Transaction
		if err := tx.Where("tx_id = ?", txID).First(&t).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "transaction"}
			}
			return err
		}
		if t.Terminal() {
			return &domain.InvalidStateError{Action: "upload document", From: t.Status}
		}

		// Idempotent retry: identical payload from the same uploader returns
		// the stored row instead of duplicating it.
		var existing domain.TransactionDocument
		err := tx.Where("transaction_id = ? AND uploader_id = ? AND document_type = ? AND file_url = ?",
			txID, uploaderID, docType, fileURL).First(&existing).Error
		if err == nil {
			doc = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		d := domain.TransactionDocument{
			TransactionID: txID,
			UploaderID:    uploaderID,
			UploaderRole:  role,
			DocumentType:  docType,
			FileURL:       fileURL,
		}
		if err := tx.Create(&d).Error; err != nil {
			return err
		}
		doc = &d
		return nil
	})
	return doc, err
}

// ListByTransaction returns all documents for a transaction, oldest first.
func (s *Service) ListByTransaction(ctx context.Context, txID uuid.UUID) ([]domain.TransactionDocument, error) {
	var docs []domain.TransactionDocument
	err := s.DB.WithContext(ctx).
		Where("transaction_id = ?", txID).
		Order("uploaded_at asc").
		Find(&docs).Error
	return docs, err
}

// Verify records an admin decision on one document. A rejected document stays
// in the list and keeps the all-clear gate closed until re-uploaded or
// separately resolved; the admin must act again. The owning transaction's
// version is bumped in the same write so an in-flight approval that read the
// gate before this decision fails its version guard instead of completing.
func (s *Service) Verify(ctx context.Context, docID, adminID uuid.UUID, approved bool, notes string) (*domain.TransactionDocument, error) {
	var doc domain.TransactionDocument
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).First(&doc).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "document"}
			}
			return err
		}

		var t domain.Transaction
		if err := tx.Where("tx_id = ?", doc.TransactionID).First(&t).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "transaction"}
			}
			return err
		}
		if t.Terminal() {
			return &domain.InvalidStateError{Action: "review document", From: t.Status}
		}

		now := time.Now()
		doc.AdminVerified = approved
		doc.AdminRejected = !approved
		doc.AdminVerifiedBy = &adminID
		doc.AdminVerifiedAt = &now
		doc.AdminNotes = notes
		if err := tx.Save(&doc).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Transaction{}).
			Where("tx_id = ?", t.TxID).
			Update("version", gorm.Expr("version + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// AllClear reports whether the document gate is open: the list is non-empty
// and every entry is admin-verified. The caller passes its own handle so the
// read shares the caller's transaction snapshot; gate checks made inside a
// state transition must not see documents through a separate connection.
func (s *Service) AllClear(db *gorm.DB, txID uuid.UUID) (bool, error) {
	var total, verified int64
	if err := db.Model(&domain.TransactionDocument{}).
		Where("transaction_id = ?", txID).Count(&total).Error; err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	if err := db.Model(&domain.TransactionDocument{}).
		Where("transaction_id = ? AND admin_verified = ?", txID, true).
		Count(&verified).Error; err != nil {
		return false, err
	}
	return verified == total, nil
}
