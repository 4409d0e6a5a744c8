package documents

import (
	"context"
	"testing"

	"nestfind-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDocTest(t *testing.T) (*Service, *domain.Transaction, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Transaction{}, &domain.TransactionDocument{}))

	tx := domain.Transaction{
		PropertyID: uuid.New(),
		BuyerID:    uuid.New(),
		SellerID:   uuid.New(),
		TotalPrice: 7_500_000,
		Status:     domain.TxDocumentsPending,
	}
	require.NoError(t, db.Create(&tx).Error)
	return &Service{DB: db}, &tx, db
}

func TestUpload(t *testing.T) {
	svc, tx, _ := setupDocTest(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	assert.False(t, doc.AdminVerified)
	assert.Equal(t, domain.DocSaleDeed, doc.DocumentType)

	_, err = svc.Upload(ctx, tx.TxID, tx.BuyerID, "TENANT", domain.DocSaleDeed, "https://files.example/deed.pdf")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, "GYM_MEMBERSHIP", "https://files.example/x.pdf")
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "")
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Upload(ctx, uuid.New(), tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	var nfErr *domain.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestUpload_IdenticalRetryReturnsSameRow(t *testing.T) {
	svc, tx, db := setupDocTest(t)
	ctx := context.Background()

	first, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocIDProof, "https://files.example/id.pdf")
	require.NoError(t, err)
	second, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocIDProof, "https://files.example/id.pdf")
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	var count int64
	require.NoError(t, db.Model(&domain.TransactionDocument{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// A different file of the same type is a new row.
	_, err = svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocIDProof, "https://files.example/id-v2.pdf")
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.TransactionDocument{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestUpload_TerminalTransaction(t *testing.T) {
	svc, tx, db := setupDocTest(t)
	require.NoError(t, db.Model(&domain.Transaction{}).
		Where("tx_id = ?", tx.TxID).Update("status", domain.TxCancelled).Error)

	_, err := svc.Upload(context.Background(), tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, domain.TxCancelled, isErr.From)
}

func TestVerify(t *testing.T) {
	svc, tx, _ := setupDocTest(t)
	ctx := context.Background()
	adminID := uuid.New()

	doc, err := svc.Upload(ctx, tx.TxID, tx.SellerID, domain.PartySeller, domain.DocRegistrationCertificate, "https://files.example/rc.pdf")
	require.NoError(t, err)

	out, err := svc.Verify(ctx, doc.DocumentID, adminID, true, "")
	require.NoError(t, err)
	assert.True(t, out.AdminVerified)
	assert.False(t, out.AdminRejected)
	require.NotNil(t, out.AdminVerifiedBy)
	assert.Equal(t, adminID, *out.AdminVerifiedBy)

	// The admin may reverse the decision; the latest one wins.
	out, err = svc.Verify(ctx, doc.DocumentID, adminID, false, "wrong survey number")
	require.NoError(t, err)
	assert.False(t, out.AdminVerified)
	assert.True(t, out.AdminRejected)
	assert.Equal(t, "wrong survey number", out.AdminNotes)

	_, err = svc.Verify(ctx, uuid.New(), adminID, true, "")
	var nfErr *domain.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestAllClear(t *testing.T) {
	svc, tx, db := setupDocTest(t)
	ctx := context.Background()
	adminID := uuid.New()

	// Empty list never opens the gate.
	clear, err := svc.AllClear(db, tx.TxID)
	require.NoError(t, err)
	assert.False(t, clear)

	d1, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	d2, err := svc.Upload(ctx, tx.TxID, tx.SellerID, domain.PartySeller, domain.DocIDProof, "https://files.example/id.pdf")
	require.NoError(t, err)

	clear, err = svc.AllClear(db, tx.TxID)
	require.NoError(t, err)
	assert.False(t, clear)

	_, err = svc.Verify(ctx, d1.DocumentID, adminID, true, "")
	require.NoError(t, err)
	clear, err = svc.AllClear(db, tx.TxID)
	require.NoError(t, err)
	assert.False(t, clear)

	_, err = svc.Verify(ctx, d2.DocumentID, adminID, true, "")
	require.NoError(t, err)
	clear, err = svc.AllClear(db, tx.TxID)
	require.NoError(t, err)
	assert.True(t, clear)

	// A rejection closes it again.
	_, err = svc.Verify(ctx, d2.DocumentID, adminID, false, "expired ID")
	require.NoError(t, err)
	clear, err = svc.AllClear(db, tx.TxID)
	require.NoError(t, err)
	assert.False(t, clear)
}

func TestVerify_BumpsTransactionVersion(t *testing.T) {
	svc, tx, db := setupDocTest(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)

	var before domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&before).Error)

	// Every admin decision invalidates concurrent version-guarded writes
	// against the owning transaction, approvals included.
	_, err = svc.Verify(ctx, doc.DocumentID, uuid.New(), true, "")
	require.NoError(t, err)

	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, before.Version+1, after.Version)

	_, err = svc.Verify(ctx, doc.DocumentID, uuid.New(), false, "wrong survey number")
	require.NoError(t, err)
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, before.Version+2, after.Version)
}

func TestVerify_TerminalTransaction(t *testing.T) {
	svc, tx, db := setupDocTest(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocIDProof, "https://files.example/id.pdf")
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Transaction{}).
		Where("tx_id = ?", tx.TxID).Update("status", domain.TxCompleted).Error)

	_, err = svc.Verify(ctx, doc.DocumentID, uuid.New(), false, "too late")
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, domain.TxCompleted, isErr.From)

	// The decision did not land.
	var after domain.TransactionDocument
	require.NoError(t, db.Where("document_id = ?", doc.DocumentID).First(&after).Error)
	assert.False(t, after.AdminRejected)
}

func TestListByTransaction(t *testing.T) {
	svc, tx, _ := setupDocTest(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	_, err = svc.Upload(ctx, tx.TxID, tx.SellerID, domain.PartySeller, domain.DocOther, "https://files.example/tax-receipt.pdf")
	require.NoError(t, err)

	docs, err := svc.ListByTransaction(ctx, tx.TxID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	none, err := svc.ListByTransaction(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
