package transactions

import (
	"context"
	"testing"
	"time"

	docsvc "nestfind-backend/internal/application/documents"
	"nestfind-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTxTest(t *testing.T) (*Service, *docsvc.Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Property{}, &domain.Transaction{},
		&domain.VerificationAttempt{}, &domain.TransactionDocument{},
	))
	docs := &docsvc.Service{DB: db}
	return &Service{DB: db, Gate: docs}, docs, db
}

func seedTx(t *testing.T, db *gorm.DB, status string) *domain.Transaction {
	prop := domain.Property{
		SellerID: uuid.New(),
		Title:    "2BHK in Indiranagar",
		Price:    10_000_000,
		Status:   domain.PropertyUnderTransaction,
	}
	require.NoError(t, db.Create(&prop).Error)

	tx := domain.Transaction{
		PropertyID: prop.PropertyID,
		BuyerID:    uuid.New(),
		SellerID:   prop.SellerID,
		TotalPrice: 10_000_000,
		Status:     status,
	}
	require.NoError(t, db.Create(&tx).Error)
	return &tx
}

func seedAttempt(t *testing.T, db *gorm.DB, txID uuid.UUID, role string, approved, gpsPassed, otpDone, completed bool) *domain.VerificationAttempt {
	a := domain.VerificationAttempt{
		TransactionID: txID,
		AgentID:       uuid.New(),
		PartyRole:     role,
		GpsPassed:     gpsPassed,
	}
	if otpDone {
		now := time.Now()
		a.OtpVerifiedAt = &now
	}
	if completed {
		now := time.Now()
		a.CompletedAt = &now
		a.Approved = approved
		if approved {
			a.Step = domain.StepApproved
		} else {
			a.Step = domain.StepRejected
			a.RejectionReason = "party identity could not be confirmed"
		}
	}
	require.NoError(t, db.Create(&a).Error)
	return &a
}

func TestBookSlot_FromInitiated(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxInitiated)

	at := time.Now().Add(48 * time.Hour)
	out, err := svc.BookSlot(context.Background(), tx.TxID, "SRO Shivajinagar", "Kasturba Road", at)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSlotBooked, out.Status)
	assert.Equal(t, "SRO Shivajinagar", out.RegistrationOffice)
	require.NotNil(t, out.RegistrationTime)
}

func TestBookSlot_PastTime(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxInitiated)

	_, err := svc.BookSlot(context.Background(), tx.TxID, "SRO Shivajinagar", "", time.Now().Add(-time.Hour))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestBookSlot_WrongState(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxAllVerified)

	_, err := svc.BookSlot(context.Background(), tx.TxID, "SRO Shivajinagar", "", time.Now().Add(time.Hour))
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, domain.TxAllVerified, isErr.From)
}

func TestBookSlot_IdenticalRetryIsIdempotent(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxInitiated)

	at := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	first, err := svc.BookSlot(context.Background(), tx.TxID, "SRO Shivajinagar", "", at)
	require.NoError(t, err)

	second, err := svc.BookSlot(context.Background(), tx.TxID, "SRO Shivajinagar", "", at)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, domain.TxSlotBooked, second.Status)
}

func TestPartyVerification_JoinIsOrderIndependent(t *testing.T) {
	svc, _, db := setupTxTest(t)
	ctx := context.Background()

	// Seller first, then buyer.
	tx := seedTx(t, db, domain.TxSlotBooked)
	sellerAtt := seedAttempt(t, db, tx.TxID, domain.PartySeller, true, true, true, true)
	out, err := svc.RecordPartyVerification(ctx, tx.TxID, sellerAtt.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSellerVerified, out.Status)

	buyerAtt := seedAttempt(t, db, tx.TxID, domain.PartyBuyer, true, true, true, true)
	out, err = svc.RecordPartyVerification(ctx, tx.TxID, buyerAtt.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAllVerified, out.Status)
	assert.NotNil(t, out.BuyerVerifiedAt)
	assert.NotNil(t, out.SellerVerifiedAt)

	// Buyer first, then seller.
	tx2 := seedTx(t, db, domain.TxSlotBooked)
	buyerAtt2 := seedAttempt(t, db, tx2.TxID, domain.PartyBuyer, true, true, true, true)
	out, err = svc.RecordPartyVerification(ctx, tx2.TxID, buyerAtt2.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxBuyerVerified, out.Status)

	sellerAtt2 := seedAttempt(t, db, tx2.TxID, domain.PartySeller, true, true, true, true)
	out, err = svc.RecordPartyVerification(ctx, tx2.TxID, sellerAtt2.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAllVerified, out.Status)
}

func TestPartyVerification_RequiresGPSAndOTP(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxSlotBooked)

	// Finalized as approved but OTP never verified.
	att := seedAttempt(t, db, tx.TxID, domain.PartyBuyer, true, true, false, true)
	_, err := svc.RecordPartyVerification(context.Background(), tx.TxID, att.AttemptID)
	var pErr *domain.PreconditionFailedError
	require.ErrorAs(t, err, &pErr)

	// GPS never passed.
	att2 := seedAttempt(t, db, tx.TxID, domain.PartySeller, true, false, true, true)
	_, err = svc.RecordPartyVerification(context.Background(), tx.TxID, att2.AttemptID)
	require.ErrorAs(t, err, &pErr)
}

func TestPartyVerification_UnfinalizedAttempt(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxSlotBooked)
	att := seedAttempt(t, db, tx.TxID, domain.PartyBuyer, false, true, true, false)

	_, err := svc.RecordPartyVerification(context.Background(), tx.TxID, att.AttemptID)
	var pErr *domain.PreconditionFailedError
	require.ErrorAs(t, err, &pErr)
}

func TestPartyVerification_RejectedFlagsManualReview(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxSlotBooked)
	att := seedAttempt(t, db, tx.TxID, domain.PartyBuyer, false, true, true, true)

	out, err := svc.RecordPartyVerification(context.Background(), tx.TxID, att.AttemptID)
	require.NoError(t, err)
	// Does not advance and does not auto-cancel.
	assert.Equal(t, domain.TxSlotBooked, out.Status)
	assert.True(t, out.NeedsManualReview)
}

func TestPartyVerification_AttemptCannotBeReplayed(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxSlotBooked)
	att := seedAttempt(t, db, tx.TxID, domain.PartyBuyer, true, true, true, true)

	_, err := svc.RecordPartyVerification(context.Background(), tx.TxID, att.AttemptID)
	require.NoError(t, err)

	// Same attempt again: buyer already verified, attempt consumed.
	_, err = svc.RecordPartyVerification(context.Background(), tx.TxID, att.AttemptID)
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
}

func TestRecordSellerPayment_ChecksState(t *testing.T) {
	svc, _, db := setupTxTest(t)
	ctx := context.Background()

	tx := seedTx(t, db, domain.TxAllVerified)
	out, err := svc.RecordSellerPayment(ctx, tx.TxID, "pi_abc123", "stripe")
	require.NoError(t, err)
	// SELLER_PAID is a checkpoint; the row rests in DOCUMENTS_PENDING.
	assert.Equal(t, domain.TxDocumentsPending, out.Status)
	assert.NotNil(t, out.SellerPaidAt)
	assert.Equal(t, "pi_abc123", out.SellerPaymentReference)

	tx2 := seedTx(t, db, domain.TxSlotBooked)
	_, err = svc.RecordSellerPayment(ctx, tx2.TxID, "pi_def456", "stripe")
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
}

func TestSubmitForReview_GateMustBeClear(t *testing.T) {
	svc, docs, db := setupTxTest(t)
	ctx := context.Background()
	tx := seedTx(t, db, domain.TxDocumentsPending)

	// Zero documents: gate closed.
	_, err := svc.SubmitForReview(ctx, tx.TxID)
	var pErr *domain.PreconditionFailedError
	require.ErrorAs(t, err, &pErr)

	doc, err := docs.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)

	// Unverified document: still closed.
	_, err = svc.SubmitForReview(ctx, tx.TxID)
	require.ErrorAs(t, err, &pErr)

	_, err = docs.Verify(ctx, doc.DocumentID, uuid.New(), true, "")
	require.NoError(t, err)

	out, err := svc.SubmitForReview(ctx, tx.TxID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAdminReview, out.Status)
}

func TestApprove_FreezesCommissionAndMarksSold(t *testing.T) {
	svc, docs, db := setupTxTest(t)
	ctx := context.Background()
	agentID := uuid.New()
	tx := seedTx(t, db, domain.TxAdminReview)
	require.NoError(t, db.Model(&domain.Transaction{}).
		Where("tx_id = ?", tx.TxID).Update("agent_id", agentID).Error)

	doc, err := docs.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	_, err = docs.Verify(ctx, doc.DocumentID, uuid.New(), true, "")
	require.NoError(t, err)

	adminID := uuid.New()
	out, err := svc.Approve(ctx, tx.TxID, adminID, "all clear")
	require.NoError(t, err)
	assert.Equal(t, domain.TxCompleted, out.Status)
	assert.Equal(t, 70_000.0, out.AgentCommission)
	assert.Equal(t, 30_000.0, out.PlatformFee)
	require.NotNil(t, out.AdminApprovedBy)
	assert.Equal(t, adminID, *out.AdminApprovedBy)

	var prop domain.Property
	require.NoError(t, db.Where("property_id = ?", tx.PropertyID).First(&prop).Error)
	assert.Equal(t, domain.PropertySold, prop.Status)

	split, err := svc.CommissionProjection(ctx, tx.TxID)
	require.NoError(t, err)
	assert.Equal(t, 70_000.0, split.AgentCommission)
	assert.Equal(t, 20_000.0, split.PlatformSellerFee)
	assert.Equal(t, 10_000.0, split.PlatformBuyerFee)
}

func TestApprove_RechecksDocumentGate(t *testing.T) {
	svc, docs, db := setupTxTest(t)
	ctx := context.Background()
	tx := seedTx(t, db, domain.TxAdminReview)

	// Zero documents.
	_, err := svc.Approve(ctx, tx.TxID, uuid.New(), "")
	var pErr *domain.PreconditionFailedError
	require.ErrorAs(t, err, &pErr)

	// A document rejected after submission keeps the gate closed.
	doc, err := docs.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocIDProof, "https://files.example/id.pdf")
	require.NoError(t, err)
	_, err = docs.Verify(ctx, doc.DocumentID, uuid.New(), false, "blurry scan")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, tx.TxID, uuid.New(), "")
	require.ErrorAs(t, err, &pErr)
}

// lateRejectionGate reproduces an admin rejection committing between the
// approve's gate read and its status write: the document flips and the owning
// transaction's version is bumped, exactly what documents.Verify persists.
type lateRejectionGate struct {
	inner *docsvc.Service
	docID uuid.UUID
	fired bool
}

func (g *lateRejectionGate) AllClear(db *gorm.DB, txID uuid.UUID) (bool, error) {
	clear, err := g.inner.AllClear(db, txID)
	if err != nil || g.fired {
		return clear, err
	}
	g.fired = true
	if err := db.Model(&domain.TransactionDocument{}).
		Where("document_id = ?", g.docID).
		Updates(map[string]interface{}{"admin_verified": false, "admin_rejected": true}).Error; err != nil {
		return clear, err
	}
	if err := db.Model(&domain.Transaction{}).
		Where("tx_id = ?", txID).
		Update("version", gorm.Expr("version + 1")).Error; err != nil {
		return clear, err
	}
	return clear, nil
}

func TestApprove_LateDocumentRejectionConflicts(t *testing.T) {
	_, docs, db := setupTxTest(t)
	ctx := context.Background()
	tx := seedTx(t, db, domain.TxAdminReview)

	doc, err := docs.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	_, err = docs.Verify(ctx, doc.DocumentID, uuid.New(), true, "")
	require.NoError(t, err)

	svc := &Service{DB: db, Gate: &lateRejectionGate{inner: docs, docID: doc.DocumentID}}
	_, err = svc.Approve(ctx, tx.TxID, uuid.New(), "")
	var cErr *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &cErr)

	// The version guard caught the interleaved decision and the whole approve
	// rolled back: the transaction never reached COMPLETED.
	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, domain.TxAdminReview, after.Status)
	assert.True(t, after.AdminApprovedAt == nil)
}

func TestApprove_TerminalReentryIsError(t *testing.T) {
	svc, docs, db := setupTxTest(t)
	ctx := context.Background()
	tx := seedTx(t, db, domain.TxAdminReview)

	doc, err := docs.Upload(ctx, tx.TxID, tx.BuyerID, domain.PartyBuyer, domain.DocSaleDeed, "https://files.example/deed.pdf")
	require.NoError(t, err)
	_, err = docs.Verify(ctx, doc.DocumentID, uuid.New(), true, "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, tx.TxID, uuid.New(), "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, tx.TxID, uuid.New(), "")
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, domain.TxCompleted, isErr.From)

	_, err = svc.Cancel(ctx, tx.TxID, domain.PartyBuyer, "changed mind")
	require.ErrorAs(t, err, &isErr)
}

func TestCancel_AppliesRefundTier(t *testing.T) {
	svc, _, db := setupTxTest(t)
	ctx := context.Background()

	cases := []struct {
		status string
		refund float64
	}{
		{domain.TxInitiated, 100},
		{domain.TxSlotBooked, 90},
		{domain.TxBuyerVerified, 75},
		{domain.TxAllVerified, 75},
		{domain.TxDocumentsPending, 50},
		{domain.TxAdminReview, 25},
	}
	for _, tc := range cases {
		tx := seedTx(t, db, tc.status)
		out, err := svc.Cancel(ctx, tx.TxID, domain.PartyBuyer, "buyer backed out")
		require.NoError(t, err, tc.status)
		assert.Equal(t, domain.TxCancelled, out.Status, tc.status)
		require.NotNil(t, out.RefundPercent, tc.status)
		assert.Equal(t, tc.refund, *out.RefundPercent, tc.status)
		assert.Equal(t, tc.status, out.CancelledFromStatus)
		assert.Equal(t, domain.PartyBuyer, out.CancelledBy)

		var prop domain.Property
		require.NoError(t, db.Where("property_id = ?", tx.PropertyID).First(&prop).Error)
		assert.Equal(t, domain.PropertyListed, prop.Status, tc.status)
	}
}

func TestCancel_RequiresReason(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxInitiated)

	_, err := svc.Cancel(context.Background(), tx.TxID, domain.PartyBuyer, "")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestTransition_StaleVersionConflicts(t *testing.T) {
	_, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxInitiated)

	// Another writer bumps the version after our read.
	require.NoError(t, db.Model(&domain.Transaction{}).
		Where("tx_id = ?", tx.TxID).
		Update("version", tx.Version+1).Error)

	err := transition(db, tx, map[string]interface{}{"status": domain.TxSlotBooked})
	var cErr *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &cErr)

	// The stale write changed nothing.
	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, domain.TxInitiated, after.Status)
}

func TestListByRole_Scoping(t *testing.T) {
	svc, _, db := setupTxTest(t)
	ctx := context.Background()
	tx := seedTx(t, db, domain.TxInitiated)
	seedTx(t, db, domain.TxInitiated) // someone else's deal

	buyerList, err := svc.ListByRole(ctx, tx.BuyerID, domain.RoleBuyer)
	require.NoError(t, err)
	require.Len(t, buyerList, 1)
	assert.Equal(t, tx.TxID, buyerList[0].TxID)

	sellerList, err := svc.ListByRole(ctx, tx.SellerID, domain.RoleSeller)
	require.NoError(t, err)
	require.Len(t, sellerList, 1)

	adminList, err := svc.ListByRole(ctx, uuid.New(), domain.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, adminList, 2)

	_, err = svc.ListByRole(ctx, uuid.New(), "viewer")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestCommissionProjection_OnlyWhenCompleted(t *testing.T) {
	svc, _, db := setupTxTest(t)
	tx := seedTx(t, db, domain.TxAdminReview)

	_, err := svc.CommissionProjection(context.Background(), tx.TxID)
	var isErr *domain.InvalidStateError
	require.ErrorAs(t, err, &isErr)
}
