package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	docsvc "nestfind-backend/internal/application/documents"
	txsvc "nestfind-backend/internal/application/transactions"
	"nestfind-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret"

func setupWebhookApp(t *testing.T) (*fiber.App, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Property{}, &domain.Transaction{}, &domain.TransactionDocument{}))

	wh := &WebhookHandler{
		Transactions:  &txsvc.Service{DB: db, Gate: &docsvc.Service{DB: db}},
		WebhookSecret: testSecret,
	}
	app := fiber.New()
	app.Post("/api/v1/stripe/webhook", wh.HandleWebhook)
	return app, db
}

func signPayload(payload []byte, ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, sig string) int {
	req := httptest.NewRequest("POST", "/api/v1/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func paymentSucceededPayload(txID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_test_123",
			"amount_received": 1000000,
			"currency": "inr",
			"status": "succeeded",
			"metadata": {"transaction_id": %q}
		}}
	}`, txID.String()))
}

func TestWebhook_RecordsSellerPayment(t *testing.T) {
	app, db := setupWebhookApp(t)

	tx := domain.Transaction{
		PropertyID: uuid.New(),
		BuyerID:    uuid.New(),
		SellerID:   uuid.New(),
		TotalPrice: 10_000_000,
		Status:     domain.TxAllVerified,
	}
	require.NoError(t, db.Create(&tx).Error)

	payload := paymentSucceededPayload(tx.TxID)
	status := postWebhook(t, app, payload, signPayload(payload, time.Now().Unix(), testSecret))
	assert.Equal(t, 200, status)

	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, domain.TxDocumentsPending, after.Status)
	assert.Equal(t, "pi_test_123", after.SellerPaymentReference)
	assert.Equal(t, "stripe", after.SellerPaymentMethod)
	require.NotNil(t, after.SellerPaidAt)
}

func TestWebhook_BadSignature(t *testing.T) {
	app, db := setupWebhookApp(t)

	tx := domain.Transaction{
		PropertyID: uuid.New(),
		BuyerID:    uuid.New(),
		SellerID:   uuid.New(),
		TotalPrice: 10_000_000,
		Status:     domain.TxAllVerified,
	}
	require.NoError(t, db.Create(&tx).Error)
	payload := paymentSucceededPayload(tx.TxID)

	// Missing header.
	assert.Equal(t, 400, postWebhook(t, app, payload, ""))

	// Wrong secret.
	assert.Equal(t, 400, postWebhook(t, app, payload, signPayload(payload, time.Now().Unix(), "whsec_other")))

	// Stale timestamp.
	stale := time.Now().Add(-10 * time.Minute).Unix()
	assert.Equal(t, 400, postWebhook(t, app, payload, signPayload(payload, stale, testSecret)))

	// Tampered body.
	sig := signPayload(payload, time.Now().Unix(), testSecret)
	tampered := bytes.Replace(payload, []byte("pi_test_123"), []byte("pi_evil_999"), 1)
	assert.Equal(t, 400, postWebhook(t, app, tampered, sig))

	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, domain.TxAllVerified, after.Status)
}

func TestWebhook_WrongStateStillAcks(t *testing.T) {
	app, db := setupWebhookApp(t)

	tx := domain.Transaction{
		PropertyID: uuid.New(),
		BuyerID:    uuid.New(),
		SellerID:   uuid.New(),
		TotalPrice: 10_000_000,
		Status:     domain.TxInitiated,
	}
	require.NoError(t, db.Create(&tx).Error)

	// A domain error is acked with 200 so the provider stops retrying.
	payload := paymentSucceededPayload(tx.TxID)
	status := postWebhook(t, app, payload, signPayload(payload, time.Now().Unix(), testSecret))
	assert.Equal(t, 200, status)

	var after domain.Transaction
	require.NoError(t, db.Where("tx_id = ?", tx.TxID).First(&after).Error)
	assert.Equal(t, domain.TxInitiated, after.Status)
}

func TestWebhook_IgnoresOtherEventTypes(t *testing.T) {
	app, _ := setupWebhookApp(t)

	payload := []byte(`{"id": "evt_2", "type": "charge.refunded", "data": {"object": {}}}`)
	status := postWebhook(t, app, payload, signPayload(payload, time.Now().Unix(), testSecret))
	assert.Equal(t, 200, status)
}
