package transactions

import (
	"time"

	txsvc "nestfind-backend/internal/application/transactions"
	"nestfind-backend/internal/domain"
	"nestfind-backend/internal/middleware"
	"nestfind-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *txsvc.Service
}

func actor(c *fiber.Ctx) (uuid.UUID, string, bool) {
	user := middleware.GetUser(c)
	id, err := uuid.Parse(middleware.UserIDFromUser(user))
	if err != nil {
		return uuid.Nil, "", false
	}
	return id, middleware.RoleFromUser(user), true
}

// Get GET /api/v1/transactions/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction id", 400, nil)
	}
	t, err := h.Service.Get(c.Context(), txID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction retrieved", t, nil)
}

// List GET /api/v1/transactions — scoped by the session role.
func (h *Handlers) List(c *fiber.Ctx) error {
	userID, role, ok := actor(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}
	list, err := h.Service.ListByRole(c.Context(), userID, role)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transactions retrieved", list, nil)
}

// BookSlot POST /api/v1/transactions/book-slot
func (h *Handlers) BookSlot(c *fiber.Ctx) error {
	var body struct {
		TransactionID       string    `json:"transaction_id"`
		RegistrationOffice  string    `json:"registration_office"`
		RegistrationAddress string    `json:"registration_address"`
		RegistrationTime    time.Time `json:"registration_time"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}

	t, err := h.Service.BookSlot(c.Context(), txID, body.RegistrationOffice, body.RegistrationAddress, body.RegistrationTime)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Slot booked", t, nil)
}

// SubmitPartyVerification POST /api/v1/transactions/submit-party-verification
// Consumes a finalized verification attempt into the transaction lifecycle.
func (h *Handlers) SubmitPartyVerification(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		AttemptID     string `json:"attempt_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	t, err := h.Service.RecordPartyVerification(c.Context(), txID, attemptID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Party verification recorded", t, nil)
}

// RecordSellerPayment POST /api/v1/transactions/record-seller-payment
func (h *Handlers) RecordSellerPayment(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		Reference     string `json:"reference"`
		Method        string `json:"method"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}

	t, err := h.Service.RecordSellerPayment(c.Context(), txID, body.Reference, body.Method)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Seller payment recorded", t, nil)
}

// SubmitForReview POST /api/v1/transactions/submit-for-review
func (h *Handlers) SubmitForReview(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}

	t, err := h.Service.SubmitForReview(c.Context(), txID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Submitted for admin review", t, nil)
}

// Approve POST /api/v1/transactions/approve — admin only (route-gated).
func (h *Handlers) Approve(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		Notes         string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	adminID, _, ok := actor(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	t, err := h.Service.Approve(c.Context(), txID, adminID, body.Notes)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction approved", t, nil)
}

// cancellingParty maps a session role to the party recorded on cancellation.
var cancellingParty = map[string]string{
	domain.RoleBuyer:  domain.PartyBuyer,
	domain.RoleSeller: domain.PartySeller,
	domain.RoleAgent:  domain.PartyAgent,
	domain.RoleAdmin:  "ADMIN",
}

// Cancel POST /api/v1/transactions/cancel — the cancelled_by attribution comes
// from the session, not the body; only an admin may record the cancellation on
// another party's behalf.
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		ByRole        string `json:"by_role"`
		Reason        string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	_, role, ok := actor(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}
	by := cancellingParty[role]
	if by == "" {
		return response.Error(c, "User is Forbidden from performing this action", 403, nil)
	}
	if role == domain.RoleAdmin && body.ByRole != "" {
		by = body.ByRole
	}

	t, err := h.Service.Cancel(c.Context(), txID, by, body.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Transaction cancelled", t, nil)
}

// Commission GET /api/v1/transactions/:id/commission — frozen split of a
// completed transaction.
func (h *Handlers) Commission(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction id", 400, nil)
	}
	split, err := h.Service.CommissionProjection(c.Context(), txID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Commission retrieved", split, nil)
}
