package verification

import (
	verifysvc "nestfind-backend/internal/application/verification"
	"nestfind-backend/internal/middleware"
	"nestfind-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *verifysvc.Service
}

func agentID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(middleware.UserIDFromUser(middleware.GetUser(c)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Start POST /api/v1/verification/start
func (h *Handlers) Start(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		PartyRole     string `json:"party_role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	agent, ok := agentID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	a, err := h.Service.Start(c.Context(), txID, agent, body.PartyRole)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Verification started", a, nil)
}

// SubmitLocation POST /api/v1/verification/location
func (h *Handlers) SubmitLocation(c *fiber.Ctx) error {
	var body struct {
		AttemptID string  `json:"attempt_id"`
		Lat       float64 `json:"lat"`
		Lng       float64 `json:"lng"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	a, err := h.Service.SubmitLocation(c.Context(), attemptID, body.Lat, body.Lng)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Location check passed", a, nil)
}

// RequestOTP POST /api/v1/verification/request-otp
func (h *Handlers) RequestOTP(c *fiber.Ctx) error {
	var body struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	a, err := h.Service.RequestOTP(c.Context(), attemptID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "OTP sent", a, nil)
}

// VerifyOTP POST /api/v1/verification/verify-otp
func (h *Handlers) VerifyOTP(c *fiber.Ctx) error {
	var body struct {
		AttemptID string `json:"attempt_id"`
		Code      string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.Code == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	a, err := h.Service.VerifyOTP(c.Context(), attemptID, body.Code)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "OTP verified", a, nil)
}

// Checklist POST /api/v1/verification/checklist
func (h *Handlers) Checklist(c *fiber.Ctx) error {
	var body struct {
		AttemptID string          `json:"attempt_id"`
		Items     map[string]bool `json:"items"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	a, err := h.Service.UpdateChecklist(c.Context(), attemptID, body.Items)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Checklist saved", a, nil)
}

// Finalize POST /api/v1/verification/finalize
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	var body struct {
		AttemptID string `json:"attempt_id"`
		Approve   bool   `json:"approve"`
		Reason    string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	attemptID, err := uuid.Parse(body.AttemptID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for attempt_id", 400, nil)
	}

	a, warnings, err := h.Service.Finalize(c.Context(), attemptID, body.Approve, body.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	meta := fiber.Map{}
	if len(warnings) > 0 {
		meta["warnings"] = warnings
	}
	return response.Success(c, "Verification finalized", a, meta)
}
