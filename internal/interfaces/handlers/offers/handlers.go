package offers

import (
	"time"

	offersvc "nestfind-backend/internal/application/offers"
	"nestfind-backend/internal/middleware"
	"nestfind-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *offersvc.Service
}

func actorID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(middleware.UserIDFromUser(middleware.GetUser(c)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateOffer POST /api/v1/offers/create-offer
func (h *Handlers) CreateOffer(c *fiber.Ctx) error {
	var body struct {
		PropertyID string     `json:"property_id"`
		Amount     float64    `json:"amount"`
		ExpiresAt  *time.Time `json:"expires_at"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.PropertyID == "" || body.Amount == 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	propertyID, err := uuid.Parse(body.PropertyID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for property_id", 400, nil)
	}
	buyerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	offer, err := h.Service.Create(c.Context(), buyerID, propertyID, body.Amount, body.ExpiresAt)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Offer created", offer, nil)
}

// Respond POST /api/v1/offers/respond — seller accept/reject/counter.
func (h *Handlers) Respond(c *fiber.Ctx) error {
	var body struct {
		OfferID      string  `json:"offer_id"`
		Action       string  `json:"action"`
		CounterPrice float64 `json:"counter_price"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	offerID, err := uuid.Parse(body.OfferID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for offer_id", 400, nil)
	}
	sellerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	offer, tx, err := h.Service.SellerRespond(c.Context(), offerID, sellerID, body.Action, body.CounterPrice)
	if err != nil {
		return response.FromError(c, err)
	}
	data := fiber.Map{"offer": offer}
	if tx != nil {
		data["transaction"] = tx
	}
	return response.Success(c, "Offer response recorded", data, nil)
}

// RespondCounter POST /api/v1/offers/respond-counter — buyer accept/counter.
func (h *Handlers) RespondCounter(c *fiber.Ctx) error {
	var body struct {
		OfferID string  `json:"offer_id"`
		Action  string  `json:"action"`
		Amount  float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	offerID, err := uuid.Parse(body.OfferID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for offer_id", 400, nil)
	}
	buyerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	offer, tx, err := h.Service.BuyerRespondCounter(c.Context(), offerID, buyerID, body.Action, body.Amount)
	if err != nil {
		return response.FromError(c, err)
	}
	data := fiber.Map{"offer": offer}
	if tx != nil {
		data["transaction"] = tx
	}
	return response.Success(c, "Counter response recorded", data, nil)
}

// Withdraw POST /api/v1/offers/withdraw
func (h *Handlers) Withdraw(c *fiber.Ctx) error {
	var body struct {
		OfferID string `json:"offer_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	offerID, err := uuid.Parse(body.OfferID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for offer_id", 400, nil)
	}
	buyerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	offer, err := h.Service.Withdraw(c.Context(), offerID, buyerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offer withdrawn", offer, nil)
}

// ListBuyer GET /api/v1/offers/buyer
func (h *Handlers) ListBuyer(c *fiber.Ctx) error {
	buyerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}
	list, err := h.Service.ListByBuyer(c.Context(), buyerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offers retrieved", list, nil)
}

// ListSeller GET /api/v1/offers/seller
func (h *Handlers) ListSeller(c *fiber.Ctx) error {
	sellerID, ok := actorID(c)
	if !ok {
		return response.Error(c, "Invalid session user", 401, nil)
	}
	list, err := h.Service.ListBySeller(c.Context(), sellerID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Offers retrieved", list, nil)
}
