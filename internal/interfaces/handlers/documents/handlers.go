package documents

import (
	docsvc "nestfind-backend/internal/application/documents"
	"nestfind-backend/internal/middleware"
	"nestfind-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *docsvc.Service
}

// Upload POST /api/v1/documents/upload
func (h *Handlers) Upload(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
		UploaderRole  string `json:"uploader_role"`
		DocumentType  string `json:"document_type"`
		FileURL       string `json:"file_url"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	uploaderID, err := uuid.Parse(middleware.UserIDFromUser(middleware.GetUser(c)))
	if err != nil {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	doc, err := h.Service.Upload(c.Context(), txID, uploaderID, body.UploaderRole, body.DocumentType, body.FileURL)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Document uploaded", doc, nil)
}

// ListByTransaction GET /api/v1/documents/by-transaction/:id
func (h *Handlers) ListByTransaction(c *fiber.Ctx) error {
	txID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction id", 400, nil)
	}
	docs, err := h.Service.ListByTransaction(c.Context(), txID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Documents retrieved", fiber.Map{
		"documents": docs,
		"count":     len(docs),
	}, nil)
}

// Verify POST /api/v1/documents/verify — admin only (route-gated).
func (h *Handlers) Verify(c *fiber.Ctx) error {
	var body struct {
		DocumentID string `json:"document_id"`
		Approved   *bool  `json:"approved"`
		Notes      string `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.Approved == nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	docID, err := uuid.Parse(body.DocumentID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for document_id", 400, nil)
	}
	adminID, err := uuid.Parse(middleware.UserIDFromUser(middleware.GetUser(c)))
	if err != nil {
		return response.Error(c, "Invalid session user", 401, nil)
	}

	doc, err := h.Service.Verify(c.Context(), docID, adminID, *body.Approved, body.Notes)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Document reviewed", doc, nil)
}
