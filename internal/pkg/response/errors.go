package response

import (
	"errors"

	"nestfind-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// FromError maps the domain failure kinds to HTTP statuses and sends the
// standard error format. Anything unrecognized is a 500 with a generic message.
func FromError(c *fiber.Ctx, err error) error {
	var (
		invalidState *domain.InvalidStateError
		precondition *domain.PreconditionFailedError
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		conflict     *domain.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &invalidState):
		return Error(c, err.Error(), fiber.StatusConflict, fiber.Map{"from_status": invalidState.From})
	case errors.As(err, &precondition):
		return Error(c, err.Error(), fiber.StatusPreconditionFailed, nil)
	case errors.As(err, &validation):
		return Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case errors.As(err, &notFound):
		return Error(c, err.Error(), fiber.StatusNotFound, nil)
	case errors.As(err, &conflict):
		return Error(c, err.Error(), fiber.StatusConflict, nil)
	}
	return Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
