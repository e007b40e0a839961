package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/xsm-market/backend/internal/apperr"
	"github.com/xsm-market/backend/internal/http/dto"
)

// respondError maps the error taxonomy to an HTTP status. Internal causes are
// never leaked to the client; only the taxonomy message is.
func respondError(c *fiber.Ctx, err error) error {
	code := apperr.CodeOf(err)

	message := "internal error"
	var e *apperr.Error
	if errors.As(err, &e) && code != apperr.CodeInternal {
		message = e.Message
	}

	return c.Status(apperr.HTTPStatus(code)).JSON(dto.ErrorResponse{
		Error: message,
		Code:  string(code),
	})
}
