package handlers

import (
	"alumnichat/server/internal/apperror"
	"alumnichat/server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError writes the error envelope for err. Internal errors are logged
// and reported with a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := apperror.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": apperror.PublicMessage(err),
	})
}

// parseBody decodes and validates the request body into out.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperror.Validation("Invalid request body")
	}
	return utils.ValidateStruct(out)
}
