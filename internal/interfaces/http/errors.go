package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

type errorMapping struct {
	kind   error
	status int
	code   string
}

// El orden importa: *domain.Error desenvuelve a su clase y a su causa.
var errorMappings = []errorMapping{
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrSchemaViolation, fiber.StatusUnprocessableEntity, "SCHEMA_VIOLATION"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{domain.ErrAlreadySubmitted, fiber.StatusConflict, "ALREADY_SUBMITTED"},
	{domain.ErrInvalidTransition, fiber.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrSequenceExhausted, fiber.StatusConflict, "SEQUENCE_EXHAUSTED"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{domain.ErrInvalidCredential, fiber.StatusServiceUnavailable, "INVALID_CREDENTIAL"},
	{domain.ErrCredentialRejected, fiber.StatusBadGateway, "CREDENTIAL_REJECTED"},
	{domain.ErrSubmissionRejected, fiber.StatusBadGateway, "SUBMISSION_REJECTED"},
	{domain.ErrAuthUnavailable, fiber.StatusServiceUnavailable, "AUTH_UNAVAILABLE"},
	{domain.ErrTransient, fiber.StatusGatewayTimeout, "TRANSIENT"},
}

// statusFor traduce un error de dominio a código HTTP y código de error.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

// respondError responde con dto.ErrorResponse.
func respondError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

// respondOperationError incluye el texto de la DGII y el documento, si lo hay.
func respondOperationError(c *fiber.Ctx, doc *entity.FiscalDocument, err error) error {
	status, code := statusFor(err)
	body := dto.OperationErrorResponse{
		ErrorResponse:    dto.ErrorResponse{Code: code, Message: err.Error()},
		AuthorityMessage: domain.RawMessage(err),
	}
	if doc != nil {
		d := dto.NewDocumentResponse(doc)
		body.Document = &d
	}
	return c.Status(status).JSON(body)
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
