package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/swaggo/swag"

	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	"github.com/jhoicas/ecf-dgii/pkg/jwt"
)

// RouterDeps dependencias para el router. Presigner puede ser nil.
type RouterDeps struct {
	Lifecycle      DocumentLifecycle
	Representation Representation
	Artifacts      ArtifactIssuer
	Presigner      Presigner
	Sequences      SequenceAdmin
	JWTSecret      string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	// Documento OpenAPI registrado en swag (público)
	api.Get("/openapi.json", func(c *fiber.Ctx) error {
		doc, err := swag.ReadDoc()
		if err != nil {
			return respondError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(doc)
	})

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	anyRole := RequireRole(jwt.RoleOperator, jwt.RoleViewer)
	operator := RequireRole(jwt.RoleOperator)

	// Documentos e-CF
	docs := protected.Group("/documents")
	documentHandler := NewDocumentHandler(deps.Lifecycle, deps.Representation)
	docs.Post("/", operator, documentHandler.Register)
	docs.Get("/:id", anyRole, documentHandler.Get)
	docs.Put("/:id", operator, documentHandler.Replace)
	docs.Post("/:id/finalize", operator, documentHandler.Finalize)
	docs.Post("/:id/build", operator, documentHandler.Build)
	docs.Post("/:id/sign", operator, documentHandler.Sign)
	docs.Post("/:id/submit", operator, documentHandler.Submit)
	docs.Post("/:id/track", operator, documentHandler.Track)
	docs.Post("/:id/retry", operator, documentHandler.Retry)
	docs.Post("/:id/abort", operator, documentHandler.Abort)
	docs.Get("/:id/xml", anyRole, documentHandler.SignedXML)
	docs.Get("/:id/tracking", anyRole, documentHandler.Tracking)
	docs.Get("/:id/qr", anyRole, documentHandler.QR)
	docs.Get("/:id/pdf", anyRole, documentHandler.PDF)

	protected.Post("/tracking/poll", operator, documentHandler.Poll)

	// Artefactos firmados que no son e-CF propios
	artifacts := protected.Group("/artifacts")
	artifactHandler := NewArtifactHandler(deps.Artifacts, deps.Presigner)
	artifacts.Post("/approvals", operator, artifactHandler.Approve)
	artifacts.Post("/acknowledgments", operator, artifactHandler.Acknowledge)
	artifacts.Post("/cancellations", operator, artifactHandler.Cancel)
	artifacts.Post("/summaries", operator, artifactHandler.Summarize)
	artifacts.Get("/", anyRole, artifactHandler.List)
	artifacts.Get("/:id", anyRole, artifactHandler.Get)
	artifacts.Get("/:id/xml", anyRole, artifactHandler.XML)
	artifacts.Get("/:id/url", anyRole, artifactHandler.URL)

	// Rangos de e-NCF
	sequences := protected.Group("/sequences")
	sequenceHandler := NewSequenceHandler(deps.Sequences)
	sequences.Get("/", anyRole, sequenceHandler.List)
	sequences.Post("/", operator, sequenceHandler.Register)
	sequences.Patch("/:type", operator, sequenceHandler.Extend)
}
