package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/jhoicas/ecf-dgii/docs"
	"github.com/jhoicas/ecf-dgii/internal/application/documents"
	"github.com/jhoicas/ecf-dgii/internal/application/lifecycle"
	"github.com/jhoicas/ecf-dgii/internal/application/sequence"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/ecf-dgii/internal/infrastructure/pdf"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/postgres"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/ecf-dgii/internal/interfaces/http"
	"github.com/jhoicas/ecf-dgii/pkg/config"
	"github.com/jhoicas/ecf-dgii/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("dgii_env", cfg.DGII.Environment).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(ctx, pool, log.Component("migrate")); err != nil {
			log.Fatal().Err(err).Msg("migración del esquema")
		}
	}

	collectors := metrics.New(prometheus.DefaultRegisterer)

	docRepo := postgres.NewDocumentRepository(pool)
	artifactRepo := postgres.NewArtifactRepository(pool)
	trackingRepo := postgres.NewTrackingRepository(pool)
	txRunner := postgres.NewTxRunner(pool)
	allocator := sequence.NewAllocator(postgres.NewSequenceStoreFromPool(pool), collectors, log.Zerolog())
	xmlBuilder := dgii.NewXMLBuilder()

	// Firma y DGII: sin certificado o credenciales el servicio arranca, pero
	// firmar y enviar responden con INVALID_CREDENTIAL.
	var (
		xmlSigner dgii.XMLSigner
		auth      lifecycle.Authenticator
		submitter lifecycle.Submitter
	)
	if cfg.DGII.CertPath != "" {
		cred, err := signer.LoadFromFiles(cfg.DGII.CertPath, cfg.DGII.KeyPath, cfg.DGII.CertPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("cargar certificado de firma")
		}
		log.Info().
			Str("subject", cred.Certificate.Subject.CommonName).
			Time("not_after", cred.Certificate.NotAfter).
			Msg("certificado de firma cargado")
		xmlSigner = signer.NewService(cred)
	} else {
		log.Warn().Msg("DGII_CERT_PATH vacío: la firma está deshabilitada")
	}

	if cfg.DGII.SubmissionEnabled() && xmlSigner != nil {
		endpoints, err := dgii.NewEndpoints(cfg.DGII.Environment, cfg.DGII.BaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("endpoints DGII")
		}
		auth = dgii.NewAuthClient(dgii.AuthClientConfig{
			Endpoints: endpoints,
			Username:  cfg.DGII.Username,
			Password:  cfg.DGII.Password,
			Timeout:   cfg.DGII.TrackTimeout,
		}, xmlSigner, collectors, log.Zerolog())
		submitter = dgii.NewSubmissionClient(dgii.SubmissionClientConfig{
			Endpoints:     endpoints,
			SubmitTimeout: cfg.DGII.SubmitTimeout,
			TrackTimeout:  cfg.DGII.TrackTimeout,
			TrackRate:     cfg.DGII.TrackRate,
		}, collectors, log.Zerolog())
		log.Info().Str("base_url", endpoints.Base).Msg("envío a la DGII habilitado")
	} else {
		log.Warn().Msg("credenciales DGII incompletas: envío y consulta deshabilitados")
	}

	// Espejo opcional de XML firmados
	var (
		mirror    *storage.S3Mirror
		presigner httpRouter.Presigner
	)
	if cfg.Storage.Enabled() {
		mirror, err = storage.NewS3Mirror(ctx, cfg.Storage, log.Zerolog())
		if err != nil {
			log.Fatal().Err(err).Msg("almacenamiento S3")
		}
		presigner = mirror
		log.Info().Str("bucket", cfg.Storage.Bucket).Msg("espejo S3 habilitado")
	}

	coordinator := lifecycle.NewCoordinator(lifecycle.Deps{
		Documents: docRepo,
		Artifacts: artifactRepo,
		Tracking:  trackingRepo,
		Tx:        txRunner,
		Allocator: allocator,
		Builder:   xmlBuilder,
		Signer:    xmlSigner,
		Auth:      auth,
		Submitter: submitter,
		Mirror:    artifactMirror(mirror),
		Metrics:   collectors,
		Logger:    log.Zerolog(),
	}, lifecycle.PollConfig{
		Concurrency: cfg.DGII.PollConcurrency,
		BatchSize:   cfg.DGII.PollBatchSize,
	})

	// PDF: representación impresa del e-CF con QR
	documentSvc := documents.NewService(documents.Deps{
		Documents: docRepo,
		Artifacts: artifactRepo,
		Builder:   xmlBuilder,
		Signer:    xmlSigner,
		Mirror:    artifactMirror(mirror),
		PDF:       infrapdf.NewMarotoPDFGenerator(),
		Logger:    log.Zerolog(),
	})

	if cfg.DGII.PollInterval > 0 && submitter != nil {
		go coordinator.RunPoller(ctx, cfg.DGII.PollInterval)
		log.Info().Dur("interval", cfg.DGII.PollInterval).Msg("sondeo de documentos en proceso activo")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.DGII.SubmitTimeout + 30*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "e-CF DGII API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Lifecycle:      coordinator,
		Representation: documentSvc,
		Artifacts:      documentSvc,
		Presigner:      presigner,
		Sequences:      allocator,
		JWTSecret:      cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

// artifactMirror evita pasar un *S3Mirror nil envuelto en una interfaz no nil.
func artifactMirror(m *storage.S3Mirror) documents.Mirror {
	if m == nil {
		return nil
	}
	return m
}
