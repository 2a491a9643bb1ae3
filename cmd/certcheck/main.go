// certcheck verifica la credencial de firma configurada: la carga, muestra
// titular y vigencia, firma un XML de prueba y valida la firma. Con -auth
// además completa la autenticación contra la DGII.
//
// Uso: go run ./cmd/certcheck [-cert ruta] [-key ruta] [-password clave] [-auth]
// Sin flags toma DGII_CERT_PATH, DGII_KEY_PATH y DGII_CERT_PASSWORD.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	"github.com/jhoicas/ecf-dgii/pkg/config"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
	"github.com/jhoicas/ecf-dgii/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("configuración", err)
	}

	certPath := flag.String("cert", cfg.DGII.CertPath, "certificado .pem, .p12 o .pfx")
	keyPath := flag.String("key", cfg.DGII.KeyPath, "llave PEM si el certificado no la incluye")
	password := flag.String("password", cfg.DGII.CertPassword, "contraseña del certificado o la llave")
	withAuth := flag.Bool("auth", false, "autenticarse contra la DGII con DGII_USERNAME/DGII_PASSWORD")
	flag.Parse()

	if *certPath == "" {
		fail("certificado", fmt.Errorf("indique -cert o DGII_CERT_PATH"))
	}

	fmt.Println("Verificación de certificado de firma")
	fmt.Println("------------------------------------")
	fmt.Printf("Archivo:  %s\n", *certPath)

	cred, err := signer.LoadFromFiles(*certPath, *keyPath, *password)
	if err != nil {
		fail("cargar credencial", err)
	}
	cert := cred.Certificate
	days := int(time.Until(cert.NotAfter).Hours() / 24)
	fmt.Printf("Titular:  %s\n", cert.Subject.String())
	fmt.Printf("Emisor:   %s\n", cert.Issuer.String())
	fmt.Printf("Vigencia: %s a %s (%d días restantes)\n",
		ecf.FormatDateTime(cert.NotBefore), ecf.FormatDateTime(cert.NotAfter), days)
	if days < 0 {
		fail("vigencia", fmt.Errorf("el certificado está vencido"))
	}

	svc := signer.NewService(cred)
	probe := []byte(fmt.Sprintf("<SemillaModel><valor>%s</valor><fecha>%s</fecha></SemillaModel>",
		uuid.NewString(), ecf.FormatDateTime(time.Now())))
	res, err := svc.Sign(probe)
	if err != nil {
		fail("firmar XML de prueba", err)
	}
	if err := signer.Verify(res.SignedXML, cert); err != nil {
		fail("verificar firma", err)
	}
	fmt.Printf("Firma:    OK (código de seguridad %s)\n", res.SecurityCode)

	if !*withAuth {
		return
	}
	endpoints, err := dgii.NewEndpoints(cfg.DGII.Environment, cfg.DGII.BaseURL)
	if err != nil {
		fail("endpoints DGII", err)
	}
	if cfg.DGII.Username == "" || cfg.DGII.Password == "" {
		fail("autenticación", fmt.Errorf("DGII_USERNAME y DGII_PASSWORD son requeridos"))
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: os.Stderr})
	auth := dgii.NewAuthClient(dgii.AuthClientConfig{
		Endpoints: endpoints,
		Username:  cfg.DGII.Username,
		Password:  cfg.DGII.Password,
		Timeout:   cfg.DGII.SubmitTimeout,
	}, svc, metrics.New(prometheus.NewRegistry()), log.Component("certcheck"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	session, err := auth.Authenticate(ctx)
	if err != nil {
		fail("autenticación DGII", err)
	}
	fmt.Printf("DGII:     autenticado en %s (token %s, expira %s)\n",
		cfg.DGII.Environment, session.Fingerprint(), ecf.FormatDateTime(session.ExpiresAt))
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "ERROR %s: %v\n", step, err)
	os.Exit(1)
}
