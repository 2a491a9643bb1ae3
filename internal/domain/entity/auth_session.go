package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AuthSession token Bearer obtenido tras validar la semilla. No se persiste:
// vive lo que dura un lote de envío/consulta.
type AuthSession struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time // cero si la DGII no informó vencimiento
}

// Expired indica si el token ya no debe usarse.
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Fingerprint referencia corta del token para bitácoras y TrackingRecord.
func (s *AuthSession) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Token))
	return hex.EncodeToString(sum[:6])
}
