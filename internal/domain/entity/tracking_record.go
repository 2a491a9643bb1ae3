package entity

import (
	"strings"
	"time"
)

// TrackingState estado local derivado de la respuesta de la DGII.
type TrackingState string

const (
	TrackingPending  TrackingState = "pending"
	TrackingAccepted TrackingState = "accepted"
	TrackingRejected TrackingState = "rejected"
)

// Terminal indica si ya no se debe seguir consultando.
func (s TrackingState) Terminal() bool {
	return s == TrackingAccepted || s == TrackingRejected
}

// TrackingResult respuesta de una consulta de estado.
type TrackingResult struct {
	State          TrackingState
	AuthorityState string   // valor crudo de "estado"
	Messages       []string // mensajes en el orden recibido
}

// Reason concatena los mensajes de rechazo.
func (r TrackingResult) Reason() string {
	return strings.Join(r.Messages, "\n")
}

// TrackingRecord seguimiento de un envío (TrackID). UpdatedAt avanza con cada
// consulta, exitosa o no; LastError conserva el último fallo de consulta.
type TrackingRecord struct {
	TrackID        string
	DocumentID     string
	AuthTokenRef   string
	LastState      TrackingState
	AuthorityState string
	Messages       []string
	PollCount      int
	LastError      string
	LastErrorAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal indica que el registro ya no se actualiza.
func (r *TrackingRecord) Terminal() bool {
	return r.LastState.Terminal()
}
