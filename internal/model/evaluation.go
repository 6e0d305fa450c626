// Package model defines the records shared by the evaluation data pipeline.
package model

import "time"

// Category is a canonical risk resolution outcome.
type Category string

const (
	CategoryApproved             Category = "Aprobado"
	CategoryApprovedWithProposal Category = "Aprobado con propuesta"
	CategoryReturnedToSales      Category = "Devuelto a comercial"
	CategoryRejected             Category = "Rechazado"
	CategoryUnknown              Category = "Desconocido"
	CategoryPending              Category = "0" // not yet evaluated
)

// Categories returns the canonical categories in display order.
func Categories() []Category {
	return []Category{
		CategoryUnknown,
		CategoryApproved,
		CategoryApprovedWithProposal,
		CategoryReturnedToSales,
		CategoryRejected,
		CategoryPending,
	}
}

// IsCanonical reports whether c is one of the canonical categories.
func (c Category) IsCanonical() bool {
	for _, k := range Categories() {
		if c == k {
			return true
		}
	}
	return false
}

// Analyst placeholders.
const (
	AnalystNotRequested = "N/A"
	AnalystUnknown      = "Desconocido"
)

// EvaluationRecord is one risk-evaluation case.
type EvaluationRecord struct {
	SubjectID    string    `json:"subject_id"`
	Category     Category  `json:"resolucion_riesgo"`
	CreatedAt    time.Time `json:"fecha_creacion"` // always UTC
	Analyst      string    `json:"analista_riesgo,omitempty"`
	Status       string    `json:"status,omitempty"`
	EvaluationID string    `json:"evaluation_id,omitempty"`
}
