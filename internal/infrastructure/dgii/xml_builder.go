package dgii

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

const (
	// XML Schema Instance (para schemaLocation)
	nsXsi = "http://www.w3.org/2001/XMLSchema-instance"

	signaturePlaceholder = "Signature"
	indentSpaces         = 2
)

// Payload variante etiquetada por tipo de artefacto; solo el campo que
// corresponde a Kind debe venir informado.
type Payload struct {
	Kind           string // entity.Artifact*
	Document       *entity.FiscalDocument
	Approval       *entity.CommercialApproval
	Acknowledgment *entity.ReceiptAcknowledgment
	Cancellation   *entity.CancellationBatch
	Summary        *entity.ConsumerSummary
}

// XMLBuilder despacha cada Payload a su builder.
type XMLBuilder struct {
	invoice        InvoiceBuilder
	approval       ApprovalBuilder
	acknowledgment AcknowledgmentBuilder
	cancellation   CancellationBuilder
	summary        SummaryBuilder
}

// NewXMLBuilder crea el despachador con todos los builders.
func NewXMLBuilder() *XMLBuilder {
	return &XMLBuilder{}
}

// Build devuelve el árbol XML sin firmar.
func (b *XMLBuilder) Build(p Payload) (*etree.Document, error) {
	switch p.Kind {
	case entity.ArtifactECF:
		return b.invoice.Build(p.Document)
	case entity.ArtifactApproval:
		return b.approval.Build(p.Approval)
	case entity.ArtifactAcknowledgment:
		return b.acknowledgment.Build(p.Acknowledgment)
	case entity.ArtifactCancellation:
		return b.cancellation.Build(p.Cancellation)
	case entity.ArtifactSummary:
		return b.summary.Build(p.Summary)
	default:
		return nil, fmt.Errorf("dgii: tipo de artefacto desconocido %q", p.Kind)
	}
}

// BuildBytes construye y serializa.
func (b *XMLBuilder) BuildBytes(p Payload) ([]byte, error) {
	doc, err := b.Build(p)
	if err != nil {
		return nil, err
	}
	return Serialize(doc)
}

// Serialize escribe el documento con indentación de dos espacios.
func Serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(indentSpaces)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("dgii: serializar XML: %w", err)
	}
	return out, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

func addText(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// addOptional solo crea el elemento si hay valor.
func addOptional(parent *etree.Element, tag, value string) {
	if v := strings.TrimSpace(value); v != "" {
		addText(parent, tag, v)
	}
}

// ensureChild devuelve el hijo existente o lo crea; created indica si es nuevo.
func ensureChild(parent *etree.Element, tag string) (el *etree.Element, created bool) {
	if el = parent.SelectElement(tag); el != nil {
		return el, false
	}
	return parent.CreateElement(tag), true
}

// requirements acumula los campos obligatorios ausentes para reportarlos juntos.
type requirements struct {
	doc     string
	missing []string
}

func newRequirements(doc string) *requirements {
	return &requirements{doc: doc}
}

func (r *requirements) need(path, value string) {
	if strings.TrimSpace(value) == "" {
		r.missing = append(r.missing, path)
	}
}

func (r *requirements) check(ok bool, msg string) {
	if !ok {
		r.missing = append(r.missing, msg)
	}
}

func (r *requirements) err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return domain.NewError(domain.ErrSchemaViolation, "build", "",
		fmt.Errorf("%s: %s", r.doc, strings.Join(r.missing, "; ")))
}
