package dgii

import (
	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ApprovalBuilder aprobación comercial (ACECF).
type ApprovalBuilder struct{}

// Build genera DetailApprovalCommercial con el placeholder de firma al final.
func (ApprovalBuilder) Build(a *entity.CommercialApproval) (*etree.Document, error) {
	r := newRequirements("aprobación comercial")
	if a == nil {
		r.check(false, "aprobación nula")
		return nil, r.err()
	}
	requireCommercialIdentity(r, a.IssuerRNC, a.BuyerRNC, a.NCF)
	r.check(!a.At.IsZero(), "FechaHoraAprobacion")
	if !a.Approved {
		_, ok := ecf.ApprovalReasonCodes[a.ReasonCode]
		r.check(ok, "CodigoMotivo (obligatorio y válido cuando se rechaza)")
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	doc := newDocument()
	root := doc.CreateElement("DetailApprovalCommercial")
	addText(root, "Version", ecf.SchemaVersion)
	addText(root, "RNCEmisor", ecf.NormalizeTaxID(a.IssuerRNC))
	addText(root, "RNCComprador", ecf.NormalizeTaxID(a.BuyerRNC))
	addText(root, "NCF", a.NCF)
	addText(root, "MontoTotal", fiscal.FormatAmount(a.Total))
	if a.Approved {
		addText(root, "Estado", ecf.ApprovalAccepted)
	} else {
		addText(root, "Estado", ecf.ApprovalRejected)
		addText(root, "CodigoMotivo", a.ReasonCode)
	}
	addText(root, "FechaHoraAprobacion", ecf.FormatDateTime(a.At))
	root.CreateElement(signaturePlaceholder)
	return doc, nil
}

// AcknowledgmentBuilder acuse de recibo (ARECF).
type AcknowledgmentBuilder struct{}

// Build genera AcknowledgementDetail con el placeholder de firma al final.
func (AcknowledgmentBuilder) Build(a *entity.ReceiptAcknowledgment) (*etree.Document, error) {
	r := newRequirements("acuse de recibo")
	if a == nil {
		r.check(false, "acuse nulo")
		return nil, r.err()
	}
	requireCommercialIdentity(r, a.IssuerRNC, a.BuyerRNC, a.NCF)
	r.check(!a.At.IsZero(), "FechaHoraAcuseRecibo")
	if !a.Received {
		_, ok := ecf.AckReasonCodes[a.ReasonCode]
		r.check(ok, "CodigoMotivoNoRecibido (obligatorio y válido cuando no se recibe)")
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	doc := newDocument()
	root := doc.CreateElement("AcknowledgementDetail")
	addText(root, "Version", ecf.SchemaVersion)
	addText(root, "RNCEmisor", ecf.NormalizeTaxID(a.IssuerRNC))
	addText(root, "RNCComprador", ecf.NormalizeTaxID(a.BuyerRNC))
	addText(root, "NCF", a.NCF)
	if a.Received {
		addText(root, "Estado", ecf.AckReceived)
	} else {
		addText(root, "Estado", ecf.AckNotReceived)
		addText(root, "CodigoMotivoNoRecibido", a.ReasonCode)
	}
	addText(root, "FechaHoraAcuseRecibo", ecf.FormatDateTime(a.At))
	root.CreateElement(signaturePlaceholder)
	return doc, nil
}

func requireCommercialIdentity(r *requirements, issuer, buyer, ncf string) {
	r.need("RNCEmisor", issuer)
	r.need("RNCComprador", buyer)
	r.need("NCF", ncf)
	if ncf != "" {
		_, _, err := ecf.ParseNCF(ncf)
		r.check(err == nil, "NCF con formato inválido")
	}
}
