// Firma XML-DSig envolvente (RSA-SHA256) para documentos e-CF y semillas de autenticación.
// La <Signature> queda como hija de la raíz, reemplazando el placeholder si existe.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/ecf-dgii/internal/domain"
)

// Result documento firmado y valores derivados de la firma.
type Result struct {
	SignedXML      []byte
	SignatureValue string
	SecurityCode   string
}

// Service firma con una credencial fija cargada al arrancar.
type Service struct {
	cred *Credential
}

// NewService crea el servicio.
func NewService(cred *Credential) *Service {
	return &Service{cred: cred}
}

// Sign firma el XML con la credencial del servicio.
func (s *Service) Sign(unsigned []byte) (*Result, error) {
	return Sign(unsigned, s.cred)
}

// Certificate devuelve el certificado usado para firmar.
func (s *Service) Certificate() *x509.Certificate {
	if s.cred == nil {
		return nil
	}
	return s.cred.Certificate
}

// Sign aplica la firma envolvente. El resultado va en UTF-8, con declaración XML
// e indentación de dos espacios.
func Sign(unsigned []byte, cred *Credential) (*Result, error) {
	if cred == nil || cred.Certificate == nil || cred.PrivateKey == nil {
		return nil, invalidCredential(errors.New("credencial incompleta"))
	}
	if len(bytes.TrimSpace(unsigned)) == 0 {
		return nil, domain.NewError(domain.ErrSchemaViolation, "sign", "", errors.New("XML vacío"))
	}

	src := etree.NewDocument()
	if err := src.ReadFromBytes(unsigned); err != nil {
		return nil, domain.NewError(domain.ErrSchemaViolation, "sign", "", fmt.Errorf("parsear XML: %w", err))
	}
	root := src.Root()
	if root == nil {
		return nil, domain.NewError(domain.ErrSchemaViolation, "sign", "", errors.New("documento sin raíz"))
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", xmlDeclaration)
	doc.SetRoot(root)

	// 1) Placeholder vacío y digest del documento sin la firma
	sig := resetPlaceholder(root)
	doc.Indent(indentSpaces)
	digest, err := referenceDigest(root, sig)
	if err != nil {
		return nil, err
	}

	// 2) SignedInfo + KeyInfo
	fillSignature(sig, digest, cred.Certificate)
	doc.Indent(indentSpaces)

	// 3) SignatureValue sobre SignedInfo canonicalizado
	canonical, err := canonicalElement(sig.SelectElement("SignedInfo"))
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(canonical)
	raw, err := rsa.SignPKCS1v15(rand.Reader, cred.PrivateKey, crypto.SHA256, hash[:])
	if err != nil {
		return nil, invalidCredential(fmt.Errorf("firmar SignedInfo: %w", err))
	}
	value := base64.StdEncoding.EncodeToString(raw)
	sig.SelectElement("SignatureValue").SetText(value)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar XML firmado: %w", err)
	}
	code, err := SecurityCode(out)
	if err != nil {
		return nil, err
	}
	return &Result{SignedXML: out, SignatureValue: value, SecurityCode: code}, nil
}

// resetPlaceholder vacía el <Signature> existente o crea uno al final de la raíz.
func resetPlaceholder(root *etree.Element) *etree.Element {
	sig := root.SelectElement(SignatureTag)
	if sig == nil {
		sig = root.CreateElement(SignatureTag)
	}
	sig.Space = ""
	sig.Attr = nil
	sig.Child = nil
	sig.CreateAttr("xmlns", NamespaceDS)
	return sig
}

func fillSignature(sig *etree.Element, digest string, cert *x509.Certificate) {
	si := sig.CreateElement("SignedInfo")
	si.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgC14N)
	si.CreateElement("SignatureMethod").CreateAttr("Algorithm", AlgRSASHA256)
	ref := si.CreateElement("Reference")
	ref.CreateAttr("URI", "")
	ref.CreateElement("Transforms").CreateElement("Transform").CreateAttr("Algorithm", TransformEnveloped)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", AlgSHA256)
	ref.CreateElement("DigestValue").SetText(digest)

	sig.CreateElement("SignatureValue")
	sig.CreateElement("KeyInfo").
		CreateElement("X509Data").
		CreateElement("X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(cert.Raw))
}

// referenceDigest calcula el DigestValue: SHA-256 del documento canonicalizado
// sin el elemento <Signature> (transformación envolvente).
func referenceDigest(root, sig *etree.Element) (string, error) {
	idx := sig.Index()
	if idx < 0 {
		return "", errors.New("signer: Signature sin padre")
	}
	stripped := root.Copy()
	stripped.RemoveChildAt(idx)
	canonical, err := canonicalElement(stripped)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// canonicalElement serializa el elemento con los namespaces heredados de sus
// ancestros y aplica C14N inclusivo.
func canonicalElement(el *etree.Element) ([]byte, error) {
	if el == nil {
		return nil, errors.New("signer: elemento nulo")
	}
	c := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) {
				continue
			}
			if c.SelectAttr(a.FullKey()) == nil {
				c.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	d := etree.NewDocument()
	d.SetRoot(c)
	data, err := d.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar para C14N: %w", err)
	}
	out, err := canonicalize(data)
	if err != nil {
		return nil, fmt.Errorf("C14N: %w", err)
	}
	return out, nil
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// SecurityCode extrae los 6 primeros caracteres del SignatureValue de un documento firmado.
func SecurityCode(signed []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return "", fmt.Errorf("signer: parsear XML firmado: %w", err)
	}
	el := doc.FindElement("//" + SignatureTag + "/SignatureValue")
	if el == nil {
		return "", errors.New("signer: el documento no tiene SignatureValue")
	}
	return SecurityCodeFromValue(el.Text())
}

// SecurityCodeFromValue aplica la regla sobre un SignatureValue ya extraído.
func SecurityCodeFromValue(value string) (string, error) {
	clean := strings.Join(strings.Fields(value), "")
	if len(clean) < SecurityCodeLength {
		return "", errors.New("signer: SignatureValue demasiado corto")
	}
	return clean[:SecurityCodeLength], nil
}
