package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrSignatureInvalid la firma no corresponde al contenido o al certificado.
var ErrSignatureInvalid = errors.New("firma XML inválida")

// Verify comprueba digest y SignatureValue. Si cert es nil se usa el certificado
// embebido en KeyInfo.
func Verify(signed []byte, cert *x509.Certificate) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return fmt.Errorf("%w: parsear: %v", ErrSignatureInvalid, err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: documento sin raíz", ErrSignatureInvalid)
	}
	sig := root.SelectElement(SignatureTag)
	if sig == nil {
		return fmt.Errorf("%w: no hay Signature", ErrSignatureInvalid)
	}
	si := sig.SelectElement("SignedInfo")
	digestEl := sig.FindElement("SignedInfo/Reference/DigestValue")
	valueEl := sig.SelectElement("SignatureValue")
	if si == nil || digestEl == nil || valueEl == nil {
		return fmt.Errorf("%w: Signature incompleta", ErrSignatureInvalid)
	}

	digest, err := referenceDigest(root, sig)
	if err != nil {
		return err
	}
	if digest != strings.TrimSpace(digestEl.Text()) {
		return fmt.Errorf("%w: el digest no coincide", ErrSignatureInvalid)
	}

	if cert == nil {
		if cert, err = embeddedCertificate(sig); err != nil {
			return err
		}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: el certificado no es RSA", ErrSignatureInvalid)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(valueEl.Text()), ""))
	if err != nil {
		return fmt.Errorf("%w: SignatureValue no es Base64", ErrSignatureInvalid)
	}
	canonical, err := canonicalElement(si)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	el := sig.FindElement("KeyInfo/X509Data/X509Certificate")
	if el == nil {
		return nil, fmt.Errorf("%w: sin X509Certificate", ErrSignatureInvalid)
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(el.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: X509Certificate no es Base64", ErrSignatureInvalid)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: X509Certificate: %v", ErrSignatureInvalid, err)
	}
	return cert, nil
}
