package signer_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
)

const sampleECF = `<?xml version="1.0" encoding="UTF-8"?>
<ECF xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="https://ecf.dgii.gov.do/esquemas/ecf/1.1">
<Encabezado><Version>1.0</Version><IdDoc><TipoeCF>31</TipoeCF><eNCF>E310000000001</eNCF></IdDoc></Encabezado>
<Totales><MontoTotal>1180.00</MontoTotal><ITBISTotal>180.00</ITBISTotal></Totales>
</ECF>`

const sampleApproval = `<?xml version="1.0" encoding="UTF-8"?>
<DetailApprovalCommercial><Version>1.0</Version><NCF>E310000000001</NCF><Signature/><Estado>0</Estado></DetailApprovalCommercial>`

// ── helpers ──────────────────────────────────────────────────────────────────

func newCredential(t *testing.T) (*signer.Credential, []byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "Emisor de pruebas", Organization: []string{"Pruebas SRL"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return &signer.Credential{Certificate: cert, PrivateKey: key}, certPEM, keyPEM
}

// ── Firma y verificación ─────────────────────────────────────────────────────

func TestSign_VerifyRoundTrip(t *testing.T) {
	cred, _, _ := newCredential(t)

	res, err := signer.Sign([]byte(sampleECF), cred)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(res.SignedXML, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)), "debe incluir declaración XML")
	assert.Contains(t, string(res.SignedXML), "\n  <Encabezado>", "indentación de dos espacios")
	assert.Contains(t, string(res.SignedXML), `<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">`)
	require.NoError(t, signer.Verify(res.SignedXML, cred.Certificate))
	require.NoError(t, signer.Verify(res.SignedXML, nil), "debe verificar con el certificado embebido")
}

func TestVerify_DetectsTampering(t *testing.T) {
	cred, _, _ := newCredential(t)
	res, err := signer.Sign([]byte(sampleECF), cred)
	require.NoError(t, err)

	tampered := bytes.Replace(res.SignedXML, []byte("1180.00"), []byte("1180.01"), 1)
	require.NotEqual(t, res.SignedXML, tampered)
	assert.ErrorIs(t, signer.Verify(tampered, cred.Certificate), signer.ErrSignatureInvalid)
}

func TestVerify_RejectsOtherCertificate(t *testing.T) {
	cred, _, _ := newCredential(t)
	other, _, _ := newCredential(t)
	res, err := signer.Sign([]byte(sampleECF), cred)
	require.NoError(t, err)

	assert.ErrorIs(t, signer.Verify(res.SignedXML, other.Certificate), signer.ErrSignatureInvalid)
}

func TestSign_ReplacesPlaceholder(t *testing.T) {
	cred, _, _ := newCredential(t)
	res, err := signer.Sign([]byte(sampleApproval), cred)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(res.SignedXML))
	children := doc.Root().ChildElements()
	var tags []string
	for _, c := range children {
		tags = append(tags, c.Tag)
	}
	assert.Equal(t, []string{"Version", "NCF", "Signature", "Estado"}, tags, "la firma ocupa el lugar del placeholder")
	require.NoError(t, signer.Verify(res.SignedXML, cred.Certificate))
}

func TestSign_ResignIsVerifiable(t *testing.T) {
	cred, _, _ := newCredential(t)
	first, err := signer.Sign([]byte(sampleECF), cred)
	require.NoError(t, err)
	second, err := signer.Sign(first.SignedXML, cred)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(second.SignedXML), "<SignatureValue>"))
	require.NoError(t, signer.Verify(second.SignedXML, cred.Certificate))
}

func TestSign_InvalidInput(t *testing.T) {
	cred, _, _ := newCredential(t)

	_, err := signer.Sign([]byte("   "), cred)
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)
	_, err = signer.Sign([]byte("<ECF><sin-cerrar>"), cred)
	assert.ErrorIs(t, err, domain.ErrSchemaViolation)
	_, err = signer.Sign([]byte(sampleECF), &signer.Credential{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

// ── Código de seguridad ──────────────────────────────────────────────────────

func TestSecurityCode_Deterministic(t *testing.T) {
	cred, _, _ := newCredential(t)
	res, err := signer.Sign([]byte(sampleECF), cred)
	require.NoError(t, err)

	a, err := signer.SecurityCode(res.SignedXML)
	require.NoError(t, err)
	b, err := signer.SecurityCode(res.SignedXML)
	require.NoError(t, err)

	assert.Len(t, a, 6)
	assert.Equal(t, a, b)
	assert.Equal(t, res.SecurityCode, a)
	assert.Equal(t, res.SignatureValue[:6], a)
}

func TestSecurityCodeFromValue(t *testing.T) {
	code, err := signer.SecurityCodeFromValue("ab\ncd\r\nef==")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", code)

	_, err = signer.SecurityCodeFromValue("abc")
	assert.Error(t, err)
}

// ── Carga de credenciales ────────────────────────────────────────────────────

func TestLoadPEM(t *testing.T) {
	cred, certPEM, keyPEM := newCredential(t)

	loaded, err := signer.LoadPEM(certPEM, keyPEM, "")
	require.NoError(t, err)
	assert.True(t, loaded.Certificate.Equal(cred.Certificate))

	combined := append(append([]byte{}, certPEM...), keyPEM...)
	loaded, err = signer.LoadPEM(combined, nil, "")
	require.NoError(t, err)
	assert.True(t, cred.PrivateKey.Equal(loaded.PrivateKey))
}

func TestLoadPEM_EncryptedKey(t *testing.T) {
	cred, certPEM, _ := newCredential(t)
	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(cred.PrivateKey), []byte("clave-de-prueba"), x509.PEMCipherAES256)
	require.NoError(t, err)
	encrypted := pem.EncodeToMemory(block)

	_, err = signer.LoadPEM(certPEM, encrypted, "clave-de-prueba")
	require.NoError(t, err)

	_, err = signer.LoadPEM(certPEM, encrypted, "incorrecta")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = signer.LoadPEM(certPEM, encrypted, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestLoadPEM_EncryptedPKCS8(t *testing.T) {
	cred, certPEM, _ := newCredential(t)
	der, err := pkcs8.ConvertPrivateKeyToPKCS8(cred.PrivateKey, []byte("clave-de-prueba"))
	require.NoError(t, err)
	encrypted := pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})

	loaded, err := signer.LoadPEM(certPEM, encrypted, "clave-de-prueba")
	require.NoError(t, err)
	assert.True(t, cred.PrivateKey.Equal(loaded.PrivateKey))

	_, err = signer.LoadPEM(certPEM, encrypted, "incorrecta")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = signer.LoadPEM(certPEM, encrypted, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential, "sin contraseña no se descifra")
}

func TestLoadPEM_KeyMismatch(t *testing.T) {
	_, certPEM, _ := newCredential(t)
	_, _, otherKey := newCredential(t)

	_, err := signer.LoadPEM(certPEM, otherKey, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestLoadPKCS12_Invalid(t *testing.T) {
	_, err := signer.LoadPKCS12([]byte("no es un p12"), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestLoadPKCS12_ModernAndLegacy(t *testing.T) {
	cred, _, _ := newCredential(t)

	encoders := map[string]*pkcs12.Encoder{
		"PBES2 AES-256 (OpenSSL 3)": pkcs12.Modern,
		"heredado RC2/3DES":         pkcs12.Legacy,
	}
	for name, enc := range encoders {
		t.Run(name, func(t *testing.T) {
			p12, err := enc.Encode(cred.PrivateKey, cred.Certificate, nil, "secreto")
			require.NoError(t, err)

			loaded, err := signer.LoadPKCS12(p12, "secreto")
			require.NoError(t, err)
			assert.True(t, loaded.Certificate.Equal(cred.Certificate))
			assert.True(t, cred.PrivateKey.Equal(loaded.PrivateKey))

			_, err = signer.LoadPKCS12(p12, "otra")
			assert.ErrorIs(t, err, domain.ErrInvalidCredential)
		})
	}
}

func TestLoadPKCS12_WithChain(t *testing.T) {
	cred, _, _ := newCredential(t)
	other, _, _ := newCredential(t)

	p12, err := pkcs12.Modern.Encode(cred.PrivateKey, cred.Certificate, []*x509.Certificate{other.Certificate}, "secreto")
	require.NoError(t, err)

	loaded, err := signer.LoadPKCS12(p12, "secreto")
	require.NoError(t, err)
	assert.True(t, loaded.Certificate.Equal(cred.Certificate), "se elige el certificado de la llave")
}

func TestLoadFromFiles(t *testing.T) {
	_, certPEM, keyPEM := newCredential(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	cred, err := signer.LoadFromFiles(certPath, keyPath, "")
	require.NoError(t, err)
	res, err := signer.NewService(cred).Sign([]byte(sampleECF))
	require.NoError(t, err)
	require.NoError(t, signer.Verify(res.SignedXML, cred.Certificate))

	p12, err := pkcs12.Modern.Encode(cred.PrivateKey, cred.Certificate, nil, "secreto")
	require.NoError(t, err)
	p12Path := filepath.Join(dir, "cert.p12")
	require.NoError(t, os.WriteFile(p12Path, p12, 0o600))
	fromP12, err := signer.LoadFromFiles(p12Path, "", "secreto")
	require.NoError(t, err)
	assert.True(t, fromP12.Certificate.Equal(cred.Certificate))

	require.NoError(t, os.WriteFile(p12Path, []byte("basura"), 0o600))
	_, err = signer.LoadFromFiles(p12Path, "", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = signer.LoadFromFiles(filepath.Join(dir, "no-existe.pem"), "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}
