// Carga de certificado desde .p12 (PKCS#12) o par PEM.

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/jhoicas/ecf-dgii/internal/domain"
)

// Credential certificado X.509 y llave privada RSA del emisor.
type Credential struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

func invalidCredential(err error) error {
	return domain.NewError(domain.ErrInvalidCredential, "credential", "", err)
}

// LoadFromFiles carga la credencial según la extensión: .p12/.pfx como PKCS#12;
// cualquier otra como PEM. keyPath vacío indica que la llave está en certPath.
func LoadFromFiles(certPath, keyPath, password string) (*Credential, error) {
	if certPath == "" {
		return nil, invalidCredential(errors.New("ruta del certificado vacía"))
	}
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, invalidCredential(fmt.Errorf("leer certificado: %w", err))
	}
	switch strings.ToLower(filepath.Ext(certPath)) {
	case ".p12", ".pfx":
		return LoadPKCS12(data, password)
	}
	var keyData []byte
	if keyPath != "" {
		if keyData, err = os.ReadFile(keyPath); err != nil {
			return nil, invalidCredential(fmt.Errorf("leer llave privada: %w", err))
		}
	}
	return LoadPEM(data, keyData, password)
}

// LoadPKCS12 decodifica un contenedor .p12, tanto el formato heredado
// (3DES, MAC SHA-1) como el de OpenSSL 3 (PBES2/AES-256, MAC SHA-256).
// Admite cadenas con varios certificados: se toma el que corresponde a la llave.
func LoadPKCS12(data []byte, password string) (*Credential, error) {
	priv, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, invalidCredential(fmt.Errorf("decodificar p12: %w", err))
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, invalidCredential(errors.New("la llave privada debe ser RSA"))
	}
	return matchCertificate(append([]*x509.Certificate{cert}, chain...), key)
}

// LoadPEM carga certificado y llave PEM. keyPEM puede ser nil si ambos vienen en certPEM.
// password solo se usa si la llave está cifrada.
func LoadPEM(certPEM, keyPEM []byte, password string) (*Credential, error) {
	blocks := decodeAll(certPEM)
	if len(keyPEM) > 0 {
		blocks = append(blocks, decodeAll(keyPEM)...)
	}
	if len(blocks) == 0 {
		return nil, invalidCredential(errors.New("no se encontraron bloques PEM"))
	}
	return fromBlocks(blocks, password)
}

func decodeAll(data []byte) []*pem.Block {
	var out []*pem.Block
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return out
		}
		out = append(out, block)
	}
}

func fromBlocks(blocks []*pem.Block, password string) (*Credential, error) {
	var certs []*x509.Certificate
	var key *rsa.PrivateKey
	for _, b := range blocks {
		if b.Type == "CERTIFICATE" {
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, invalidCredential(fmt.Errorf("parsear certificado: %w", err))
			}
			certs = append(certs, c)
			continue
		}
		if !strings.Contains(b.Type, "PRIVATE KEY") || key != nil {
			continue
		}
		k, err := parsePrivateKey(b, password)
		if err != nil {
			return nil, invalidCredential(err)
		}
		key = k
	}
	if key == nil {
		return nil, invalidCredential(errors.New("no se encontró llave privada"))
	}
	return matchCertificate(certs, key)
}

func matchCertificate(certs []*x509.Certificate, key *rsa.PrivateKey) (*Credential, error) {
	if len(certs) == 0 {
		return nil, invalidCredential(errors.New("no se encontró certificado"))
	}
	for _, c := range certs {
		if key.PublicKey.Equal(c.PublicKey) {
			return &Credential{Certificate: c, PrivateKey: key}, nil
		}
	}
	return nil, invalidCredential(errors.New("la llave privada no corresponde al certificado"))
}

func parsePrivateKey(block *pem.Block, password string) (*rsa.PrivateKey, error) {
	// PKCS#8 cifrado (PBES2), lo que genera OpenSSL 3 por defecto
	if block.Type == "ENCRYPTED PRIVATE KEY" {
		if password == "" {
			return nil, errors.New("la llave privada está cifrada y no se indicó contraseña")
		}
		k, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("descifrar llave PKCS#8: %w", err)
		}
		return k, nil
	}
	der := block.Bytes
	//nolint:staticcheck // las llaves PEM heredadas con DEK-Info siguen en uso
	if x509.IsEncryptedPEMBlock(block) {
		if password == "" {
			return nil, errors.New("la llave privada está cifrada y no se indicó contraseña")
		}
		var err error
		//nolint:staticcheck
		der, err = x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("descifrar llave privada: %w", err)
		}
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsear llave privada: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("la llave privada debe ser RSA")
	}
	return k, nil
}
