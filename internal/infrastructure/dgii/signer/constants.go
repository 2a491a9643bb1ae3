// Constantes XML-DSig para la firma envolvente de documentos e-CF.

package signer

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// SignatureTag nombre del elemento de firma (y del placeholder que reemplaza).
const SignatureTag = "Signature"

// SecurityCodeLength caracteres del SignatureValue que forman el código de seguridad.
const SecurityCodeLength = 6

const xmlDeclaration = `version="1.0" encoding="UTF-8"`

// indentación usada al serializar el documento firmado.
const indentSpaces = 2
