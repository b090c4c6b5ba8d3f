package einvoice

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Signer computes and verifies the enveloped signature embedded in generated
// documents. It is deliberately pluggable: qualified-signature providers can
// replace the built-in implementation without touching the submission path.
type Signer interface {
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
	Verify(signedXML []byte, cert *x509.Certificate) error
}

// XMLDSigSigner produces an enveloped XML-DSig signature: RSA-SHA256 over
// the exclusively canonicalized document, with the signing certificate
// embedded in KeyInfo. The ds:Signature element is appended as the last
// child of the document root.
type XMLDSigSigner struct{}

func CreateXMLDSigSigner() *XMLDSigSigner {
	return &XMLDSigSigner{}
}

func (s *XMLDSigSigner) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing requires an RSA private key")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("signing requires the certificate chain")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse signing certificate: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}

	// Digest the etree-normalized serialization so verification, which has
	// to re-serialize after stripping the signature, sees identical bytes.
	normalized, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	canonical, err := canonicalize(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}
	docDigest := sha256.Sum256(canonical)

	signedInfo := buildSignedInfo(base64.StdEncoding.EncodeToString(docDigest[:]))
	canonicalSignedInfo, err := canonicalize([]byte(signedInfo))
	if err != nil {
		return nil, fmt.Errorf("canonicalize SignedInfo: %w", err)
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)

	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signedInfoDigest[:])
	if err != nil {
		return nil, fmt.Errorf("sign SignedInfo: %w", err)
	}

	signatureXML := buildSignature(signedInfo,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw))

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("parse built signature: %w", err)
	}
	root.AddChild(sigDoc.Root())

	return doc.WriteToBytes()
}

func (s *XMLDSigSigner) Verify(signedXML []byte, cert *x509.Certificate) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("document has no root element")
	}

	sig := findSignature(root)
	if sig == nil {
		return fmt.Errorf("document carries no signature")
	}

	digestValue := findText(sig, "DigestValue")
	signatureValue := findText(sig, "SignatureValue")
	if digestValue == "" || signatureValue == "" {
		return fmt.Errorf("signature is missing digest or signature value")
	}

	signedInfo := findChild(sig, "SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("signature is missing SignedInfo")
	}

	siDoc := etree.NewDocument()
	siDoc.SetRoot(signedInfo.Copy())
	siBytes, err := siDoc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize SignedInfo: %w", err)
	}
	canonicalSignedInfo, err := canonicalize(siBytes)
	if err != nil {
		return fmt.Errorf("canonicalize SignedInfo: %w", err)
	}

	root.RemoveChild(sig)
	stripped, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	canonical, err := canonicalize(stripped)
	if err != nil {
		return fmt.Errorf("canonicalize document: %w", err)
	}

	docDigest := sha256.Sum256(canonical)
	if base64.StdEncoding.EncodeToString(docDigest[:]) != digestValue {
		return fmt.Errorf("document digest does not match the signed digest")
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("verification requires an RSA public key")
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signatureValue)
	if err != nil {
		return fmt.Errorf("decode signature value: %w", err)
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], sigBytes); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	return nil
}

// EmbeddedCertificate extracts the X509Certificate from a signed document's
// KeyInfo, letting callers verify against the embedded identity.
func EmbeddedCertificate(signedXML []byte) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	sig := findSignature(root)
	if sig == nil {
		return nil, fmt.Errorf("document carries no signature")
	}
	certB64 := findText(sig, "X509Certificate")
	if certB64 == "" {
		return nil, fmt.Errorf("signature carries no certificate")
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certB64))
	if err != nil {
		return nil, fmt.Errorf("decode embedded certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgExcC14N + `"></ds:CanonicalizationMethod>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"></ds:SignatureMethod>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"></ds:Transform>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgExcC14N + `"></ds:Transform></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfo, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(signedInfo)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func findSignature(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if child.Tag == "Signature" {
			return child
		}
	}
	return nil
}

func findChild(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func findText(el *etree.Element, tag string) string {
	if el.Tag == tag {
		return strings.TrimSpace(el.Text())
	}
	for _, child := range el.ChildElements() {
		if text := findText(child, tag); text != "" {
			return text
		}
	}
	return ""
}
