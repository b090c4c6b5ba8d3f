package einvoice

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCertificate(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Ion Popescu",
			Organization: []string{"Exemplu SRL"},
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, leaf
}

func signedSample(t *testing.T) ([]byte, *x509.Certificate) {
	t.Helper()

	cert, leaf := testCertificate(t)
	inv, company, customer := sampleInvoice()
	xml, err := Generate(inv, company, customer)
	require.NoError(t, err)

	signer := CreateXMLDSigSigner()
	signed, err := signer.Sign([]byte(xml), cert)
	require.NoError(t, err)

	return signed, leaf
}

func TestSignProducesEnvelopedSignature(t *testing.T) {
	signed, _ := signedSample(t)

	s := string(signed)
	require.Contains(t, s, "<ds:Signature")
	require.Contains(t, s, "<ds:SignatureValue>")
	require.Contains(t, s, "<ds:X509Certificate>")

	// The signature is the last child of the document root.
	require.True(t, strings.HasSuffix(strings.TrimSpace(s), "</ds:Signature></Invoice>"))
}

func TestSignThenVerify(t *testing.T) {
	signed, leaf := signedSample(t)

	signer := CreateXMLDSigSigner()
	require.NoError(t, signer.Verify(signed, leaf))
}

func TestVerifyDetectsTampering(t *testing.T) {
	signed, leaf := signedSample(t)

	tampered := strings.Replace(string(signed), "FACT-2026-0042", "FACT-2026-9999", 1)
	require.NotEqual(t, string(signed), tampered)

	signer := CreateXMLDSigSigner()
	require.Error(t, signer.Verify([]byte(tampered), leaf))
}

func TestVerifyRejectsWrongCertificate(t *testing.T) {
	signed, _ := signedSample(t)
	_, otherLeaf := testCertificate(t)

	signer := CreateXMLDSigSigner()
	require.Error(t, signer.Verify(signed, otherLeaf))
}

func TestVerifyRejectsUnsignedDocument(t *testing.T) {
	inv, company, customer := sampleInvoice()
	xml, err := Generate(inv, company, customer)
	require.NoError(t, err)

	_, leaf := testCertificate(t)
	signer := CreateXMLDSigSigner()
	require.Error(t, signer.Verify([]byte(xml), leaf))
}

func TestEmbeddedCertificateRoundTrip(t *testing.T) {
	signed, leaf := signedSample(t)

	embedded, err := EmbeddedCertificate(signed)
	require.NoError(t, err)
	require.Equal(t, leaf.SerialNumber.String(), embedded.SerialNumber.String())

	signer := CreateXMLDSigSigner()
	require.NoError(t, signer.Verify(signed, embedded))
}
