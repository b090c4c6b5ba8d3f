package services

import (
	"context"

	"github.com/rykyfilipe/efactura-engine/einvoice"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// SignatureService resolves the signing identity from the certificate vault
// and applies the enveloped signature. It is the only consumer of decrypted
// private keys outside the TLS handshake.
type SignatureService struct {
	vault  *CertificateService
	signer einvoice.Signer
	logger *utils.Logger
}

func CreateSignatureService(vault *CertificateService, signer einvoice.Signer) *SignatureService {
	return &SignatureService{
		vault:  vault,
		signer: signer,
		logger: utils.CreateLogger("signature"),
	}
}

func (s *SignatureService) SignInvoice(ctx context.Context, userID, tenantID string, invoiceXML []byte) ([]byte, error) {
	cert, err := s.vault.TLSCertificate(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.Sign(invoiceXML, *cert)
	if err != nil {
		s.logger.Error(ctx, "document signing failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	return signed, nil
}

// VerifyInvoice checks a signed document against the certificate embedded
// in its own KeyInfo.
func (s *SignatureService) VerifyInvoice(signedXML []byte) error {
	cert, err := einvoice.EmbeddedCertificate(signedXML)
	if err != nil {
		return err
	}
	return s.signer.Verify(signedXML, cert)
}
