package document

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// LoadPKCS12 decodes a PKCS#12 bundle into the certificate/signer pair
// SignRequest needs. This is the "PKCS#12 key loader" spec.md names as
// an out-of-scope external collaborator (§1); this module only calls
// into it, never re-implements the bundle format.
func LoadPKCS12(data []byte, password string) (*x509.Certificate, crypto.Signer, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCertLoad, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("%w: private key does not implement crypto.Signer", ErrCertLoad)
	}
	return cert, signer, nil
}
