package document

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// EstimateSignatureSize returns a reasonable SignatureHexCapacity for
// cert's key type and size, useful for callers building a Config instead
// of taking DefaultConfig's fixed reservation. The two-pass protocol
// itself only requires the capacity to be fixed in advance, not that it
// take this particular value.
func EstimateSignatureSize(cert *x509.Certificate) (int, error) {
	var keyBytes int
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		keyBytes = pub.Size()
	case *ecdsa.PublicKey:
		keyBytes = 2*((pub.Params().BitSize+7)/8) + 9
	case ed25519.PublicKey:
		keyBytes = ed25519.SignatureSize
	default:
		return 0, fmt.Errorf("document: unsupported public key type %T", pub)
	}

	// CMS/PKCS#7 structural overhead (certificate chain, signed
	// attributes, algorithm identifiers) plus headroom for an embedded
	// timestamp token and a modest amount of revocation data.
	const structuralOverheadBytes = 6000
	return (keyBytes+structuralOverheadBytes)*2 + 2, nil
}
