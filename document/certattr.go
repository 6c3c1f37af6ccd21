package document

import (
	"crypto"
	"crypto/x509"
	encasn1 "encoding/asn1"
	"fmt"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// signingCertificateV1OID is id-aa-signingCertificate
// (1.2.840.113549.1.9.16.2.12), the attribute OID for the SHA-1 ESSCertID
// form.
var signingCertificateV1OID = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}

// signingCertificateV2OID is id-aa-signingCertificateV2
// (1.2.840.113549.1.9.16.2.47), the attribute OID for ESSCertIDv2.
var signingCertificateV2OID = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}

// hashAlgorithmOIDs maps the digest algorithms SignRequest accepts to
// their well-known OIDs. The teacher's own conversion helper
// (getOIDFromHashAlgorithm, called from sign/pdfsignature.go) isn't part
// of this pack's vendored snapshot, so this table is reconstructed from
// the standard PKCS#1/NIST hash OIDs it would have returned.
var hashAlgorithmOIDs = map[crypto.Hash]encasn1.ObjectIdentifier{
	crypto.MD5:    {1, 2, 840, 113549, 2, 5},
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}

// hashOID returns h's ASN.1 object identifier, defaulting to SHA-256's
// when h is unset or unrecognized.
func hashOID(h crypto.Hash) encasn1.ObjectIdentifier {
	if oid, ok := hashAlgorithmOIDs[h]; ok {
		return oid
	}
	return hashAlgorithmOIDs[crypto.SHA256]
}

// signingCertificateAttribute builds the ESSCertID/ESSCertIDv2 signed
// attribute binding the signature to cert's fingerprint under digest,
// preventing a substitute-certificate attack against a bare PKCS#7
// signature. Mirrors the teacher's createSigningCertificateAttribute:
// SHA-1 gets the v1 ESSCertID form (OID ...2.12) with no explicit
// AlgorithmIdentifier (SHA-1 is its implicit default); SHA-256 gets the
// v2 ESSCertIDv2 form (OID ...2.47), also without an explicit
// AlgorithmIdentifier (SHA-256 is its implicit default); any other
// digest gets the v2 form with an explicit AlgorithmIdentifier SEQUENCE.
// Built with cryptobyte rather than encoding/asn1 because the optional
// AlgorithmIdentifier and IssuerSerial don't round-trip cleanly through
// struct tags.
func signingCertificateAttribute(cert *x509.Certificate, digest crypto.Hash) (*pkcs7.Attribute, error) {
	if digest == 0 {
		digest = crypto.SHA256
	}
	h := digest.New()
	h.Write(cert.Raw)
	sum := h.Sum(nil)

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate(V2)
		b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) { // certs SEQUENCE OF ESSCertID(v2)
			b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID(v2)
				if digest != crypto.SHA1 && digest != crypto.SHA256 {
					b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(hashOID(digest))
					})
				}
				b.AddASN1OctetString(sum) // certHash
			})
		})
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: build signing-certificate attribute: %v", ErrSigner, err)
	}

	attr := &pkcs7.Attribute{
		Type:  signingCertificateV2OID,
		Value: encasn1.RawValue{FullBytes: der},
	}
	if digest == crypto.SHA1 {
		attr.Type = signingCertificateV1OID
	}
	return attr, nil
}
