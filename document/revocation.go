package document

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"net/http"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/ocsp"
)

// revocationInfoAttributeOID is the signed-attribute OID the teacher
// embeds revocation material under (sign/pdfsignature.go's signer_config
// literal): Adobe's 1.2.840.113583.1.1.8.
var revocationInfoAttributeOID = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}

// revocationInfo is the ASN.1 container this module embeds alongside a
// signature so a verifier can check certificate status without a live
// network call later (long-term validation material). Supplementing
// spec.md's signature object per SPEC_FULL.md §6.E / §11 — the teacher
// carries this under its standalone revocation package.
type revocationInfo struct {
	CRL   []asn1.RawValue `asn1:"explicit,tag:0,optional"`
	OCSP  []asn1.RawValue `asn1:"explicit,tag:1,optional"`
	Other []asn1.RawValue `asn1:"explicit,tag:2,optional"`
}

// RevocationFunction fetches CRL/OCSP bytes for cert/issuer, the same
// signature the teacher's SignData.RevocationFunction carries; a caller
// supplies this so the coordinator never has to decide which revocation
// service to trust.
type RevocationFunction func(ctx context.Context, cert, issuer *x509.Certificate) (crls [][]byte, ocsps [][]byte, err error)

// FetchOCSP performs an OCSP request/response round trip over HTTP, the
// default RevocationFunction building block when the certificate
// declares an OCSP responder URL.
func FetchOCSP(ctx context.Context, cert, issuer *x509.Certificate, responderURL string) ([]byte, error) {
	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("document: failed to build OCSP request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, responderURL, bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("document: failed to build OCSP HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("document: OCSP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("document: failed to read OCSP response: %w", err)
	}

	if _, err := ocsp.ParseResponseForCert(body, cert, issuer); err != nil {
		return nil, fmt.Errorf("document: failed to parse OCSP response: %w", err)
	}
	return body, nil
}

// revocationAttribute calls req.Revocation for every certificate in the
// signer chain against its issuer (the chain's next entry, or nil for
// the last), collecting CRL/OCSP bytes into a revocationInfo and
// wrapping it as the signed attribute the teacher's createSignature adds
// to signer_config.ExtraSignedAttributes under the same OID. Returns
// (nil, nil) when req.Revocation is unset or it returns no CRL or OCSP
// bytes for any certificate — a signature proceeds fine without
// long-term validation material.
func revocationAttribute(ctx context.Context, req SignRequest) (*pkcs7.Attribute, error) {
	if req.Revocation == nil {
		return nil, nil
	}
	chain := append([]*x509.Certificate{req.Cert}, req.CertChain...)

	info := revocationInfo{}
	for i, cert := range chain {
		var issuer *x509.Certificate
		if i+1 < len(chain) {
			issuer = chain[i+1]
		}
		crls, ocsps, err := req.Revocation(ctx, cert, issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: revocation lookup for %s: %v", ErrSigner, cert.Subject, err)
		}
		for _, c := range crls {
			info.CRL = append(info.CRL, asn1.RawValue{FullBytes: c})
		}
		for _, o := range ocsps {
			info.OCSP = append(info.OCSP, asn1.RawValue{FullBytes: o})
		}
	}
	if len(info.CRL) == 0 && len(info.OCSP) == 0 {
		return nil, nil
	}
	return &pkcs7.Attribute{Type: revocationInfoAttributeOID, Value: info}, nil
}
