package document

import (
	"bytes"
	"context"
	encasn1 "encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"github.com/mattetti/filebuffer"
)

// timestampTokenAttributeOID is id-aa-signatureTimeStampToken
// (1.2.840.113549.1.9.16.2.14), the unauthenticated attribute an RFC
// 3161 token is embedded under once a SignedData is already built
// (teacher's createSignature, the TSA branch).
var timestampTokenAttributeOID = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}

// postTimestampQuery POSTs an RFC 3161 timestamp query to tsaURL, the
// same Content-Type/Content-Transfer-Encoding/HTTP-client shape as the
// teacher's GetTSA, including its non-2xx-is-an-error handling.
func postTimestampQuery(tsaURL string, query []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, tsaURL, bytes.NewReader(query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/timestamp-query")
	req.Header.Set("Content-Transfer-Encoding", "binary")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New("non success response (" + strconv.Itoa(resp.StatusCode) + "): " + string(body))
	}
	return body, nil
}

// Emit serializes the Document: either an incremental update appended to
// the original bytes (rebuild=false) or a rebuilt document (rebuild=
// true), signing the result first if a signature is pending.
func (d *Document) Emit(rebuild bool) ([]byte, error) {
	if d.pendingSignature == nil {
		return d.emitPlain(rebuild)
	}
	return d.emitSigned(rebuild)
}

// emitPlain is §4.D without a pending signature: serialize every
// override, then the xref+trailer block. Property 1/2 (incremental
// identity/preservation) fall out of never touching OriginalBytes and
// only ever appending. With nothing to append at all, emit(false) must
// return OriginalBytes verbatim rather than appending an empty
// incremental revision's xref/trailer block.
func (d *Document) emitPlain(rebuild bool) ([]byte, error) {
	if !rebuild && len(d.overrideOrder) == 0 {
		return d.OriginalBytes, nil
	}

	var out bytes.Buffer
	if rebuild {
		fmt.Fprintf(&out, "%%%s\n", d.Version)
	}
	out.Write(d.OriginalBytes)

	offsets := make(map[uint32]int64, len(d.overrideOrder))
	for _, oid := range d.overrideOrder {
		obj := d.overrides[oid]
		offsets[oid] = int64(out.Len())
		out.Write(obj.Serialize())
	}

	xrefOffset := int64(out.Len())
	xrefBytes, err := d.emitXrefAndTrailer(offsets, xrefOffset, !rebuild)
	if err != nil {
		return nil, err
	}
	out.Write(xrefBytes)
	return out.Bytes(), nil
}

// emitSigned performs the two-pass emission of §4.E: pass 1 fixes every
// byte offset by reserving constant-width placeholders for /ByteRange
// and /Contents; pass 2 signs the two covered ranges and splices the hex
// result into the reserved window without moving anything else.
func (d *Document) emitSigned(rebuild bool) ([]byte, error) {
	prep := d.pendingSignature
	cfg := prep.Request.Config

	var prefix bytes.Buffer
	if rebuild {
		fmt.Fprintf(&prefix, "%%%s\n", d.Version)
	}
	prefix.Write(d.OriginalBytes)

	offsets := make(map[uint32]int64, len(d.overrideOrder))
	for _, oid := range d.overrideOrder {
		if oid == prep.SigObject.OID {
			continue // reserved slot, filled in below
		}
		obj := d.overrides[oid]
		offsets[oid] = int64(prefix.Len())
		prefix.Write(obj.Serialize())
	}

	sigEntry := prep.SigObject.Serialize()
	byteRangePlaceholderStr := byteRangePlaceholder(cfg.ByteRangeCapacity)
	contentsPlaceholderStr := contentsPlaceholder(cfg.SignatureHexCapacity)

	byteRangeRelOffset, err := findPlaceholder(sigEntry, byteRangePlaceholderStr)
	if err != nil {
		return nil, err
	}
	contentsRelOffset, err := findPlaceholder(sigEntry, contentsPlaceholderStr)
	if err != nil {
		return nil, err
	}
	// contentsRelOffset points at the opening '<'; the hex window starts
	// one byte later.
	contentsHexRelOffset := contentsRelOffset + 1

	prefixSize := int64(prefix.Len())
	offsets[prep.SigObject.OID] = prefixSize

	xrefOffset := prefixSize + int64(len(sigEntry))
	suffixBytes, err := d.emitXrefAndTrailer(offsets, xrefOffset, !rebuild)
	if err != nil {
		return nil, err
	}

	totalSize := prefixSize + int64(len(sigEntry)) + int64(len(suffixBytes))

	a := prefixSize + int64(contentsRelOffset) // offset of '<'
	b := a + int64(cfg.SignatureHexCapacity) + 2 // offset of first byte after '>'
	c := totalSize - b

	newByteRange := fmt.Sprintf("[%d %d %d %d]", 0, a, b, c)
	if len(newByteRange) > len(byteRangePlaceholderStr) {
		return nil, fmt.Errorf("%w: ByteRange %q overflows the %d-byte placeholder", ErrSigner, newByteRange, len(byteRangePlaceholderStr))
	}
	newByteRange += strings.Repeat(" ", len(byteRangePlaceholderStr)-len(newByteRange))
	copy(sigEntry[byteRangeRelOffset:byteRangeRelOffset+len(byteRangePlaceholderStr)], []byte(newByteRange))

	buf := filebuffer.New(nil)
	if _, err := buf.Write(prefix.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := buf.Write(sigEntry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if _, err := buf.Write(suffixBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	full := buf.Buff.Bytes()

	signContent := make([]byte, 0, a+c)
	signContent = append(signContent, full[:a]...)
	signContent = append(signContent, full[b:b+c]...)

	hexSig, err := d.signDetached(signContent, prep.Request)
	if err != nil {
		return nil, err
	}

	contentsAbsOffset := prefixSize + int64(contentsHexRelOffset)
	if err := sigReplaceContents(full, int(contentsAbsOffset), cfg.SignatureHexCapacity, hexSig); err != nil {
		return nil, err
	}

	d.pendingSignature = nil
	return full, nil
}

// signDetached builds a detached CMS/PKCS#7 SignedData over content,
// carrying the ESSCertIDv2 signing-certificate attribute and (when
// req.Revocation is set) embedded revocation material as signed
// attributes, optionally timestamping the finished signature, and
// returns the upper-case hex encoding ready to splice into the
// /Contents window. Mirrors the teacher's createSignature end to end.
func (d *Document) signDetached(content []byte, req SignRequest) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigner, err)
	}
	sd.SetDigestAlgorithm(hashOID(req.DigestAlgorithm))

	signingCertAttr, err := signingCertificateAttribute(req.Cert, req.DigestAlgorithm)
	if err != nil {
		return nil, err
	}
	signerConfig := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertAttr},
	}

	revAttr, err := revocationAttribute(context.Background(), req)
	if err != nil {
		return nil, err
	}
	if revAttr != nil {
		signerConfig.ExtraSignedAttributes = append(signerConfig.ExtraSignedAttributes, *revAttr)
	}

	if err := sd.AddSignerChain(req.Cert, req.Signer, req.CertChain, signerConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigner, err)
	}
	sd.Detach()

	if req.TSAURL != "" {
		if err := d.embedTimestamp(sd, req); err != nil {
			return nil, err
		}
	}

	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigner, err)
	}

	hexSig := make([]byte, hex.EncodedLen(len(der)))
	hex.Encode(hexSig, der)
	return bytesToUpper(hexSig), nil
}

func bytesToUpper(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			out[i] = c - ('a' - 'A')
		} else {
			out[i] = c
		}
	}
	return out
}

// embedTimestamp requests an RFC 3161 timestamp token over sd's own
// EncryptedDigest (the finished signature bytes, not the document
// content) and folds the token into the first signer's unauthenticated
// attributes, exactly the teacher's createSignature TSA branch: it
// timestamps the signature after Detach but before Finish, so the
// token ships inside the one CMS blob rather than as a separate
// artifact.
func (d *Document) embedTimestamp(sd *pkcs7.SignedData, req SignRequest) error {
	signedData := sd.GetSignedData()
	if len(signedData.SignerInfos) == 0 {
		return fmt.Errorf("%w: no signer info to timestamp", ErrSigner)
	}

	tsReq, err := timestamp.CreateRequest(bytes.NewReader(signedData.SignerInfos[0].EncryptedDigest), &timestamp.RequestOptions{
		Hash:         req.DigestAlgorithm,
		Certificates: true,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to build timestamp request: %v", ErrSigner, err)
	}

	resp, err := postTimestampQuery(req.TSAURL, tsReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigner, err)
	}

	ts, err := timestamp.ParseResponse(resp)
	if err != nil {
		return fmt.Errorf("%w: failed to parse timestamp response: %v", ErrSigner, err)
	}
	if _, err := pkcs7.Parse(ts.RawToken); err != nil {
		return fmt.Errorf("%w: failed to parse timestamp token: %v", ErrSigner, err)
	}

	tsAttr := pkcs7.Attribute{
		Type:  timestampTokenAttributeOID,
		Value: encasn1.RawValue{FullBytes: ts.RawToken},
	}
	if err := signedData.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{tsAttr}); err != nil {
		return fmt.Errorf("%w: %v", ErrSigner, err)
	}
	return nil
}
