package document

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedTestCert(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		t.Fatalf("rand.Int() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "pdfseal test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}
	return cert, key
}

// buildSignableFixture wires a minimal single-page document with a
// catalog, an Info dict, and a page, all reachable without the external
// tokenizer, so PrepareSignature can run against it directly.
func buildSignableFixture() *Document {
	d := newTestDocument()

	page := NewDict()
	page.Set("Type", Name("Page"))
	d.overrides[10] = &Object{OID: 10, Value: DictValue(page)}

	pages := NewDict()
	pages.Set("Type", Name("Pages"))
	pages.Set("MediaBox", Array(Int(0), Int(0), Int(612), Int(792)))
	pages.Set("Kids", Array(Ref(10, 0)))
	d.overrides[2] = &Object{OID: 2, Value: DictValue(pages)}

	catalog := NewDict()
	catalog.Set("Type", Name("Catalog"))
	catalog.Set("Pages", Ref(2, 0))
	d.overrides[1] = &Object{OID: 1, Value: DictValue(catalog)}

	info := NewDict()
	info.Set("Title", String("test"))
	d.overrides[3] = &Object{OID: 3, Value: DictValue(info)}

	d.Trailer.Set("Root", Ref(1, 0))
	d.Trailer.Set("Info", Ref(3, 0))
	d.MaxOID = 3

	if err := d.walkPages(); err != nil {
		panic(err)
	}
	return d
}

func TestPrepareSignatureBuildsWidgetAndSigDict(t *testing.T) {
	d := buildSignableFixture()
	cert, key := selfSignedTestCert(t)

	req := SignRequest{
		Cert:   cert,
		Signer: key,
		Page:   0,
		Rect:   [4]float64{100, 100, 300, 160},
	}

	if err := d.PrepareSignature(req); err != nil {
		t.Fatalf("PrepareSignature() error = %v", err)
	}
	if d.pendingSignature == nil {
		t.Fatal("PrepareSignature() left pendingSignature nil")
	}

	sigObj := d.pendingSignature.SigObject
	if sigObj.Kind != ObjectSignature {
		t.Errorf("SigObject.Kind = %v, want ObjectSignature", sigObj.Kind)
	}
	subFilter, _ := sigObj.Value.Dict.Get("SubFilter")
	if subFilter.Str != "adbe.pkcs7.detached" {
		t.Errorf("SubFilter = %q, want adbe.pkcs7.detached", subFilter.Str)
	}
	byteRange, _ := sigObj.Value.Dict.Get("ByteRange")
	if byteRange.Kind != KindRaw {
		t.Errorf("ByteRange value kind = %v, want KindRaw (placeholder)", byteRange.Kind)
	}

	widgetObj := d.pendingSignature.WidgetObject
	flags, _ := widgetObj.Value.Dict.Get("F")
	if flags.Int != widgetFlags {
		t.Errorf("widget /F = %d, want %d", flags.Int, widgetFlags)
	}
	v, _ := widgetObj.Value.Dict.Get("V")
	if oid, _, ok := v.AsReference(); !ok || oid != sigObj.OID {
		t.Errorf("widget /V = %v, want a reference to the sig object", v)
	}

	catalogObj, _ := d.GetObject(1, false)
	acroVal, ok := catalogObj.Value.Dict.Get("AcroForm")
	if !ok || acroVal.Kind != KindDict {
		t.Fatal("catalog has no inline /AcroForm after PrepareSignature")
	}
	sigFlags, _ := acroVal.Dict.Get("SigFlags")
	if sigFlags.Int != 3 {
		t.Errorf("AcroForm /SigFlags = %d, want 3", sigFlags.Int)
	}
	fields, _ := acroVal.Dict.Get("Fields")
	if len(fields.Arr) != 1 {
		t.Errorf("AcroForm /Fields has %d entries, want 1", len(fields.Arr))
	}

	pageObj, _ := d.GetObject(10, false)
	annots, ok := pageObj.Value.Dict.Get("Annots")
	if !ok {
		t.Fatal("page has no /Annots after PrepareSignature")
	}
	annotsListObj, err := d.Resolve(annots)
	if err != nil {
		t.Fatalf("Resolve(Annots) error = %v", err)
	}
	if len(annotsListObj.Value.Arr) != 1 {
		t.Errorf("page /Annots has %d entries, want 1", len(annotsListObj.Value.Arr))
	}

	infoObj, _ := d.GetObject(3, false)
	producer, _ := infoObj.Value.Dict.Get("Producer")
	if producer.Str == "" {
		t.Error("Info /Producer was not set")
	}
}

func TestPrepareSignatureRejectsSecondCall(t *testing.T) {
	d := buildSignableFixture()
	cert, key := selfSignedTestCert(t)
	req := SignRequest{Cert: cert, Signer: key, Page: 0, Rect: [4]float64{0, 0, 10, 10}}

	if err := d.PrepareSignature(req); err != nil {
		t.Fatalf("first PrepareSignature() error = %v", err)
	}
	if err := d.PrepareSignature(req); err != ErrAlreadyPrepared {
		t.Errorf("second PrepareSignature() error = %v, want ErrAlreadyPrepared", err)
	}
}

func TestPrepareSignatureRollsBackOnInvalidPage(t *testing.T) {
	d := buildSignableFixture()
	cert, key := selfSignedTestCert(t)
	req := SignRequest{Cert: cert, Signer: key, Page: 99, Rect: [4]float64{0, 0, 10, 10}}

	before := len(d.overrideOrder)
	if err := d.PrepareSignature(req); err != ErrInvalidPage {
		t.Fatalf("PrepareSignature() error = %v, want ErrInvalidPage", err)
	}
	if d.pendingSignature != nil {
		t.Error("PrepareSignature() left pendingSignature set after failure")
	}
	if len(d.overrideOrder) != before {
		t.Errorf("overrideOrder grew from %d to %d after a failed PrepareSignature", before, len(d.overrideOrder))
	}
}

func TestPrepareSignatureRejectsNilCert(t *testing.T) {
	d := buildSignableFixture()
	if err := d.PrepareSignature(SignRequest{Page: 0}); err != ErrCertLoad {
		t.Errorf("PrepareSignature() error = %v, want ErrCertLoad", err)
	}
}
