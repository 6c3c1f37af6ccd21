package document

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"strings"
	"time"
)

// annotationFlagPrint and annotationFlagLocked combine into the widget's
// /F value. Design note (a): this value is carried forward unchanged
// from observed behavior even though its origin comment only said "check
// this value" — it is retained as-is and flagged here as under review
// rather than re-derived.
const (
	annotationFlagPrint  = 1 << 2
	annotationFlagLocked = 1 << 7
	widgetFlags          = annotationFlagPrint | annotationFlagLocked // 132
)

// SignRequest carries everything PrepareSignature needs: the signer's
// identity, where on the page to place the widget, and an optional
// appearance raster.
type SignRequest struct {
	Cert      *x509.Certificate
	CertChain []*x509.Certificate
	Signer    crypto.Signer

	Page int
	Rect [4]float64

	Image []byte // optional raster for the n2 appearance layer
	Text  string // optional fallback label rendered when Image is empty

	// TextFont, when set, is a TrueType font used to measure Text
	// precisely; otherwise a flat Helvetica approximation is used.
	TextFont []byte

	Config             Config
	WidgetRandomSource io.Reader
	Now                time.Time
	TSAURL             string
	Revocation         RevocationFunction
	DigestAlgorithm    crypto.Hash
}

// SignaturePrep is the state PrepareSignature assembles and Emit later
// consumes to perform the two-pass placeholder/ByteRange/signing
// sequence. At most one exists per Document (invariant 4).
type SignaturePrep struct {
	SigObject    *Object
	WidgetObject *Object
	Request      SignRequest
	M            string
}

func byteRangePlaceholder(capacity int) string {
	const prefix = "["
	const suffix = "]"
	inner := capacity - len(prefix) - len(suffix)
	if inner < 0 {
		inner = 0
	}
	return prefix + strings.Repeat("*", inner) + suffix
}

func contentsPlaceholder(hexCapacity int) string {
	return "<" + strings.Repeat("0", hexCapacity) + ">"
}

// pdfDateTime formats t as a PDF date string: D:YYYYMMDDHHMMSS+HH'MM'.
func pdfDateTime(t time.Time) string {
	_, offset := t.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	return fmt.Sprintf("D:%s%s%02d'%02d'", t.Format("20060102150405"), sign, hours, minutes)
}

// PrepareSignature implements §4.E steps 1-11. It fails closed: if any
// step fails, overrides is rolled back to its pre-call snapshot and no
// pendingSignature is registered.
func (d *Document) PrepareSignature(req SignRequest) error {
	if d.pendingSignature != nil {
		return ErrAlreadyPrepared
	}
	if req.Cert == nil || req.Signer == nil {
		return ErrCertLoad
	}
	if req.Config.SignatureHexCapacity == 0 {
		req.Config = DefaultConfig()
		if size, err := EstimateSignatureSize(req.Cert); err == nil {
			req.Config.SignatureHexCapacity = size
		}
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	if req.DigestAlgorithm == 0 {
		req.DigestAlgorithm = crypto.SHA256
	}

	snap := d.snapshotOverrides()
	if err := d.prepareSignatureLocked(&req); err != nil {
		d.restoreOverrides(snap)
		return err
	}
	return nil
}

func (d *Document) prepareSignatureLocked(req *SignRequest) error {
	// 2. Root -> catalog.
	rootVal, ok := d.Trailer.Get("Root")
	if !ok {
		return ErrMissingRoot
	}
	catalogObj, err := d.Resolve(rootVal)
	if err != nil || catalogObj == nil || catalogObj.Value.Kind != KindDict {
		return ErrMissingRoot
	}

	// 3. Resolve the target page, compute pagesize_h.
	pageObj, ok := d.GetPage(req.Page)
	if !ok {
		return ErrInvalidPage
	}
	mediaBox, ok := d.PageSize(req.Page)
	if !ok {
		return ErrInvalidPage
	}
	pagesizeH := mediaBox[3] - mediaBox[1]

	m := pdfDateTime(req.Now)

	// 4. Create the signature object.
	sigDict := NewDict()
	sigDict.Set("Filter", Name("Adobe.PPKLite"))
	sigDict.Set("Type", Name("Sig"))
	sigDict.Set("SubFilter", Name("adbe.pkcs7.detached"))
	sigDict.Set("ByteRange", Raw(byteRangePlaceholder(req.Config.ByteRangeCapacity)))
	sigDict.Set("Contents", Raw(contentsPlaceholder(req.Config.SignatureHexCapacity)))
	sigDict.Set("M", String(m))
	sigObj := d.CreateObject(DictValue(sigDict), ObjectSignature)

	// 5. Widget annotation.
	suffix, err := randomWidgetSuffix(req.WidgetRandomSource)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSigner, err)
	}
	rect := Array(
		Real(req.Rect[0]), Real(pagesizeH-req.Rect[1]),
		Real(req.Rect[2]), Real(pagesizeH-req.Rect[3]),
	)
	widgetDict := NewDict()
	widgetDict.Set("Type", Name("Annot"))
	widgetDict.Set("Subtype", Name("Widget"))
	widgetDict.Set("FT", Name("Sig"))
	widgetDict.Set("V", sigObj.Reference())
	widgetDict.Set("T", widgetTitleValue("Signature"+suffix))
	widgetDict.Set("P", pageObj.Reference())
	widgetDict.Set("Rect", rect)
	widgetDict.Set("F", Int(widgetFlags))
	widgetObj := d.CreateObject(DictValue(widgetDict), ObjectPlain)

	// 6. Optional Adobe four-object appearance stack.
	if len(req.Image) > 0 || req.Text != "" {
		stack, err := d.buildAppearanceStack(req.Rect[2]-req.Rect[0], req.Rect[3]-req.Rect[1], req.Image, req.Text, req.TextFont)
		if err != nil {
			return err
		}
		ap := NewDict()
		ap.Set("N", stack.Form.Reference())
		wd := widgetObj.Value.Dict
		wd.Set("AP", DictValue(ap))
	}

	// 7. Page /Annots update.
	if err := d.appendAnnotToPage(pageObj, widgetObj.Reference()); err != nil {
		return err
	}

	// 8. AcroForm update.
	if err := d.updateAcroForm(catalogObj, widgetObj.Reference()); err != nil {
		return err
	}

	// 9. Metadata update (optional, best-effort).
	d.rewriteMetadata(catalogObj, req.Now)

	// 10. Info update.
	if err := d.updateInfo(m, req.Config.Producer); err != nil {
		return err
	}

	// 11. Register pending signature.
	d.pendingSignature = &SignaturePrep{SigObject: sigObj, WidgetObject: widgetObj, Request: *req, M: m}
	return nil
}

// appendAnnotToPage implements the three Annots shapes §4.E.7 names: no
// existing Annots (create a fresh list), an inline list (clone into a
// new indirect object), or an existing indirect reference to something
// other than a list of refs (materialize and extend that object).
func (d *Document) appendAnnotToPage(pageObj *Object, widgetRef Value) error {
	if pageObj.Value.Kind != KindDict {
		return ErrInvalidPage
	}

	annots, has := pageObj.Value.Dict.Get("Annots")
	var listObj *Object

	switch {
	case !has:
		listObj = d.CreateObject(Array(widgetRef), ObjectPlain)
	case annots.Kind == KindArray:
		newArr := append(append([]Value{}, annots.Arr...), widgetRef)
		listObj = d.CreateObject(ArrayOf(newArr), ObjectPlain)
	case annots.Kind == KindRef:
		existing, err := d.Resolve(annots)
		if err != nil {
			return err
		}
		var items []Value
		if existing != nil && existing.Value.Kind == KindArray {
			items = append(items, existing.Value.Arr...)
		}
		items = append(items, widgetRef)
		oid, _, _ := annots.AsReference()
		listObj = &Object{OID: oid, Value: ArrayOf(items)}
		d.AddObject(listObj)
	default:
		return ErrInvalidPage
	}

	pageDict := pageObj.Value.Dict.Clone()
	pageDict.Set("Annots", listObj.Reference())
	updatedPage := &Object{OID: pageObj.OID, Gen: pageObj.Gen, Value: DictValue(pageDict)}
	d.AddObject(updatedPage)
	return nil
}

// updateAcroForm ensures catalog.AcroForm exists (inline or indirect),
// sets /SigFlags = 3, ensures /Fields is a list, and appends the
// annotation reference.
func (d *Document) updateAcroForm(catalogObj *Object, widgetRef Value) error {
	acroVal, has := catalogObj.Value.Dict.Get("AcroForm")

	var acroDict *Dict
	var acroIsIndirect bool
	var acroOID uint32

	switch {
	case !has:
		acroDict = NewDict()
	case acroVal.Kind == KindDict:
		acroDict = acroVal.Dict.Clone()
	case acroVal.Kind == KindRef:
		existing, err := d.Resolve(acroVal)
		if err != nil {
			return err
		}
		if existing == nil || existing.Value.Kind != KindDict {
			acroDict = NewDict()
		} else {
			acroDict = existing.Value.Dict.Clone()
		}
		acroIsIndirect = true
		acroOID, _, _ = acroVal.AsReference()
	default:
		return ErrMissingRoot
	}

	fields, hasFields := acroDict.Get("Fields")
	var newFields []Value
	if hasFields && fields.Kind == KindArray {
		newFields = append(newFields, fields.Arr...)
	}
	newFields = append(newFields, widgetRef)
	acroDict.Set("Fields", ArrayOf(newFields))
	acroDict.Set("SigFlags", Int(3))

	if acroIsIndirect {
		d.AddObject(&Object{OID: acroOID, Value: DictValue(acroDict)})
		return nil
	}

	catalogDict := catalogObj.Value.Dict.Clone()
	catalogDict.Set("AcroForm", DictValue(acroDict))
	d.AddObject(&Object{OID: catalogObj.OID, Value: DictValue(catalogDict)})
	return nil
}

// updateInfo sets /ModDate and /Producer on the trailer's /Info object.
func (d *Document) updateInfo(m, producer string) error {
	infoVal, ok := d.Trailer.Get("Info")
	if !ok {
		return ErrMissingInfo
	}
	infoObj, err := d.Resolve(infoVal)
	if err != nil {
		return err
	}
	if infoObj == nil || infoObj.Value.Kind != KindDict {
		return ErrMissingInfo
	}
	oid, _, isRef := infoVal.AsReference()
	if !isRef {
		return ErrMissingInfo
	}

	infoDict := infoObj.Value.Dict.Clone()
	infoDict.Set("ModDate", String(m))
	infoDict.Set("Producer", String(producer))
	d.AddObject(&Object{OID: oid, Value: DictValue(infoDict)})
	return nil
}

// rewriteMetadata rewrites <xmp:ModifyDate> / <xmp:MetadataDate> inside
// catalog.Metadata's stream, when present, to the current time. Best
// effort: supplementing spec.md §4.E.9's optional step, failure here
// never fails PrepareSignature as a whole. A document with no /Metadata,
// or one whose /Metadata stream this module itself created earlier in
// the same session (and so never reached originalStreamCache), is left
// untouched.
func (d *Document) rewriteMetadata(catalogObj *Object, now time.Time) {
	metaVal, ok := catalogObj.Value.Dict.Get("Metadata")
	if !ok {
		return
	}
	oid, gen, isRef := metaVal.AsReference()
	if !isRef {
		return
	}
	metaObj, ok := d.GetObject(oid, false)
	if !ok || metaObj.Value.Kind != KindDict {
		return
	}
	packet, ok := d.originalStreamCache[oid]
	if !ok {
		return
	}

	iso := now.UTC().Format("2006-01-02T15:04:05+00:00")
	rewritten, changed := rewriteXMPDates(packet, iso)
	if !changed {
		return
	}

	metaDict := metaObj.Value.Dict.Clone()
	// The cached bytes are already filter-decoded; writing them back
	// unfiltered keeps Object.Serialize's /Length in sync without this
	// module needing its own FlateDecode encoder for a metadata packet.
	metaDict.Delete("Filter")
	metaDict.Delete("DecodeParms")
	d.AddObject(&Object{OID: oid, Gen: gen, Value: DictValue(metaDict), Stream: rewritten})
}

// rewriteXMPDates replaces the text content of the <xmp:ModifyDate> and
// <xmp:MetadataDate> elements in packet with iso, reporting whether
// either tag was found. A plain byte scan rather than an XML parser:
// XMP packets are deliberately not required to be well-formed XML
// outside their RDF island, and the pack carries no dedicated XMP
// library to reach for.
func rewriteXMPDates(packet []byte, iso string) ([]byte, bool) {
	out := packet
	changed := false
	for _, tag := range [...]string{"xmp:ModifyDate", "xmp:MetadataDate"} {
		var ok bool
		out, ok = replaceXMPElementText(out, tag, iso)
		changed = changed || ok
	}
	return out, changed
}

func replaceXMPElementText(packet []byte, tag, value string) ([]byte, bool) {
	open := []byte("<" + tag + ">")
	closeTag := []byte("</" + tag + ">")

	start := bytes.Index(packet, open)
	if start == -1 {
		return packet, false
	}
	contentStart := start + len(open)
	rel := bytes.Index(packet[contentStart:], closeTag)
	if rel == -1 {
		return packet, false
	}
	contentEnd := contentStart + rel

	out := make([]byte, 0, len(packet)-(contentEnd-contentStart)+len(value))
	out = append(out, packet[:contentStart]...)
	out = append(out, value...)
	out = append(out, packet[contentEnd:]...)
	return out, true
}

// sigReplaceContents splices hexSignature (already hex-encoded, upper or
// lower case) into buf's reserved /Contents window, right-padded with
// '0' to the full placeholder width.
func sigReplaceContents(buf []byte, contentsStart, capacity int, hexSignature []byte) error {
	if len(hexSignature) > capacity {
		return fmt.Errorf("%w: signature is %d hex chars, only %d reserved", ErrSigner, len(hexSignature), capacity)
	}
	padded := make([]byte, capacity)
	copy(padded, hexSignature)
	for i := len(hexSignature); i < capacity; i++ {
		padded[i] = '0'
	}
	copy(buf[contentsStart:contentsStart+capacity], padded)
	return nil
}

// findPlaceholder returns the offset of tok's first occurrence in buf,
// failing if it is missing. A second occurrence is not detected; the
// placeholders are constant-width marker strings chosen for uniqueness.
func findPlaceholder(buf []byte, tok string) (int, error) {
	idx := bytes.Index(buf, []byte(tok))
	if idx == -1 {
		return 0, fmt.Errorf("%w: placeholder %q not found", ErrSigner, tok)
	}
	return idx, nil
}
