// Package document implements the object model, incremental serializer,
// and signature preparation protocol used to turn an existing PDF byte
// stream into a signed, byte-compatible successor document.
package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/digitorus/pdf"
)

// XrefEntry indexes one object in the original input: its byte offset,
// generation, and whether it is in use (as opposed to a free-list entry).
type XrefEntry struct {
	Offset   int64
	Gen      uint16
	InUse    bool
}

// PageEntry is one resolved leaf of the page tree.
type PageEntry struct {
	OID      uint32
	MediaBox [4]float64
}

// Document owns the object table, the xref view over the original bytes,
// the trailer, the document version, the page index, and any pending
// signature. Per invariant 2, get_object prefers overrides over the
// parsed table unless the caller explicitly asks for the original;
// overrides is write-only from the outside, populated only through
// CreateObject/AddObject.
type Document struct {
	Version string

	OriginalBytes []byte
	reader        *pdf.Reader

	OriginalXref        map[uint32]XrefEntry
	XrefRevisionVersion string
	XrefOffsetOfInput   int64
	XrefIsStream        bool

	overrideOrder []uint32
	overrides     map[uint32]*Object

	// originalCache holds every original (non-overridden) dictionary or
	// array object this Document has dereferenced so far, keyed by oid.
	// The external reader resolves references relative to a parent value
	// it already holds rather than exposing a generic oid->Value lookup,
	// so this module populates the cache as it walks the page tree,
	// trailer /Root, /Info and /AcroForm — the same roots the teacher
	// itself starts every traversal from.
	originalCache map[uint32]Value

	// originalStreamCache holds the decoded (filter-applied) bytes of
	// every original stream object this Document has dereferenced,
	// keyed by oid. Populated alongside originalCache so a later
	// rewrite (e.g. rewriteMetadata) can edit a pre-existing stream's
	// content without re-parsing the input.
	originalStreamCache map[uint32][]byte

	Trailer *Dict
	MaxOID  uint32

	PageIndex []PageEntry

	pendingSignature *SignaturePrep

	// Encrypted is set when the trailer carries an /Encrypt entry;
	// behavior on such documents is otherwise undefined (spec design
	// note b).
	Encrypted bool
}

// Open parses raw with the external tokenizer/xref/trailer collaborator
// and populates a fresh Document. It runs the page walk eagerly, the way
// the teacher scans auxiliary structure right after construction and
// swallows a failed scan rather than failing the whole open (best-effort,
// not mandatory for every caller).
func Open(raw []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	doc := &Document{
		OriginalBytes:       raw,
		reader:              r,
		OriginalXref:        make(map[uint32]XrefEntry),
		overrides:           make(map[uint32]*Object),
		originalCache:       make(map[uint32]Value),
		originalStreamCache: make(map[uint32][]byte),
	}

	trailer := r.Trailer()
	trailerPtr := trailer.GetPtr()
	doc.Trailer = doc.convertDict(trailer, trailerPtr.GetID())
	if doc.Trailer == nil {
		doc.Trailer = NewDict()
	}

	if _, ok := doc.Trailer.Get("Encrypt"); ok {
		doc.Encrypted = true
	}

	if sz, ok := doc.Trailer.Get("Size"); ok && sz.Kind == KindInt {
		if sz.Int > 0 {
			doc.MaxOID = uint32(sz.Int) - 1
		}
	}

	doc.Version = detectHeaderVersion(raw)
	doc.XrefOffsetOfInput = r.XrefInformation.StartPos
	doc.XrefIsStream = r.XrefInformation.Type == "stream"
	if doc.XrefIsStream {
		doc.XrefRevisionVersion = "PDF-1.5"
	} else {
		doc.XrefRevisionVersion = "PDF-1.4"
	}

	if err := doc.walkPages(); err != nil {
		// Best-effort, matching the teacher's swallowed font/auxiliary
		// scan: a document that fails the page walk is still usable for
		// raw object operations.
		doc.PageIndex = nil
	}

	if doc.Encrypted {
		return doc, ErrEncryptedWarning
	}
	return doc, nil
}

// detectHeaderVersion reads the "%PDF-x.y" header comment off the first
// line of raw, the version every conforming reader takes as authoritative
// absent a conflicting catalog /Version override. Falls back to PDF-1.4
// when the header is missing or unparseable.
func detectHeaderVersion(raw []byte) string {
	const prefix = "%PDF-"
	if !bytes.HasPrefix(raw, []byte(prefix)) {
		return "PDF-1.4"
	}
	rest := raw[len(prefix):]
	end := bytes.IndexAny(rest, "\r\n \t")
	if end == -1 {
		end = len(rest)
	}
	v := strings.TrimSpace(string(rest[:end]))
	if v == "" {
		return "PDF-1.4"
	}
	return "PDF-" + v
}

// convertValue converts an external pdf.Value reached while dereferencing
// the object identified by enclosingOID into this module's own Value
// tree. Any nested value whose pointer id differs from enclosingOID is
// itself an indirect reference (the same pointer-identity heuristic the
// teacher's serializeCatalogEntry uses) and is converted to a Ref rather
// than inlined; the referenced object's dictionary/array is cached so a
// later GetObject(oid, preferOriginal=true) can find it without asking
// the external reader to re-resolve it.
func (d *Document) convertValue(v pdf.Value, enclosingOID uint32) Value {
	if ptr := v.GetPtr(); ptr.GetID() != 0 && ptr.GetID() != enclosingOID {
		d.cacheOriginal(v, ptr.GetID())
		return Ref(ptr.GetID(), uint16(ptr.GetGen()))
	}
	switch v.Kind() {
	case pdf.Null:
		return Null()
	case pdf.Bool:
		return Bool(v.Bool())
	case pdf.Integer:
		return Int(v.Int64())
	case pdf.Real:
		return Real(v.Float64())
	case pdf.Name:
		return Name(v.Name())
	case pdf.String:
		return String(v.RawString())
	case pdf.Dict, pdf.Stream:
		return DictValue(d.convertDict(v, enclosingOID))
	case pdf.Array:
		arr := make([]Value, v.Len())
		for i := range arr {
			arr[i] = d.convertValue(v.Index(i), enclosingOID)
		}
		return ArrayOf(arr)
	default:
		return Null()
	}
}

func (d *Document) convertDict(v pdf.Value, enclosingOID uint32) *Dict {
	if k := v.Kind(); k != pdf.Dict && k != pdf.Stream {
		return nil
	}
	dict := NewDict()
	for _, k := range v.Keys() {
		dict.Set(k, d.convertValue(v.Key(k), enclosingOID))
	}
	return dict
}

// cacheOriginal converts and stores the dict/array reached at oid so a
// later lookup with preferOriginal=true can return it without holding
// onto the external reader's own Value. For a stream object it also
// decodes and caches the raw payload bytes (originalStreamCache), the
// way the teacher's ExtractPageAsXObject reads a content stream via
// pdf.Value.Reader() instead of re-deriving it from the filtered bytes.
func (d *Document) cacheOriginal(v pdf.Value, oid uint32) {
	if _, already := d.originalCache[oid]; already {
		return
	}
	switch v.Kind() {
	case pdf.Dict, pdf.Array:
		// Reserve the slot first so a reference cycle (a page's /Parent
		// pointing back at its /Pages node) stops at the guard above.
		d.originalCache[oid] = Null()
		d.originalCache[oid] = d.convertValue(v, oid)
	case pdf.Stream:
		d.originalCache[oid] = Null()
		d.originalCache[oid] = d.convertValue(v, oid)
		if r := v.Reader(); r != nil {
			if data, err := io.ReadAll(r); err == nil {
				d.originalStreamCache[oid] = data
			}
		}
	}
}

// GetObject returns the object for oid, preferring overrides unless
// preferOriginal inverts that (invariant 2). A nil, false result means
// absence, not error — only callers decide whether that is fatal.
func (d *Document) GetObject(oid uint32, preferOriginal bool) (*Object, bool) {
	if !preferOriginal {
		if o, ok := d.overrides[oid]; ok {
			return o, true
		}
	}
	if val, ok := d.originalCache[oid]; ok {
		return &Object{OID: oid, Value: val}, true
	}
	if preferOriginal {
		if o, ok := d.overrides[oid]; ok {
			return o, true
		}
	}
	return nil, false
}

// Resolve follows v if it is an indirect reference; if v is a list of
// references it returns ErrMixedReference; otherwise it wraps v as a
// synthetic, oid-less Object.
func (d *Document) Resolve(v Value) (*Object, error) {
	if oid, _, ok := v.AsReference(); ok {
		if obj, found := d.GetObject(oid, false); found {
			return obj, nil
		}
		return nil, nil
	}
	if v.Kind == KindArray {
		allRefs := len(v.Arr) > 0
		for _, e := range v.Arr {
			if e.Kind != KindRef {
				allRefs = false
				break
			}
		}
		if allRefs {
			return nil, ErrMixedReference
		}
	}
	return &Object{Value: v}, nil
}

// NewOID returns max_oid + 1 and advances the counter.
func (d *Document) NewOID() uint32 {
	d.MaxOID++
	return d.MaxOID
}

// CreateObject allocates a fresh oid via NewOID, builds an Object of the
// requested kind around initial, registers it in overrides, and returns
// it.
func (d *Document) CreateObject(initial Value, kind ObjectKind) *Object {
	obj := &Object{OID: d.NewOID(), Gen: 0, Value: initial, Kind: kind}
	d.AddObject(obj)
	return obj
}

// AddObject inserts or replaces obj in overrides (invariant 3: overrides
// is write-only from outside except through this and CreateObject) and
// raises MaxOID if obj.OID exceeds it (invariant 1).
func (d *Document) AddObject(obj *Object) {
	if _, exists := d.overrides[obj.OID]; !exists {
		d.overrideOrder = append(d.overrideOrder, obj.OID)
	}
	d.overrides[obj.OID] = obj
	if obj.OID > d.MaxOID {
		d.MaxOID = obj.OID
	}
}

// snapshot and restore give PrepareSignature its all-or-nothing rollback:
// if any step of signature preparation fails, overrides must return to
// exactly the state before the call.
type overridesSnapshot struct {
	order  []uint32
	values map[uint32]*Object
	maxOID uint32
	sig    *SignaturePrep
}

func (d *Document) snapshotOverrides() overridesSnapshot {
	order := make([]uint32, len(d.overrideOrder))
	copy(order, d.overrideOrder)
	values := make(map[uint32]*Object, len(d.overrides))
	for k, v := range d.overrides {
		values[k] = v
	}
	return overridesSnapshot{order: order, values: values, maxOID: d.MaxOID, sig: d.pendingSignature}
}

func (d *Document) restoreOverrides(s overridesSnapshot) {
	d.overrideOrder = s.order
	d.overrides = s.values
	d.MaxOID = s.maxOID
	d.pendingSignature = s.sig
}

// GetPage returns the i'th page object (0-indexed) per PageIndex order.
func (d *Document) GetPage(i int) (*Object, bool) {
	if i < 0 || i >= len(d.PageIndex) {
		return nil, false
	}
	oid := d.PageIndex[i].OID
	return d.GetObject(oid, false)
}

// PageSize returns the i'th page's MediaBox.
func (d *Document) PageSize(i int) ([4]float64, bool) {
	if i < 0 || i >= len(d.PageIndex) {
		return [4]float64{}, false
	}
	return d.PageIndex[i].MediaBox, true
}

// PageCount returns the number of /Page nodes reachable from /Root.Pages.
func (d *Document) PageCount() int { return len(d.PageIndex) }
