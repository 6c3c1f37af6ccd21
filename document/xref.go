package document

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// xrefSubsection is a maximal contiguous run of oids for the classic
// table form.
type xrefSubsection struct {
	start   uint32
	offsets []int64
}

// buildSubsections groups a sorted set of (oid, offset) pairs into
// maximal contiguous runs, object 0 always starting its own run with the
// fixed free-list entry.
func buildSubsections(entries map[uint32]int64) []xrefSubsection {
	oids := make([]uint32, 0, len(entries)+1)
	oids = append(oids, 0)
	for oid := range entries {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool { return oids[i] < oids[j] })

	var subs []xrefSubsection
	var cur *xrefSubsection
	for _, oid := range oids {
		if cur == nil || oid != cur.start+uint32(len(cur.offsets)) {
			subs = append(subs, xrefSubsection{start: oid})
			cur = &subs[len(subs)-1]
		}
		if oid == 0 {
			cur.offsets = append(cur.offsets, -1) // sentinel for the free entry
		} else {
			cur.offsets = append(cur.offsets, entries[oid])
		}
	}
	return subs
}

// targetVersion implements the §4.D revision-selection rule: classic
// xref ratchets the version down to the minimum of the input's xref
// revision version and the document version; cross-reference streams
// ratchet up to the maximum, and the input's form is always preserved
// (mixing classic and stream xrefs across revisions is illegal). No
// emission path calls it: Emit leaves the document's version as it came
// in, neither rewriting the header nor setting a catalog /Version.
func (d *Document) targetVersion() string {
	if d.XrefIsStream {
		if d.Version > d.XrefRevisionVersion {
			return d.Version
		}
		return d.XrefRevisionVersion
	}
	if d.Version < d.XrefRevisionVersion {
		return d.Version
	}
	return d.XrefRevisionVersion
}

// emitXrefAndTrailer writes either a classic xref+trailer block or a
// cross-reference stream object, dispatching on the input's revision
// style (never mixed, per the version-ratchet invariant). offsets maps
// every oid written in this revision to its byte offset within the final
// output (absolute, counted from byte 0 of the whole emitted stream).
// xrefOffset is the position this block itself starts at.
func (d *Document) emitXrefAndTrailer(offsets map[uint32]int64, xrefOffset int64, incremental bool) ([]byte, error) {
	if d.XrefIsStream {
		return d.emitXrefStream(offsets, xrefOffset, incremental)
	}
	return d.emitClassicXref(offsets, xrefOffset, incremental)
}

func (d *Document) emitClassicXref(offsets map[uint32]int64, xrefOffset int64, incremental bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("xref\n")

	subs := buildSubsections(offsets)
	for _, sub := range subs {
		fmt.Fprintf(&buf, "%d %d\n", sub.start, len(sub.offsets))
		for i, off := range sub.offsets {
			oid := sub.start + uint32(i)
			if oid == 0 {
				buf.WriteString("0000000000 65535 f \n")
				continue
			}
			fmt.Fprintf(&buf, "%010d %05d n \n", off, 0)
		}
	}

	trailer := d.Trailer.Clone()
	trailer.Set("Size", Int(int64(d.MaxOID)+1))
	if incremental {
		trailer.Set("Prev", Int(d.XrefOffsetOfInput))
	} else {
		trailer.Delete("Prev")
	}

	buf.WriteString("trailer\n")
	var tw strings.Builder
	DictValue(trailer).Serialize(&tw)
	buf.WriteString(tw.String())
	buf.WriteByte('\n')
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes(), nil
}

func (d *Document) emitXrefStream(offsets map[uint32]int64, xrefOffset int64, incremental bool) ([]byte, error) {
	xrefOID := d.NewOID()

	maxOffset := xrefOffset
	for _, off := range offsets {
		if off > maxOffset {
			maxOffset = off
		}
	}
	offsetWidth := byteWidth(maxOffset)

	subs := buildSubsections(offsets)
	// the xref stream object itself must appear in its own offset table
	subs = insertSelfEntry(subs, xrefOID, xrefOffset)

	var rows bytes.Buffer
	for _, sub := range subs {
		for i, off := range sub.offsets {
			oid := sub.start + uint32(i)
			if oid == 0 {
				rows.WriteByte(0)
				writeBigEndian(&rows, 0, offsetWidth)
				writeBigEndian(&rows, 65535, 2)
				continue
			}
			rows.WriteByte(1)
			writeBigEndian(&rows, uint64(off), offsetWidth)
			writeBigEndian(&rows, 0, 2)
		}
	}

	trailer := d.Trailer.Clone()
	trailer.Delete("Filter")
	trailer.Delete("DecodeParms")
	trailer.Set("Type", Name("XRef"))
	trailer.Set("Size", Int(int64(d.MaxOID)+1))
	trailer.Set("W", Array(Int(1), Int(int64(offsetWidth)), Int(2)))
	trailer.Set("Index", ArrayOf(indexArray(subs)))
	trailer.Set("Length", Int(int64(rows.Len())))
	if incremental {
		trailer.Set("Prev", Int(d.XrefOffsetOfInput))
	} else {
		trailer.Delete("Prev")
	}

	obj := Object{OID: xrefOID, Gen: 0, Value: DictValue(trailer), Stream: rows.Bytes()}

	var buf bytes.Buffer
	buf.Write(obj.Serialize())
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes(), nil
}

func indexArray(subs []xrefSubsection) []Value {
	out := make([]Value, 0, len(subs)*2)
	for _, s := range subs {
		out = append(out, Int(int64(s.start)), Int(int64(len(s.offsets))))
	}
	return out
}

func insertSelfEntry(subs []xrefSubsection, oid uint32, offset int64) []xrefSubsection {
	for i := range subs {
		s := &subs[i]
		if oid >= s.start && oid <= s.start+uint32(len(s.offsets)) {
			idx := int(oid - s.start)
			if idx == len(s.offsets) {
				s.offsets = append(s.offsets, offset)
			} else {
				s.offsets = append(s.offsets[:idx+1], s.offsets[idx:]...)
				s.offsets[idx] = offset
			}
			return subs
		}
	}
	subs = append(subs, xrefSubsection{start: oid, offsets: []int64{offset}})
	sort.Slice(subs, func(i, j int) bool { return subs[i].start < subs[j].start })
	return subs
}

// byteWidth returns the minimum number of bytes needed to hold n, at
// least 1 (ceil(log256(max_offset)) per §4.D).
func byteWidth(n int64) int {
	if n <= 0 {
		return 1
	}
	w := 0
	for n > 0 {
		n >>= 8
		w++
	}
	return w
}

func writeBigEndian(buf *bytes.Buffer, v uint64, width int) {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v & 0xff)
		v >>= 8
	}
	buf.Write(b)
}
