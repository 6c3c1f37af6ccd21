package document

import (
	"bytes"
	"testing"
)

func TestBuildSubsectionsContiguousRun(t *testing.T) {
	entries := map[uint32]int64{1: 100, 2: 200, 3: 300}
	subs := buildSubsections(entries)

	if len(subs) != 1 {
		t.Fatalf("buildSubsections() = %d subsections, want 1 (0,1,2,3 is contiguous)", len(subs))
	}
	sub := subs[0]
	if sub.start != 0 || len(sub.offsets) != 4 {
		t.Fatalf("buildSubsections() = start %d len %d, want start 0 len 4", sub.start, len(sub.offsets))
	}
	if sub.offsets[0] != -1 {
		t.Errorf("free entry (oid 0) offset = %d, want sentinel -1", sub.offsets[0])
	}
	if sub.offsets[1] != 100 || sub.offsets[2] != 200 || sub.offsets[3] != 300 {
		t.Errorf("offsets = %v, want [-1 100 200 300]", sub.offsets)
	}
}

func TestBuildSubsectionsGap(t *testing.T) {
	entries := map[uint32]int64{1: 100, 5: 500, 6: 600}
	subs := buildSubsections(entries)

	if len(subs) != 2 {
		t.Fatalf("buildSubsections() = %d subsections, want 2 (gap between 1 and 5)", len(subs))
	}
	if subs[0].start != 0 || len(subs[0].offsets) != 2 {
		t.Errorf("first subsection = start %d len %d, want start 0 len 2", subs[0].start, len(subs[0].offsets))
	}
	if subs[1].start != 5 || len(subs[1].offsets) != 2 {
		t.Errorf("second subsection = start %d len %d, want start 5 len 2", subs[1].start, len(subs[1].offsets))
	}
}

func TestByteWidth(t *testing.T) {
	cases := []struct {
		n    int64
		want int
	}{
		{0, 1},
		{1, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 3},
	}
	for _, c := range cases {
		if got := byteWidth(c.n); got != c.want {
			t.Errorf("byteWidth(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestWriteBigEndian(t *testing.T) {
	var buf bytes.Buffer
	writeBigEndian(&buf, 0x0102, 2)
	got := buf.Bytes()
	want := []byte{0x01, 0x02}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("writeBigEndian(0x0102, 2) = %v, want %v", got, want)
	}
}

func TestInsertSelfEntryExtendsRun(t *testing.T) {
	subs := []xrefSubsection{{start: 0, offsets: []int64{-1, 100}}}
	subs = insertSelfEntry(subs, 2, 999)

	if len(subs) != 1 {
		t.Fatalf("insertSelfEntry() produced %d subsections, want 1", len(subs))
	}
	if len(subs[0].offsets) != 3 || subs[0].offsets[2] != 999 {
		t.Errorf("offsets = %v, want the new entry appended with offset 999", subs[0].offsets)
	}
}

func TestIndexArray(t *testing.T) {
	subs := []xrefSubsection{{start: 0, offsets: []int64{-1, 100, 200}}}
	arr := indexArray(subs)
	if len(arr) != 2 || arr[0].Int != 0 || arr[1].Int != 3 {
		t.Errorf("indexArray() = %v, want [0 3]", arr)
	}
}
