package document

import (
	"bytes"
	"strings"
	"testing"
)

func TestObjectSerializePlain(t *testing.T) {
	d := NewDict()
	d.Set("Type", Name("Catalog"))
	obj := Object{OID: 7, Gen: 0, Value: DictValue(d)}

	got := string(obj.Serialize())
	want := "7 0 obj\n<< /Type /Catalog >>\nendobj\n"
	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
}

func TestObjectSerializeStreamAddsLength(t *testing.T) {
	d := NewDict()
	d.Set("Type", Name("XRef"))
	obj := Object{OID: 12, Gen: 0, Value: DictValue(d), Stream: []byte("hello")}

	got := string(obj.Serialize())
	if !strings.Contains(got, "/Length 5") {
		t.Errorf("Serialize() = %q, missing /Length 5", got)
	}
	if !strings.HasPrefix(got, "12 0 obj\n") {
		t.Errorf("Serialize() = %q, missing object header", got)
	}
	if !strings.Contains(got, "stream\nhello\nendstream\nendobj\n") {
		t.Errorf("Serialize() = %q, malformed stream wrapper", got)
	}
}

func TestObjectSerializeStreamOnNonDictPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Serialize() did not panic on a non-dict object carrying a stream")
		}
	}()
	obj := Object{OID: 1, Value: Int(5), Stream: []byte("x")}
	obj.Serialize()
}

func TestObjectReference(t *testing.T) {
	obj := Object{OID: 9, Gen: 2}
	ref := obj.Reference()
	oid, gen, ok := ref.AsReference()
	if !ok || oid != 9 || gen != 2 {
		t.Errorf("Reference() = %v, want 9 2 R", ref.String())
	}
}

func TestObjectSerializeIsDeterministic(t *testing.T) {
	d := NewDict()
	d.Set("A", Int(1))
	d.Set("B", Array(Int(1), Int(2)))
	obj := Object{OID: 3, Gen: 0, Value: DictValue(d)}

	first := obj.Serialize()
	second := obj.Serialize()
	if !bytes.Equal(first, second) {
		t.Errorf("Serialize() is not deterministic across calls")
	}
}
