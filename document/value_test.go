package document

import "testing"

func TestSerializeScalars(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Bool(true), "true"},
		{Bool(false), "false"},
		{Int(-42), "-42"},
		{Real(1.5), "1.5"},
		{Real(2.0), "2"},
		{Name("Type"), "/Type"},
		{String("hello"), "(hello)"},
		{HexString("abcd"), "<ABCD>"},
		{Ref(5, 0), "5 0 R"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("Serialize(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestSerializeNameEscaping(t *testing.T) {
	v := Name("A B#C")
	got := v.String()
	want := "/A#20B#23C"
	if got != want {
		t.Errorf("Serialize(name) = %q, want %q", got, want)
	}
}

func TestSerializeLiteralStringEscaping(t *testing.T) {
	v := String("a(b)c\\d\ne")
	got := v.String()
	want := `(a\(b\)c\\d\ne)`
	if got != want {
		t.Errorf("Serialize(string) = %q, want %q", got, want)
	}
}

func TestSerializeArray(t *testing.T) {
	v := Array(Int(1), Int(2), Int(3))
	if got, want := v.String(), "[1 2 3]"; got != want {
		t.Errorf("Serialize(array) = %q, want %q", got, want)
	}
}

func TestSerializeDictPreservesInsertionOrder(t *testing.T) {
	d := NewDict()
	d.Set("Z", Int(1))
	d.Set("A", Int(2))
	d.Set("M", Int(3))

	keys := d.Keys()
	want := []string{"Z", "A", "M"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("Keys()[%d] = %q, want %q", i, keys[i], k)
		}
	}

	got := DictValue(d).String()
	wantStr := "<< /Z 1 /A 2 /M 3 >>"
	if got != wantStr {
		t.Errorf("Serialize(dict) = %q, want %q", got, wantStr)
	}
}

func TestDictSetReplacesInPlace(t *testing.T) {
	d := NewDict()
	d.Set("A", Int(1))
	d.Set("B", Int(2))
	d.Set("A", Int(99))

	keys := d.Keys()
	if len(keys) != 2 || keys[0] != "A" || keys[1] != "B" {
		t.Fatalf("Keys() = %v, want [A B] (replace must not reorder)", keys)
	}
	v, _ := d.Get("A")
	if v.Int != 99 {
		t.Errorf("Get(A).Int = %d, want 99", v.Int)
	}
}

func TestDictClone(t *testing.T) {
	d := NewDict()
	d.Set("Kids", Array(Ref(1, 0), Ref(2, 0)))
	clone := d.Clone()
	clone.Set("Kids", Array(Ref(1, 0), Ref(2, 0), Ref(3, 0)))

	orig, _ := d.Get("Kids")
	if len(orig.Arr) != 2 {
		t.Errorf("cloning mutated the original dict: len(Kids) = %d, want 2", len(orig.Arr))
	}
}

func TestAsReference(t *testing.T) {
	if oid, gen, ok := Ref(3, 1).AsReference(); !ok || oid != 3 || gen != 1 {
		t.Errorf("AsReference() = (%d, %d, %v), want (3, 1, true)", oid, gen, ok)
	}
	if _, _, ok := Int(3).AsReference(); ok {
		t.Errorf("AsReference() on a non-ref value returned true")
	}
}
