package preview2

import (
	"testing"
)

func TestFields_OrderAndDuplicates(t *testing.T) {
	f := NewFields()
	f.Append("accept", []byte("text/html"))
	f.Append("x-tag", []byte("one"))
	f.Append("x-tag", []byte("two"))

	entries := f.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Name != "x-tag" || string(entries[1].Value) != "one" {
		t.Errorf("insertion order lost: %+v", entries)
	}

	vals := f.Get("x-tag")
	if len(vals) != 2 || string(vals[0]) != "one" || string(vals[1]) != "two" {
		t.Errorf("Get(x-tag) = %q", vals)
	}
}

func TestFields_SetReplacesAll(t *testing.T) {
	f := NewFields()
	f.Append("h", []byte("a"))
	f.Append("h", []byte("b"))
	f.Set("h", [][]byte{[]byte("c")})

	if vals := f.Get("h"); len(vals) != 1 || string(vals[0]) != "c" {
		t.Errorf("Get(h) after Set = %q", vals)
	}
}

func TestFields_DeleteAndHas(t *testing.T) {
	f := NewFields()
	f.Append("keep", []byte("1"))
	f.Append("drop", []byte("2"))
	f.Delete("drop")

	if f.Has("drop") {
		t.Error("deleted name still present")
	}
	if !f.Has("keep") {
		t.Error("unrelated name removed")
	}
}

func TestFields_CloneIsIndependent(t *testing.T) {
	f := NewFields()
	f.Append("a", []byte("1"))
	c := f.Clone()
	c.Append("a", []byte("2"))

	if len(f.Get("a")) != 1 {
		t.Error("clone mutation leaked into original")
	}
}
