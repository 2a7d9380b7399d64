package preview2

import (
	"sync"
)

// Field is one header entry.
type Field struct {
	Name  string
	Value []byte
}

// Fields is an ordered, duplicate-name-permitting header list, shared
// by wasi:http/types and the outgoing handler. Insertion order is
// preserved across clones and lookups never mutate.
type Fields struct {
	mu      sync.Mutex
	entries []Field
}

func NewFields() *Fields {
	return &Fields{}
}

// FieldsFrom builds a Fields from ordered (name, value) pairs.
func FieldsFrom(pairs ...Field) *Fields {
	f := &Fields{}
	for _, p := range pairs {
		f.entries = append(f.entries, Field{Name: p.Name, Value: append([]byte(nil), p.Value...)})
	}
	return f
}

// Append adds one entry, keeping earlier entries with the same name.
func (f *Fields) Append(name string, value []byte) {
	f.mu.Lock()
	f.entries = append(f.entries, Field{Name: name, Value: append([]byte(nil), value...)})
	f.mu.Unlock()
}

// Get returns all values for name in insertion order.
func (f *Fields) Get(name string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, e := range f.entries {
		if e.Name == name {
			out = append(out, append([]byte(nil), e.Value...))
		}
	}
	return out
}

// Has reports whether any entry carries name.
func (f *Fields) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Set replaces every entry named name with the given values, appended
// at the end of the list.
func (f *Fields) Set(name string, values [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteLocked(name)
	for _, v := range values {
		f.entries = append(f.entries, Field{Name: name, Value: append([]byte(nil), v...)})
	}
}

// Delete removes every entry named name.
func (f *Fields) Delete(name string) {
	f.mu.Lock()
	f.deleteLocked(name)
	f.mu.Unlock()
}

func (f *Fields) deleteLocked(name string) {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	f.entries = kept
}

// Entries returns a snapshot of all entries in order.
func (f *Fields) Entries() []Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Field, len(f.entries))
	for i, e := range f.entries {
		out[i] = Field{Name: e.Name, Value: append([]byte(nil), e.Value...)}
	}
	return out
}

// Clone returns an independent copy.
func (f *Fields) Clone() *Fields {
	return FieldsFrom(f.Entries()...)
}
