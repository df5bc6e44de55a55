// Package treeobj implements the KVS tree-object value model: a typed
// JSON-like sum type over {DIR, DIRREF, VAL, VALREF, SYMLINK}, encoded
// to and from bytes the way a bucket-backed store would marshal a
// record, but represented here as an explicit tagged union rather than
// dynamic dispatch over an interface.
package treeobj

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// Kind discriminates the tree-object variants.
type Kind string

const (
	KindDir     Kind = "dir"
	KindDirref  Kind = "dirref"
	KindVal     Kind = "val"
	KindValref  Kind = "valref"
	KindSymlink Kind = "symlink"
)

// Object is a tagged-union tree value. Exactly one of the fields
// corresponding to Kind is meaningful.
type Object struct {
	Kind Kind `json:"kind"`

	// DIR: name -> child object.
	Dir map[string]*Object `json:"dir,omitempty"`
	// DIRREF / VALREF: ordered blobref list.
	Refs []string `json:"refs,omitempty"`
	// VAL: inline bytes.
	Val []byte `json:"val,omitempty"`
	// SYMLINK: textual target path.
	Target string `json:"target,omitempty"`
}

// NewDir creates an empty DIR object.
func NewDir() *Object { return &Object{Kind: KindDir, Dir: map[string]*Object{}} }

// NewVal creates an inline VAL leaf.
func NewVal(b []byte) *Object { return &Object{Kind: KindVal, Val: append([]byte(nil), b...)} }

// NewValref creates a VALREF leaf from an ordered blobref list.
func NewValref(refs ...string) *Object {
	return &Object{Kind: KindValref, Refs: append([]string(nil), refs...)}
}

// NewDirref creates a DIRREF leaf referencing a serialized DIR.
func NewDirref(ref string) *Object { return &Object{Kind: KindDirref, Refs: []string{ref}} }

// NewSymlink creates a SYMLINK leaf.
func NewSymlink(target string) *Object { return &Object{Kind: KindSymlink, Target: target} }

// IsDir reports whether o is a DIR (not DIRREF).
func (o *Object) IsDir() bool { return o != nil && o.Kind == KindDir }

// DeepCopy produces a structurally independent copy, required before
// any in-place mutation of a value observed from the cache, since cache
// entries are shared by reference across concurrent readers.
func (o *Object) DeepCopy() *Object {
	if o == nil {
		return nil
	}
	cp := &Object{Kind: o.Kind, Target: o.Target}
	if o.Val != nil {
		cp.Val = append([]byte(nil), o.Val...)
	}
	if o.Refs != nil {
		cp.Refs = append([]string(nil), o.Refs...)
	}
	if o.Dir != nil {
		cp.Dir = make(map[string]*Object, len(o.Dir))
		for k, v := range o.Dir {
			cp.Dir[k] = v.DeepCopy()
		}
	}
	return cp
}

// Encode serializes o to its canonical byte form, the representation
// stored in the Cache under its content hash.
func Encode(o *Object) ([]byte, error) {
	return json.Marshal(o)
}

// Decode attempts to parse data as a tree object. Callers that accept
// either raw bytes or a treeobj (Cache Entry's dual view) should fall
// back to treating data as opaque on error.
func Decode(data []byte) (*Object, error) {
	var o Object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, ferror.Wrap(ferror.Proto, err, "decode treeobj")
	}
	switch o.Kind {
	case KindDir, KindDirref, KindVal, KindValref, KindSymlink:
	default:
		return nil, ferror.New(ferror.Proto, "unknown treeobj kind %q", o.Kind)
	}
	return &o, nil
}

// EncodedSize returns a stable size estimate used by the Commit Engine
// STORE phase to decide whether a VAL should be stored as VALREF
// instead of kept inline.
func EncodedSize(o *Object) int {
	data, err := Encode(o)
	if err != nil {
		return 0
	}
	return len(data)
}

// base64Preview renders a short opaque preview of val bytes, for
// diagnostics/logging only.
func base64Preview(val []byte) string {
	n := len(val)
	if n > 16 {
		n = 16
	}
	return base64.StdEncoding.EncodeToString(val[:n])
}

// SortedNames returns the DIR's child names in sorted order, for
// deterministic depth-first traversal during STORE.
func (o *Object) SortedNames() []string {
	names := make([]string, 0, len(o.Dir))
	for name := range o.Dir {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DebugString renders a single-line summary of o for debug_level-gated
// diagnostic logging: its kind plus a kind-appropriate detail (a VAL's
// base64Preview, a DIRREF/VALREF's ref list, a DIR's child count, a
// SYMLINK's target).
func (o *Object) DebugString() string {
	if o == nil {
		return "<nil>"
	}
	switch o.Kind {
	case KindDir:
		return fmt.Sprintf("%s(%d entries)", o.Kind, len(o.Dir))
	case KindDirref, KindValref:
		return fmt.Sprintf("%s(%s)", o.Kind, strings.Join(o.Refs, ","))
	case KindVal:
		return fmt.Sprintf("%s(%dB %q)", o.Kind, len(o.Val), base64Preview(o.Val))
	case KindSymlink:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Target)
	default:
		return string(o.Kind)
	}
}
