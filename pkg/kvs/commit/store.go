package commit

import (
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
)

// storeUnroll walks obj depth-first, replacing inner DIRs with DIRREFs
// (and oversized inline VALs with VALREFs) once their serialized form
// is inserted into the cache. Every newly stored blobref is appended
// to *dirty. It returns obj's own blobref.
func storeUnroll(obj *treeobj.Object, c *cache.Cache, algo cache.HashAlgo, dirty *[]string, epoch int64) (string, error) {
	switch obj.Kind {
	case treeobj.KindDir:
		flat := treeobj.NewDir()
		for _, name := range obj.SortedNames() {
			child := obj.Dir[name]
			if childNeedsExternalizing(child) {
				ref, err := storeUnroll(child, c, algo, dirty, epoch)
				if err != nil {
					return "", err
				}
				flat.Dir[name] = externalRef(child.Kind, ref)
			} else {
				flat.Dir[name] = child
			}
		}
		return storeObject(flat, c, algo, dirty, epoch)

	default:
		// KindVal arrives here only via the recursive call above, for a
		// child already judged oversized by childNeedsExternalizing; the
		// caller wraps the returned ref in a VALREF. storeUnroll itself
		// just has to store the raw bytes and return the ref.
		if obj.Kind != treeobj.KindVal {
			return storeObject(obj, c, algo, dirty, epoch)
		}
		ref, err := cache.Hash(algo, obj.Val)
		if err != nil {
			return "", err
		}
		entry := c.LookupOrCreate(ref, epoch)
		if err := entry.SetValid(obj.Val); err != nil {
			return "", err
		}
		if !entry.IsDirty() && entry.SetDirty() == nil {
			*dirty = append(*dirty, ref)
		}
		return ref, nil
	}
}

// childNeedsExternalizing reports whether child must be recursively
// unrolled (inner DIRs always are; oversized VALs are too, per the
// STORE threshold).
func childNeedsExternalizing(child *treeobj.Object) bool {
	switch child.Kind {
	case treeobj.KindDir:
		return true
	case treeobj.KindVal:
		return treeobj.EncodedSize(child) > StoreThreshold
	default:
		return false
	}
}

// externalRef wraps a just-stored blobref in the reference variant
// appropriate to the object kind that was externalized.
func externalRef(kind treeobj.Kind, ref string) *treeobj.Object {
	switch kind {
	case treeobj.KindDir:
		return treeobj.NewDirref(ref)
	case treeobj.KindVal:
		return treeobj.NewValref(ref)
	default:
		return treeobj.NewDirref(ref)
	}
}

// storeObject serializes obj, inserts it into the cache as a new valid
// + dirty entry, and returns its blobref.
func storeObject(obj *treeobj.Object, c *cache.Cache, algo cache.HashAlgo, dirty *[]string, epoch int64) (string, error) {
	data, err := treeobj.Encode(obj)
	if err != nil {
		return "", err
	}
	ref, err := cache.Hash(algo, data)
	if err != nil {
		return "", err
	}
	entry := c.LookupOrCreate(ref, epoch)
	if !entry.IsValid() {
		if err := entry.SetValid(data); err != nil {
			return "", err
		}
	}
	if !entry.IsDirty() {
		if err := entry.SetDirty(); err == nil {
			*dirty = append(*dirty, ref)
		}
	}
	return ref, nil
}
