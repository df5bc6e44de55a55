package commit

import (
	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
)

const symlinkHopLimit = 40

// applyOp walks op.Key through c.rootcpy and applies it. It returns
// any blobrefs that must be fetched before the op can complete; when
// non-empty the op has made no mutation and must be retried after the
// caller loads those refs.
func (c *Commit) applyOp(op Op, epoch int64) ([]string, error) {
	normalized := Normalize(op.Key)
	if normalized == "." {
		return nil, ferror.New(ferror.Inval, "key path %q resolves to root", op.Key)
	}
	segs := Segments(normalized)

	if c.rootcpy == nil {
		c.rootcpy = treeobj.NewDir()
	}

	leaf := segs[len(segs)-1]
	if op.Value == nil {
		missing, err := c.deletePath(segs[:len(segs)-1], leaf, epoch)
		return missing, err
	}

	resolved, missing, err := c.resolveParent(c.rootcpy, segs[:len(segs)-1], epoch, 0)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return missing, nil
	}

	existing := resolved.Dir[leaf]
	if op.has(OpAppend) {
		merged, err := c.appendValue(existing, op.Value)
		if err != nil {
			return nil, err
		}
		resolved.Dir[leaf] = merged
		return nil, nil
	}
	resolved.Dir[leaf] = op.Value
	return nil, nil
}

// resolveParent walks segs from dir, auto-creating intermediate DIRs,
// resolving DIRREF nodes via the cache (deep-copying their content into
// rootcpy), and following SYMLINK targets. It returns the directory
// object that should directly contain the final path segment.
func (c *Commit) resolveParent(dir *treeobj.Object, segs []string, epoch int64, hops int) (*treeobj.Object, []string, error) {
	if len(segs) == 0 {
		return dir, nil, nil
	}
	if hops > symlinkHopLimit {
		return nil, nil, ferror.New(ferror.Inval, "symlink loop exceeds hop limit")
	}

	name := segs[0]
	child, ok := dir.Dir[name]
	if !ok {
		child = treeobj.NewDir()
		dir.Dir[name] = child
	}

	switch child.Kind {
	case treeobj.KindDir:
		return c.resolveParent(child, segs[1:], epoch, hops)

	case treeobj.KindDirref:
		resolved, missing, err := c.loadDirref(child)
		if err != nil {
			return nil, nil, err
		}
		if len(missing) > 0 {
			return nil, missing, nil
		}
		dir.Dir[name] = resolved
		return c.resolveParent(resolved, segs[1:], epoch, hops)

	case treeobj.KindSymlink:
		targetSegs := Segments(Normalize(child.Target))
		newSegs := append(append([]string(nil), targetSegs...), segs[1:]...)
		return c.resolveParent(c.rootcpy, newSegs, epoch, hops+1)

	case treeobj.KindVal, treeobj.KindValref:
		return nil, nil, ferror.New(ferror.IsDir, "path component %q is not a directory", name)

	default:
		return nil, nil, ferror.New(ferror.Inval, "unknown treeobj kind at %q", name)
	}
}

// loadDirref loads the DIRREF's referenced DIR content from cache and
// deep-copies it so subsequent mutation never touches the shared cache
// entry.
func (c *Commit) loadDirref(ref *treeobj.Object) (*treeobj.Object, []string, error) {
	if len(ref.Refs) == 0 {
		return nil, nil, ferror.New(ferror.Proto, "DIRREF with no blobref")
	}
	blobref := ref.Refs[0]
	entry, ok := c.cache.Lookup(blobref, 0)
	if !ok || !entry.IsValid() {
		return nil, []string{blobref}, nil
	}
	obj, ok := entry.Treeobj()
	if !ok || obj.Kind != treeobj.KindDir {
		return nil, nil, ferror.New(ferror.Proto, "DIRREF %s does not decode as a dir", blobref)
	}
	return obj.DeepCopy(), nil, nil
}

// deletePath walks parentSegs without auto-creating missing
// intermediate directories and deletes leaf from the resolved
// directory. A missing intermediate directory, or a missing leaf, is a
// silent no-op.
func (c *Commit) deletePath(parentSegs []string, leaf string, epoch int64) ([]string, error) {
	dir, missing, err := c.resolveParentNoCreate(c.rootcpy, parentSegs, epoch, 0)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return missing, nil
	}
	if dir == nil {
		return nil, nil
	}
	delete(dir.Dir, leaf)
	return nil, nil
}

// resolveParentNoCreate is resolveParent's read-only sibling: a
// missing intermediate directory yields (nil, nil, nil) instead of
// being materialized.
func (c *Commit) resolveParentNoCreate(dir *treeobj.Object, segs []string, epoch int64, hops int) (*treeobj.Object, []string, error) {
	if len(segs) == 0 {
		return dir, nil, nil
	}
	if hops > symlinkHopLimit {
		return nil, nil, ferror.New(ferror.Inval, "symlink loop exceeds hop limit")
	}

	name := segs[0]
	child, ok := dir.Dir[name]
	if !ok {
		return nil, nil, nil
	}

	switch child.Kind {
	case treeobj.KindDir:
		return c.resolveParentNoCreate(child, segs[1:], epoch, hops)

	case treeobj.KindDirref:
		resolved, missing, err := c.loadDirref(child)
		if err != nil {
			return nil, nil, err
		}
		if len(missing) > 0 {
			return nil, missing, nil
		}
		dir.Dir[name] = resolved
		return c.resolveParentNoCreate(resolved, segs[1:], epoch, hops)

	case treeobj.KindSymlink:
		targetSegs := Segments(Normalize(child.Target))
		newSegs := append(append([]string(nil), targetSegs...), segs[1:]...)
		return c.resolveParentNoCreate(c.rootcpy, newSegs, epoch, hops+1)

	case treeobj.KindVal, treeobj.KindValref:
		return nil, nil, nil

	default:
		return nil, nil, ferror.New(ferror.Inval, "unknown treeobj kind at %q", name)
	}
}

// appendValue implements APPEND: a missing existing value yields value
// itself; an existing VAL becomes a VALREF [old, new] of two
// materialized blobs; an existing VALREF is copied and gains the new
// value's blobref. Other existing kinds are rejected.
func (c *Commit) appendValue(existing, value *treeobj.Object) (*treeobj.Object, error) {
	if value.Kind != treeobj.KindVal {
		return nil, ferror.New(ferror.Inval, "APPEND requires a VAL value")
	}
	if existing == nil {
		return value, nil
	}
	switch existing.Kind {
	case treeobj.KindVal:
		oldRef, err := c.materialize(existing.Val)
		if err != nil {
			return nil, err
		}
		newRef, err := c.materialize(value.Val)
		if err != nil {
			return nil, err
		}
		return treeobj.NewValref(oldRef, newRef), nil
	case treeobj.KindValref:
		cp := existing.DeepCopy()
		newRef, err := c.materialize(value.Val)
		if err != nil {
			return nil, err
		}
		cp.Refs = append(cp.Refs, newRef)
		return cp, nil
	case treeobj.KindSymlink:
		return nil, ferror.New(ferror.Unsupported, "APPEND onto a symlink is not supported")
	case treeobj.KindDir, treeobj.KindDirref:
		return nil, ferror.New(ferror.IsDir, "APPEND target is a directory")
	default:
		return nil, ferror.New(ferror.Inval, "unknown treeobj kind for APPEND target")
	}
}

// materialize inserts data as a new, immediately-valid, dirty Cache
// entry and returns its blobref — APPEND's "materialize as separate
// Cache entries" step.
func (c *Commit) materialize(data []byte) (string, error) {
	ref, err := cache.Hash(c.hashAlgo, data)
	if err != nil {
		return "", err
	}
	entry := c.cache.LookupOrCreate(ref, 0)
	if !entry.IsValid() {
		if err := entry.SetValid(data); err != nil {
			return "", err
		}
	}
	if !entry.IsDirty() {
		_ = entry.SetDirty()
	}
	c.pendingDirty = append(c.pendingDirty, ref)
	return ref, nil
}
