package watch

import (
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/jward/modelsync/internal/reconcile"
)

// opMask is the set of operations seen for one path within a batch.
type opMask uint8

const (
	opCreate opMask = 1 << iota
	opWrite
	opRemove
)

func convertOp(fsOp fsnotify.Op) opMask {
	var op opMask
	if fsOp.Has(fsnotify.Create) {
		op |= opCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= opWrite
	}
	// A rename reports the old name; the new name arrives as a create.
	if fsOp.Has(fsnotify.Remove) || fsOp.Has(fsnotify.Rename) {
		op |= opRemove
	}
	return op
}

// batch coalesces the operations of one quiet period by path.
type batch struct {
	ops map[string]opMask
}

func newBatch() *batch {
	return &batch{ops: make(map[string]opMask)}
}

func (b *batch) add(rel string, op opMask) {
	b.ops[rel] |= op
}

func (b *batch) empty() bool { return len(b.ops) == 0 }

// classify turns the batch into a change using the current state of the
// disk. A path that exists was added if it was created during the batch and
// changed otherwise; a path that does not exist was removed.
func (b *batch) classify(exists func(rel string) bool) reconcile.Change {
	var c reconcile.Change
	for rel, op := range b.ops {
		switch {
		case !exists(rel):
			c.Removed = append(c.Removed, rel)
		case op&opCreate != 0:
			c.Added = append(c.Added, rel)
		default:
			c.Changed = append(c.Changed, rel)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Changed)
	sort.Strings(c.Removed)
	return c
}
