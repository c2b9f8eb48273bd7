// Package vino identifies an object family and a snapshot of it.
package vino

import "fmt"

// SnapHead is the sentinel snapshot id denoting the live, writable version
// of an object family, as opposed to a numbered, read-only snapshot.
const SnapHead uint64 = ^uint64(0)

// VINO is a versioned inode identity: an object-family identifier paired
// with a snapshot id. Two VINOs are equal only when both fields match.
type VINO struct {
	Ino  uint64
	Snap uint64
}

// Head returns the VINO for the live, writable version of ino.
func Head(ino uint64) VINO {
	return VINO{Ino: ino, Snap: SnapHead}
}

// IsHead reports whether v refers to the live, writable version of its object family.
func (v VINO) IsHead() bool {
	return v.Snap == SnapHead
}

// Equal reports whether v and other identify the same object family and snapshot.
func (v VINO) Equal(other VINO) bool {
	return v.Ino == other.Ino && v.Snap == other.Snap
}

func (v VINO) String() string {
	if v.IsHead() {
		return fmt.Sprintf("%d.head", v.Ino)
	}
	return fmt.Sprintf("%d.%d", v.Ino, v.Snap)
}
