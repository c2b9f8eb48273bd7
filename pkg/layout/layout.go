// Package layout maps file-level byte ranges onto objects.
//
// A File Layout describes how a file's bytes are striped across a sequence
// of equally sized objects: object_size bytes per object, stripe_unit bytes
// per stripe within an object, stripe_count objects participating in each
// stripe. Given (offset, length) it yields one Object Extent per stripe
// unit touched, truncating at stripe-unit boundaries so the caller resumes
// with the remainder.
package layout

import (
	"errors"
	"fmt"

	"github.com/marmos91/osdc/pkg/vino"
)

// ErrInvalidLayout is returned when a layout has a zero stripe unit, object
// size that is not a multiple of the stripe unit, or zero stripe count.
var ErrInvalidLayout = errors.New("layout: stripe_unit/object_size/stripe_count invalid")

// Layout is the immutable input describing how a file is striped across objects.
type Layout struct {
	ObjectSize  uint64 // bytes per object
	StripeUnit  uint64 // bytes per stripe unit; must divide ObjectSize
	StripeCount uint32 // objects participating in each stripe

	Pool        int64 // preferred pool id
	PreferredPG int32 // preferred placement-group hint, -1 if none

	// RuleType and ReplicaSize select which placement rule governs objects
	// under this layout (see clustermap.RuleKey); they travel with the
	// layout rather than the object extent because every object in a file
	// shares one placement rule.
	RuleType    int32
	ReplicaSize int32
}

// PerObjectStripeUnits is the number of stripe units packed into a single object.
func (l Layout) PerObjectStripeUnits() (uint64, error) {
	if l.StripeUnit == 0 || l.StripeCount == 0 || l.ObjectSize == 0 {
		return 0, ErrInvalidLayout
	}
	if l.ObjectSize%l.StripeUnit != 0 {
		return 0, ErrInvalidLayout
	}
	return l.ObjectSize / l.StripeUnit, nil
}

// ObjectExtent is the result of mapping a (file, offset, length) triple
// through a File Layout. An object extent never crosses an object boundary.
type ObjectExtent struct {
	ObjectNumber uint64
	ObjectName   string
	ObjectOffset uint64
	ObjectLength uint64
}

// MapFileExtent maps the file byte range [off, off+len) through layout,
// returning the first Object Extent and the number of bytes it covers
// (always <= len, truncated at the end of the stripe unit that contains
// off, so it never crosses an object boundary). The caller advances off by
// the returned length and
// repeats with the remainder until len reaches zero.
func MapFileExtent(v vino.VINO, l Layout, off, length uint64) (ObjectExtent, uint64, error) {
	suPerObject, err := l.PerObjectStripeUnits()
	if err != nil {
		return ObjectExtent{}, 0, err
	}

	stripeUnitOffset := off % l.StripeUnit
	blockNo := off / l.StripeUnit
	stripeNo := blockNo / uint64(l.StripeCount)
	stripePos := blockNo % uint64(l.StripeCount)
	objectSetNo := stripeNo / suPerObject

	objectNumber := objectSetNo*uint64(l.StripeCount) + stripePos
	blockWithinSet := stripeNo % suPerObject
	objectOffset := blockWithinSet*l.StripeUnit + stripeUnitOffset

	remaining := l.StripeUnit - stripeUnitOffset
	extentLength := length
	if remaining < extentLength {
		extentLength = remaining
	}

	return ObjectExtent{
		ObjectNumber: objectNumber,
		ObjectName:   FormatObjectName(v, objectNumber),
		ObjectOffset: objectOffset,
		ObjectLength: extentLength,
	}, extentLength, nil
}

// FormatObjectName renders the on-wire object name for object objectNumber
// belonging to v. Head objects are named "<ino-hex>.<object-number-hex8>";
// snapshot objects append the snap id so distinct snapshots of the same
// object-family+object-number name distinct objects.
func FormatObjectName(v vino.VINO, objectNumber uint64) string {
	if v.IsHead() {
		return fmt.Sprintf("%x.%08x", v.Ino, objectNumber)
	}
	return fmt.Sprintf("%x.%08x.%x", v.Ino, objectNumber, v.Snap)
}
