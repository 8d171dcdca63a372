package queues

import (
	"vulkan-renderer/optional"
)

// FamilyIndices holds the indexes of Vulkan queue families needed by the programs.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]

	// Transfer is the index of a queue family which supports transfer but not
	// graphics operations. It stays unset on devices without such a family.
	Transfer optional.Optional[uint32]
}

// IsComplete returns true if all required families have been set. The dedicated
// transfer family is not required.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Present.HasValue()
}

// TransferFamily returns the family used for uploads: the dedicated transfer
// family when there is one, the graphics family otherwise.
func (f *FamilyIndices) TransferFamily() uint32 {
	return f.Transfer.GetOr(f.Graphics.Get())
}

// Unique returns the distinct family indices in graphics, present, transfer
// order. Used for creating one queue per family and for concurrent sharing.
func (f *FamilyIndices) Unique() []uint32 {
	var out []uint32
	seen := make(map[uint32]struct{})

	for _, family := range []uint32{
		f.Graphics.Get(),
		f.Present.Get(),
		f.TransferFamily(),
	} {
		if _, ok := seen[family]; ok {
			continue
		}
		seen[family] = struct{}{}
		out = append(out, family)
	}

	return out
}
