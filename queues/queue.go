package queues

import vk "github.com/vulkan-go/vulkan"

// Queue is a device queue tagged with the family it was retrieved from.
type Queue struct {
	Handle vk.Queue
	Family uint32
}

// Set is the queues the renderer works with. Present may be the same queue as
// Graphics and Transfer may be the same queue as Graphics.
type Set struct {
	Graphics Queue
	Present  Queue
	Transfer Queue
}

// SharedTransfer returns true when uploads go through the graphics family.
func (s Set) SharedTransfer() bool {
	return s.Graphics.Family == s.Transfer.Family
}
