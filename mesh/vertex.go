// Package mesh holds the vertex layout shared by the uploader and the
// pipeline, and decodes models into flat triangle lists.
package mesh

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"
)

// Vertex is one vertex as it is laid out in a vertex buffer.
type Vertex struct {
	Position linmath.Vec3
	Normal   linmath.Vec3
	Color    linmath.Vec3
}

// VertexSize is the stride between two vertices in a vertex buffer.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

// BindingDescription describes the single per-vertex binding.
func BindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    VertexSize,
		InputRate: vk.VertexInputRateVertex,
	}
}

// AttributeDescriptions returns position, normal and color at locations 0, 1
// and 2 of binding 0.
func AttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Normal)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
	}
}
