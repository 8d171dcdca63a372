package mesh

import (
	"strings"
	"testing"

	vk "github.com/vulkan-go/vulkan"
	"github.com/xlab/linmath"

	. "github.com/onsi/gomega"
)

func TestVertexLayout(t *testing.T) {
	g := NewWithT(t)

	g.Expect(VertexSize).To(Equal(uint32(36)))
	g.Expect(BindingDescription().Stride).To(Equal(VertexSize))

	attrs := AttributeDescriptions()
	g.Expect(attrs).To(HaveLen(3))
	for i, attr := range attrs {
		g.Expect(attr.Location).To(Equal(uint32(i)))
		g.Expect(attr.Offset).To(Equal(uint32(i * 12)))
		g.Expect(attr.Format).To(Equal(vk.FormatR32g32b32Sfloat))
	}
}

const quadWithNormals = `
o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vn 0 0 1
f 1//1 2//1 3//1 4//1
`

func TestLoadOBJTriangulatesPolygons(t *testing.T) {
	g := NewWithT(t)

	vertices, err := LoadOBJ(strings.NewReader(quadWithNormals))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(vertices).To(HaveLen(6))

	g.Expect(vertices[0].Position).To(Equal(linmath.Vec3{-1, -1, 0}))
	g.Expect(vertices[1].Position).To(Equal(linmath.Vec3{1, -1, 0}))
	g.Expect(vertices[2].Position).To(Equal(linmath.Vec3{1, 1, 0}))
	g.Expect(vertices[3].Position).To(Equal(linmath.Vec3{-1, -1, 0}))
	g.Expect(vertices[5].Position).To(Equal(linmath.Vec3{-1, 1, 0}))

	for _, v := range vertices {
		g.Expect(v.Normal).To(Equal(linmath.Vec3{0, 0, 1}))
		g.Expect(v.Color).To(Equal(v.Normal))
	}
}

func TestLoadOBJFlatNormals(t *testing.T) {
	g := NewWithT(t)

	src := "o tri\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

	vertices, err := LoadOBJ(strings.NewReader(src))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(vertices).To(HaveLen(3))
	for _, v := range vertices {
		g.Expect(v.Normal).To(Equal(linmath.Vec3{0, 0, 1}))
	}
}

func TestLoadOBJWithoutFaces(t *testing.T) {
	g := NewWithT(t)

	_, err := LoadOBJ(strings.NewReader("v 0 0 0\n"))
	g.Expect(err).To(MatchError(ContainSubstring("no triangles")))
}

func TestLoadOBJFileMissing(t *testing.T) {
	g := NewWithT(t)

	_, err := LoadOBJFile("does-not-exist.obj")
	g.Expect(err).To(HaveOccurred())
}
