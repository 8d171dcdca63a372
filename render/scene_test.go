package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	. "github.com/onsi/gomega"
)

func TestSceneMeshes(t *testing.T) {
	g := NewWithT(t)
	s := NewScene()

	a, b := &Geometry{VertexCount: 3}, &Geometry{VertexCount: 6}

	ha, err := s.addMesh("a", a)
	g.Expect(err).NotTo(HaveOccurred())
	hb, err := s.addMesh("b", b)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(ha).NotTo(Equal(hb))

	_, err = s.addMesh("a", b)
	g.Expect(err).To(MatchError(ContainSubstring("already exists")))

	h, ok := s.Mesh("b")
	g.Expect(ok).To(BeTrue())
	g.Expect(s.Geometry(h)).To(BeIdenticalTo(b))

	removed, err := s.removeMesh("a")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(removed).To(BeIdenticalTo(a))
	g.Expect(s.Geometry(ha)).To(BeNil())

	_, ok = s.Mesh("a")
	g.Expect(ok).To(BeFalse())

	// Handles of removed meshes are not reused.
	hc, err := s.addMesh("c", &Geometry{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(hc).NotTo(Equal(ha))
	g.Expect(hc).NotTo(Equal(hb))

	_, err = s.removeMesh("a")
	g.Expect(err).To(MatchError(ContainSubstring("unknown mesh")))

	g.Expect(s.Geometry(-1)).To(BeNil())
	g.Expect(s.Geometry(100)).To(BeNil())
}

func TestSceneObjects(t *testing.T) {
	g := NewWithT(t)
	s := NewScene()

	_, err := s.addMesh("cube", &Geometry{VertexCount: 36})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(s.addMaterial(&Material{Name: "flat"})).To(Succeed())
	g.Expect(s.addMaterial(&Material{Name: "flat"})).To(HaveOccurred())

	g.Expect(s.addObject(RenderObject{Mesh: "sphere", Material: "flat"})).
		To(MatchError(ContainSubstring(`unknown mesh "sphere"`)))
	g.Expect(s.addObject(RenderObject{Mesh: "cube", Material: "shiny"})).
		To(MatchError(ContainSubstring(`unknown material "shiny"`)))

	g.Expect(s.addObject(RenderObject{Mesh: "cube", Material: "flat", Transform: mgl32.Ident4()})).
		To(Succeed())
	g.Expect(s.Objects()).To(HaveLen(1))

	moved := mgl32.Translate3D(1, 2, 3)
	g.Expect(s.SetTransform(0, moved)).To(Succeed())
	g.Expect(s.Objects()[0].Transform).To(Equal(moved))
	g.Expect(s.SetTransform(1, moved)).To(HaveOccurred())

	_, err = s.removeMesh("cube")
	g.Expect(err).To(MatchError(ContainSubstring("used by render object 0")))

	s.ClearObjects()
	g.Expect(s.Objects()).To(BeEmpty())

	_, err = s.removeMesh("cube")
	g.Expect(err).NotTo(HaveOccurred())
}

func TestSceneTake(t *testing.T) {
	g := NewWithT(t)
	s := NewScene()

	_, _ = s.addMesh("a", &Geometry{})
	_, _ = s.addMesh("b", &Geometry{})
	_, _ = s.removeMesh("b")
	g.Expect(s.addMaterial(&Material{Name: "flat"})).To(Succeed())
	g.Expect(s.addObject(RenderObject{Mesh: "a", Material: "flat"})).To(Succeed())

	g.Expect(s.takeGeometry()).To(HaveLen(1))
	g.Expect(s.takeGeometry()).To(BeEmpty())
	g.Expect(s.Objects()).To(BeEmpty())

	g.Expect(s.takeMaterials()).To(HaveLen(1))
	g.Expect(s.takeMaterials()).To(BeEmpty())
}
