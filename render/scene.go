package render

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"vulkan-renderer/pipeline"
)

// MeshHandle addresses a mesh in a Scene. Handles stay valid until the mesh is
// removed and are never reused.
type MeshHandle int

// Material is what a render object is drawn with.
type Material struct {
	Name     string
	Pipeline *pipeline.Pipeline
}

// RenderObject is one draw: a mesh and a material, both by name, placed in
// the world by Transform.
type RenderObject struct {
	Mesh      string
	Material  string
	Transform mgl32.Mat4
}

// Scene is the set of things drawn every frame. Meshes live in an arena
// addressed by MeshHandle and are looked up by name.
type Scene struct {
	meshes    []*Geometry
	byName    map[string]MeshHandle
	materials map[string]*Material
	objects   []RenderObject
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{
		byName:    make(map[string]MeshHandle),
		materials: make(map[string]*Material),
	}
}

func (s *Scene) addMesh(name string, g *Geometry) (MeshHandle, error) {
	if _, ok := s.byName[name]; ok {
		return 0, errors.Errorf("mesh %q already exists", name)
	}
	h := MeshHandle(len(s.meshes))
	s.meshes = append(s.meshes, g)
	s.byName[name] = h
	return h, nil
}

// Mesh returns the handle of the named mesh.
func (s *Scene) Mesh(name string) (MeshHandle, bool) {
	h, ok := s.byName[name]
	return h, ok
}

// Geometry returns the geometry behind h or nil if it was removed.
func (s *Scene) Geometry(h MeshHandle) *Geometry {
	if h < 0 || int(h) >= len(s.meshes) {
		return nil
	}
	return s.meshes[h]
}

// removeMesh unregisters the named mesh and returns its geometry. A mesh
// still used by a render object cannot be removed.
func (s *Scene) removeMesh(name string) (*Geometry, error) {
	h, ok := s.byName[name]
	if !ok {
		return nil, errors.Errorf("unknown mesh %q", name)
	}
	for i, obj := range s.objects {
		if obj.Mesh == name {
			return nil, errors.Errorf("mesh %q is used by render object %d", name, i)
		}
	}

	g := s.meshes[h]
	s.meshes[h] = nil
	delete(s.byName, name)
	return g, nil
}

func (s *Scene) addMaterial(m *Material) error {
	if _, ok := s.materials[m.Name]; ok {
		return errors.Errorf("material %q already exists", m.Name)
	}
	s.materials[m.Name] = m
	return nil
}

// Material returns the named material.
func (s *Scene) Material(name string) (*Material, bool) {
	m, ok := s.materials[name]
	return m, ok
}

func (s *Scene) addObject(obj RenderObject) error {
	if _, ok := s.byName[obj.Mesh]; !ok {
		return errors.Errorf("unknown mesh %q", obj.Mesh)
	}
	if _, ok := s.materials[obj.Material]; !ok {
		return errors.Errorf("unknown material %q", obj.Material)
	}
	s.objects = append(s.objects, obj)
	return nil
}

// Objects returns the render objects in draw order.
func (s *Scene) Objects() []RenderObject {
	return s.objects
}

// SetTransform moves the i-th render object.
func (s *Scene) SetTransform(i int, transform mgl32.Mat4) error {
	if i < 0 || i >= len(s.objects) {
		return errors.Errorf("render object %d out of range", i)
	}
	s.objects[i].Transform = transform
	return nil
}

// ClearObjects removes every render object. Meshes and materials stay.
func (s *Scene) ClearObjects() {
	s.objects = nil
}

// takeGeometry empties the arena and returns every live geometry.
func (s *Scene) takeGeometry() []*Geometry {
	var out []*Geometry
	for _, g := range s.meshes {
		if g != nil {
			out = append(out, g)
		}
	}
	s.meshes = nil
	s.byName = make(map[string]MeshHandle)
	s.objects = nil
	return out
}

// takeMaterials empties the material registry and returns its contents.
func (s *Scene) takeMaterials() []*Material {
	out := make([]*Material, 0, len(s.materials))
	for _, m := range s.materials {
		out = append(out, m)
	}
	s.materials = make(map[string]*Material)
	s.objects = nil
	return out
}
