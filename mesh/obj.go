package mesh

import (
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mokiat/go-data-front/decoder/obj"
	"github.com/pkg/errors"
	"github.com/xlab/linmath"
)

// LoadOBJ decodes a Wavefront OBJ model into a triangle list. Polygons are
// split into fans around their first corner. Vertices are colored with their
// normal. Faces without normals get the flat face normal.
func LoadOBJ(r io.Reader) ([]Vertex, error) {
	decoder := obj.NewDecoder(obj.DefaultLimits())

	model, err := decoder.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decoding obj model")
	}

	var vertices []Vertex

	for _, object := range model.Objects {
		for _, m := range object.Meshes {
			for _, face := range m.Faces {
				refs := face.References
				if len(refs) < 3 {
					continue
				}

				corners := make([]Vertex, len(refs))
				hasNormals := true

				for i, ref := range refs {
					v := model.GetVertexFromReference(ref)
					corners[i].Position = linmath.Vec3{
						float32(v.X), float32(v.Y), float32(v.Z),
					}

					if !ref.HasNormal() {
						hasNormals = false
						continue
					}
					n := model.GetNormalFromReference(ref)
					corners[i].Normal = linmath.Vec3{
						float32(n.X), float32(n.Y), float32(n.Z),
					}
				}

				if !hasNormals {
					normal := faceNormal(corners[0], corners[1], corners[2])
					for i := range corners {
						corners[i].Normal = normal
					}
				}

				for i := range corners {
					corners[i].Color = corners[i].Normal
				}

				for i := 1; i+1 < len(corners); i++ {
					vertices = append(vertices, corners[0], corners[i], corners[i+1])
				}
			}
		}
	}

	if len(vertices) == 0 {
		return nil, errors.New("obj model has no triangles")
	}

	return vertices, nil
}

// LoadOBJFile is LoadOBJ for a model on disk.
func LoadOBJFile(path string) ([]Vertex, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening model")
	}
	defer fh.Close()

	vertices, err := LoadOBJ(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return vertices, nil
}

func faceNormal(a, b, c Vertex) linmath.Vec3 {
	pa := mgl32.Vec3(a.Position)
	ab := mgl32.Vec3(b.Position).Sub(pa)
	ac := mgl32.Vec3(c.Position).Sub(pa)

	n := ab.Cross(ac)
	if n.Len() == 0 {
		return linmath.Vec3{}
	}
	return linmath.Vec3(n.Normalize())
}
