package models

import (
	"embed"

	"github.com/pkg/errors"

	"vulkan-renderer/mesh"
)

// Cube is the model drawn when no other model is given on the command line.
const Cube = "cube.obj"

// FS contains the models shipped with the binary. It makes it possible to
// generate a binary and just copy it to another machine.
//
//go:embed cube.obj
var FS embed.FS

// Load decodes one of the embedded models.
func Load(name string) ([]mesh.Vertex, error) {
	fh, err := FS.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "opening embedded model")
	}
	defer fh.Close()

	return mesh.LoadOBJ(fh)
}
