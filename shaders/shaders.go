// Package shaders loads the SPIR-V programs used by the mesh pipeline. The
// GLSL sources live next to this file. Run `go generate` with glslc on the
// PATH in order to compile them again.
package shaders

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"vulkan-renderer/unsafer"
)

//go:generate ./compile.sh

// File names of the compiled programs inside a shader directory.
const (
	VertexFile   = "tri_mesh.vert.spv"
	FragmentFile = "colored_triangle.frag.spv"
)

const spirvMagic = 0x07230203

// Program is the bytecode of a vertex and a fragment shader.
type Program struct {
	Vertex   []uint32
	Fragment []uint32
}

// Load reads the vertex and fragment programs from dir.
func Load(dir string) (Program, error) {
	var (
		prog Program
		err  error
	)

	prog.Vertex, err = ReadFile(filepath.Join(dir, VertexFile))
	if err != nil {
		return Program{}, err
	}

	prog.Fragment, err = ReadFile(filepath.Join(dir, FragmentFile))
	if err != nil {
		return Program{}, err
	}

	return prog, nil
}

// ReadFile reads one compiled program from disk.
func ReadFile(path string) ([]uint32, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read shader bytecode")
	}

	words, err := Decode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return words, nil
}

// Decode checks that code looks like SPIR-V and returns it as words.
func Decode(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("bytecode size %d is not a multiple of 4", len(code))
	}

	// Copy into a word slice so the result is aligned no matter where code
	// came from.
	words := make([]uint32, len(code)/4)
	copy(unsafer.SliceToBytes(words), code)

	if words[0] != spirvMagic {
		return nil, errors.Errorf("bad SPIR-V magic %#x", words[0])
	}
	return words, nil
}
