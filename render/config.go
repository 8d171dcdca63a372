package render

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultMaterial is the material New builds from the shader program it is
// given.
const DefaultMaterial = "defaultmesh"

// Config tunes the renderer.
type Config struct {
	// FenceTimeout bounds the wait for the previous frame at the start of
	// every cycle and the wait for a swapchain image. Expiring it is a fatal
	// device error.
	FenceTimeout time.Duration

	// ClearColor is the color the color attachment is cleared to.
	ClearColor mgl32.Vec4

	// StagedUpload copies geometry into device local memory through a host
	// visible staging buffer instead of drawing from host visible memory.
	StagedUpload bool

	// SlowFrame is the cycle duration above which a frame's stage timings are
	// logged. Zero disables it.
	SlowFrame time.Duration

	// Debug enables verbose logging.
	Debug bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		FenceTimeout: time.Second,
		ClearColor:   mgl32.Vec4{0, 0, 0, 1},
		SlowFrame:    50 * time.Millisecond,
	}
}
