package render

import (
	"testing"
	"unsafe"

	"vulkan-renderer/gpu/gputest"
	"vulkan-renderer/mesh"
	"vulkan-renderer/queues"
	"vulkan-renderer/shaders"

	. "github.com/onsi/gomega"
)

var testProgram = shaders.Program{
	Vertex:   []uint32{0x07230203, 1},
	Fragment: []uint32{0x07230203, 2},
}

var triangle = []mesh.Vertex{
	{Position: [3]float32{0, -0.5, 0}, Color: [3]float32{1, 0, 0}},
	{Position: [3]float32{0.5, 0.5, 0}, Color: [3]float32{0, 1, 0}},
	{Position: [3]float32{-0.5, 0.5, 0}, Color: [3]float32{0, 0, 1}},
}

type harness struct {
	g  *WithT
	f  *gputest.Fake
	sc *gputest.Swapchain
	qs queues.Set
}

func newHarness(t *testing.T) *harness {
	f := gputest.New()
	graphics := queues.Queue{Handle: f.Queue(), Family: 0}

	return &harness{
		g:  NewWithT(t),
		f:  f,
		sc: gputest.NewSwapchain(f, 3),
		qs: queues.Set{
			Graphics: graphics,
			Present:  graphics,
			Transfer: graphics,
		},
	}
}

// withTransferFamily gives the harness a transfer queue from its own family.
func (h *harness) withTransferFamily() *harness {
	h.qs.Transfer = queues.Queue{Handle: h.f.Queue(), Family: 1}
	return h
}

func (h *harness) newRenderer(cfg Config) *Renderer {
	r, err := New(cfg, h.f, h.f, h.qs, h.sc, testProgram)
	h.g.Expect(err).NotTo(HaveOccurred())
	return r
}

func (h *harness) expectClean() {
	h.g.Expect(h.f.Violations()).To(BeEmpty())
}

func ptr[T any](handle T) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&handle))
}

func countOps(ops []gputest.Command, name string) int {
	n := 0
	for _, op := range ops {
		if op.Op == name {
			n++
		}
	}
	return n
}
