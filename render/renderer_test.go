package render

import (
	"testing"
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/gpu/gputest"
	"vulkan-renderer/unsafer"

	. "github.com/onsi/gomega"
)

var cycleEvents = []string{
	"wait_fence",
	"reset_fence",
	"acquire",
	"reset_command_buffer",
	"begin_command_buffer",
	"end_command_buffer",
	"submit",
	"present",
}

func TestRenderEmptyScene(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.g.Expect(ptr(r.sync.PresentSemaphore)).NotTo(Equal(ptr(r.sync.RenderSemaphore)))

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(r.Frame()).To(BeEquivalentTo(1))
	h.g.Expect(r.Stats().Draws).To(BeZero())
	h.g.Expect(h.sc.Presented).To(Equal([]uint32{0}))

	submits := h.f.Submits()
	h.g.Expect(submits).To(HaveLen(1))
	h.g.Expect(submits[0].Waits).To(Equal([]unsafe.Pointer{ptr(r.sync.PresentSemaphore)}))
	h.g.Expect(submits[0].Signals).To(Equal([]unsafe.Pointer{ptr(r.sync.RenderSemaphore)}))
	h.g.Expect(submits[0].Fence).To(Equal(ptr(r.sync.Fence)))
	h.g.Expect(submits[0].WaitStages).To(Equal([]vk.PipelineStageFlags{
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	}))

	ops := submits[0].Ops
	h.g.Expect(ops[0].Op).To(Equal("begin_render_pass"))
	h.g.Expect(ops[0].Handles[1]).To(Equal(ptr(r.targets[0].Framebuffer)))
	h.g.Expect(ops[0].Args[0]).To(BeEquivalentTo(2))
	h.g.Expect(countOps(ops, "draw")).To(BeZero())
	h.g.Expect(ops[len(ops)-1].Op).To(Equal("end_render_pass"))

	h.expectClean()
}

func TestRenderCycleOrder(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.f.ResetEvents()

	for i := 0; i < 4; i++ {
		h.g.Expect(r.Render()).To(Succeed())
		h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())
	}

	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, cycleEvents...)
	}
	h.g.Expect(h.f.Events()).To(Equal(want))
	h.g.Expect(h.sc.Presented).To(Equal([]uint32{0, 1, 2, 0}))
	h.g.Expect(r.Frame()).To(BeEquivalentTo(4))

	// One command buffer serves every frame.
	submits := h.f.Submits()
	for _, s := range submits[1:] {
		h.g.Expect(s.Buffers).To(Equal(submits[0].Buffers))
	}

	h.expectClean()
}

func TestRenderNeverResetsPendingCommandBuffer(t *testing.T) {
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.FenceTimeout = time.Millisecond
	r := h.newRenderer(cfg)

	h.f.Stall = true
	h.g.Expect(r.Render()).To(Succeed())

	h.f.ResetEvents()
	err := r.Render()
	h.g.Expect(err).To(HaveOccurred())
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(errors.Is(err, gpu.ErrTimeout)).To(BeTrue())
	h.g.Expect(h.f.Events()).To(Equal([]string{"wait_fence"}))
	h.g.Expect(r.Frame()).To(BeEquivalentTo(1))

	h.f.Stall = false
	h.f.Complete()

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(r.Frame()).To(BeEquivalentTo(2))

	submits := h.f.Submits()
	h.g.Expect(submits).To(HaveLen(2))
	h.g.Expect(submits[1].Buffers).To(Equal(submits[0].Buffers))

	r.Destroy()
	h.g.Expect(h.f.Live()).To(BeEmpty())
	h.expectClean()
}

func TestRenderDrawsObjects(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	_, err := r.AddMesh("triangle", triangle)
	h.g.Expect(err).NotTo(HaveOccurred())

	for _, x := range []float32{-1, 1} {
		err := r.AddRenderable(RenderObject{
			Mesh:      "triangle",
			Material:  DefaultMaterial,
			Transform: mgl32.Translate3D(x, 0, 0),
		})
		h.g.Expect(err).NotTo(HaveOccurred())
	}

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(r.Stats().Draws).To(BeEquivalentTo(2))

	ops := h.f.Submits()[0].Ops
	h.g.Expect(countOps(ops, "bind_pipeline")).To(Equal(1))
	h.g.Expect(countOps(ops, "bind_vertex_buffers")).To(Equal(2))
	h.g.Expect(countOps(ops, "push_constants")).To(Equal(2))
	h.g.Expect(countOps(ops, "draw")).To(Equal(2))

	material, ok := r.Scene().Material(DefaultMaterial)
	h.g.Expect(ok).To(BeTrue())

	for _, op := range ops {
		switch op.Op {
		case "bind_pipeline":
			h.g.Expect(op.Handles[0]).To(Equal(ptr(material.Pipeline.Handle)))
		case "push_constants":
			h.g.Expect(op.Handles[0]).To(Equal(ptr(material.Pipeline.Layout)))
			h.g.Expect(op.Args[1]).To(BeEquivalentTo(80))
		case "draw":
			h.g.Expect(op.Args[:2]).To(Equal([]uint64{3, 1}))
		}
	}

	h.expectClean()
}

func TestRenderAddRenderableErrors(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	err := r.AddRenderable(RenderObject{Mesh: "missing", Material: DefaultMaterial})
	h.g.Expect(err).To(MatchError(ContainSubstring(`unknown mesh "missing"`)))

	_, err = r.AddMesh("triangle", triangle)
	h.g.Expect(err).NotTo(HaveOccurred())

	err = r.AddRenderable(RenderObject{Mesh: "triangle", Material: "missing"})
	h.g.Expect(err).To(MatchError(ContainSubstring(`unknown material "missing"`)))

	_, err = r.AddMesh("triangle", triangle)
	h.g.Expect(KindOf(err)).To(Equal(KindAllocator))
	h.g.Expect(h.f.Created(gputest.KindBuffer)).To(Equal(1))

	_, err = r.AddMaterial(DefaultMaterial, testProgram)
	h.g.Expect(err).To(MatchError(ContainSubstring("already exists")))

	h.g.Expect(r.Scene().Objects()).To(BeEmpty())
}

func TestRenderUploadRoundTrip(t *testing.T) {
	for _, staged := range []bool{false, true} {
		h := newHarness(t).withTransferFamily()
		cfg := DefaultConfig()
		cfg.StagedUpload = staged
		r := h.newRenderer(cfg)

		mh, err := r.AddMesh("triangle", triangle)
		h.g.Expect(err).NotTo(HaveOccurred())

		geometry := r.Scene().Geometry(mh)
		h.g.Expect(geometry.VertexCount).To(BeEquivalentTo(len(triangle)))
		h.g.Expect(h.f.Contents(geometry.Allocation.Buffer)).
			To(Equal(unsafer.SliceToBytes(triangle)), "staged: %t", staged)

		r.Destroy()
		h.g.Expect(h.f.Live()).To(BeEmpty(), "staged: %t", staged)
		h.expectClean()
	}
}

func TestRenderRemoveMesh(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	_, err := r.AddMesh("triangle", triangle)
	h.g.Expect(err).NotTo(HaveOccurred())
	h.g.Expect(r.AddRenderable(RenderObject{Mesh: "triangle", Material: DefaultMaterial})).
		To(Succeed())
	h.g.Expect(r.Render()).To(Succeed())

	err = r.RemoveMesh("triangle")
	h.g.Expect(err).To(MatchError(ContainSubstring("used by render object")))
	h.g.Expect(KindOf(err)).To(Equal(KindAllocator))
	h.g.Expect(h.f.Live()[gputest.KindBuffer]).To(Equal(1))

	r.Scene().ClearObjects()
	h.g.Expect(r.RemoveMesh("triangle")).To(Succeed())
	h.g.Expect(h.f.Live()[gputest.KindBuffer]).To(BeZero())
	h.g.Expect(r.RemoveMesh("triangle")).To(HaveOccurred())

	h.g.Expect(r.Render()).To(Succeed())
	h.expectClean()
}

func TestRenderAcquireOutOfDate(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.sc.OutOfDate = true

	err := r.Render()
	h.g.Expect(errors.Is(err, ErrSurfaceOutOfDate)).To(BeTrue())
	h.g.Expect(KindOf(err)).To(Equal(KindSurfaceOutOfDate))
	h.g.Expect(r.Frame()).To(BeZero())
	h.g.Expect(h.sc.Presented).To(BeEmpty())

	// The fence was reset before the acquisition failed and must be
	// signaled again for the next cycle.
	h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())
	h.g.Expect(h.f.Signaled(ptr(r.sync.PresentSemaphore))).To(BeFalse())

	extent := vk.Extent2D{Width: 1024, Height: 768}
	err = r.Resize(func() error {
		h.sc.Recreate(2, extent)
		return nil
	})
	h.g.Expect(err).NotTo(HaveOccurred())
	h.g.Expect(r.targets).To(HaveLen(2))
	h.g.Expect(r.targets[0].Extent).To(Equal(extent))
	h.g.Expect(r.Stats().Rebuilds).To(BeEquivalentTo(1))
	h.g.Expect(h.f.Live()[gputest.KindFramebuffer]).To(Equal(2))

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(r.Frame()).To(BeEquivalentTo(1))
	h.expectClean()
}

func TestRenderImageWithoutTarget(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	// The swapchain grew without the targets being rebuilt.
	h.sc.Recreate(4, h.sc.Extent())

	for i := 0; i < 3; i++ {
		h.g.Expect(r.Render()).To(Succeed())
	}

	err := r.Render()
	h.g.Expect(errors.Is(err, ErrSurfaceOutOfDate)).To(BeTrue())
	h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())
	h.g.Expect(h.f.Signaled(ptr(r.sync.PresentSemaphore))).To(BeFalse())
	h.g.Expect(h.sc.Presented).To(HaveLen(3))

	h.g.Expect(r.RebuildTargets()).To(Succeed())
	h.g.Expect(r.targets).To(HaveLen(4))
	h.g.Expect(r.Render()).To(Succeed())
	h.expectClean()
}

func TestRenderPresentOutOfDate(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.sc.PresentOutOfDate = true

	err := r.Render()
	h.g.Expect(errors.Is(err, ErrSurfaceOutOfDate)).To(BeTrue())
	h.g.Expect(r.Frame()).To(BeEquivalentTo(1))
	h.g.Expect(r.Stats().Frames).To(BeEquivalentTo(1))
	h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())

	err = r.Resize(func() error {
		h.sc.Recreate(3, h.sc.Extent())
		return nil
	})
	h.g.Expect(err).NotTo(HaveOccurred())
	h.g.Expect(h.sc.Recreated).To(Equal(1))

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(r.Frame()).To(BeEquivalentTo(2))
	h.expectClean()
}

func TestRenderSuboptimalAcquire(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.sc.Suboptimal = true

	h.g.Expect(r.Render()).To(Succeed())
	h.g.Expect(h.sc.Presented).To(HaveLen(1))
}

func TestRenderDropsUnrecordableFrame(t *testing.T) {
	for _, op := range []string{"reset_command_buffer", "begin_command_buffer", "end_command_buffer"} {
		t.Run(op, func(t *testing.T) {
			h := newHarness(t)
			r := h.newRenderer(DefaultConfig())
			defer r.Destroy()

			h.f.FailNext(op)

			h.g.Expect(r.Render()).To(Succeed())
			h.g.Expect(r.Stats().DroppedFrames).To(BeEquivalentTo(1))
			h.g.Expect(r.Frame()).To(BeZero())
			h.g.Expect(h.sc.Presented).To(BeEmpty())
			h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())
			h.g.Expect(h.f.Signaled(ptr(r.sync.PresentSemaphore))).To(BeFalse())

			h.g.Expect(r.Render()).To(Succeed())
			h.g.Expect(r.Frame()).To(BeEquivalentTo(1))
			h.g.Expect(h.sc.Presented).To(HaveLen(1))
			h.expectClean()
		})
	}
}

func TestRenderAcquireTimesOutWhenEveryImageIsHeld(t *testing.T) {
	h := newHarness(t)
	cfg := DefaultConfig()
	cfg.FenceTimeout = 20 * time.Millisecond
	r := h.newRenderer(cfg)
	defer r.Destroy()

	for i := 0; i < len(h.sc.Views()); i++ {
		h.f.FailNext("begin_command_buffer")
		h.g.Expect(r.Render()).To(Succeed())
	}
	h.g.Expect(r.Stats().DroppedFrames).To(BeEquivalentTo(3))
	h.g.Expect(h.sc.Held()).To(Equal(3))
	h.g.Expect(h.sc.AcquireTimeout).To(Equal(cfg.FenceTimeout))

	err := r.Render()
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(errors.Is(err, gpu.ErrTimeout)).To(BeTrue())
	h.g.Expect(h.f.Signaled(ptr(r.sync.Fence))).To(BeTrue())
	h.g.Expect(h.f.Signaled(ptr(r.sync.PresentSemaphore))).To(BeFalse())
	h.g.Expect(h.sc.Presented).To(BeEmpty())
	h.expectClean()
}

func TestRenderSubmitFailure(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())
	defer r.Destroy()

	h.f.FailNext("submit")

	err := r.Render()
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(r.Frame()).To(BeZero())
}

func TestResizeDepthFormatMismatch(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())

	h.sc.SetDepthFormat(vk.FormatD16Unorm)

	err := r.Resize(nil)
	h.g.Expect(err).To(MatchError(ContainSubstring("depth image format")))
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(r.targets).To(BeEmpty())

	r.Destroy()
	h.g.Expect(h.f.Live()).To(BeEmpty())
	h.expectClean()
}

func TestDestroyReleasesEverythingOnce(t *testing.T) {
	h := newHarness(t)
	r := h.newRenderer(DefaultConfig())

	_, err := r.AddMesh("triangle", triangle)
	h.g.Expect(err).NotTo(HaveOccurred())
	h.g.Expect(r.AddRenderable(RenderObject{Mesh: "triangle", Material: DefaultMaterial})).
		To(Succeed())
	h.g.Expect(r.Render()).To(Succeed())

	r.Destroy()
	r.Destroy()

	h.g.Expect(h.f.Live()).To(BeEmpty())
	h.expectClean()

	for _, kind := range []string{
		gputest.KindRenderPass,
		gputest.KindFramebuffer,
		gputest.KindPipeline,
		gputest.KindPipelineLayout,
		gputest.KindShaderModule,
		gputest.KindSemaphore,
		gputest.KindFence,
		gputest.KindCommandPool,
		gputest.KindCommandBuffer,
		gputest.KindBuffer,
		gputest.KindMemory,
	} {
		for _, handle := range h.f.Handles(kind) {
			h.g.Expect(h.f.DestroyCount(handle)).To(Equal(1), kind)
		}
	}

	log := h.f.DestroyLog()
	want := []string{
		"buffer", "memory",
		"semaphore", "semaphore", "fence",
		"pipeline", "pipeline_layout",
		"command_pool",
		"framebuffer", "framebuffer", "framebuffer",
		"render_pass",
	}
	h.g.Expect(len(log)).To(BeNumerically(">=", len(want)))
	h.g.Expect(log[len(log)-len(want):]).To(Equal(want))

	err = r.Render()
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(r.Resize(nil)).To(HaveOccurred())
	h.g.Expect(r.RemoveMesh("triangle")).To(HaveOccurred())
	h.g.Expect(r.Frame()).To(BeZero())
}

func TestNewCleansUpOnFailure(t *testing.T) {
	tests := []struct {
		kind string
		skip int
	}{
		{kind: gputest.KindRenderPass},
		{kind: gputest.KindFramebuffer},
		{kind: gputest.KindFramebuffer, skip: 2},
		{kind: gputest.KindCommandPool},
		{kind: gputest.KindCommandBuffer},
		{kind: gputest.KindCommandBuffer, skip: 1},
		{kind: gputest.KindSemaphore},
		{kind: gputest.KindSemaphore, skip: 1},
		{kind: gputest.KindFence},
		{kind: gputest.KindShaderModule},
		{kind: gputest.KindShaderModule, skip: 1},
		{kind: gputest.KindPipelineLayout},
		{kind: gputest.KindPipeline},
	}

	for _, tt := range tests {
		h := newHarness(t)
		h.f.FailAfter(tt.kind, tt.skip)

		r, err := New(DefaultConfig(), h.f, h.f, h.qs, h.sc, testProgram)
		h.g.Expect(err).To(HaveOccurred(), "%s after %d", tt.kind, tt.skip)
		h.g.Expect(r).To(BeNil())
		h.g.Expect(KindOf(err)).To(Equal(KindInit))
		h.g.Expect(h.f.Live()).To(BeEmpty(), "%s after %d", tt.kind, tt.skip)
		h.expectClean()
	}
}

func TestNewRejectsEmptySurface(t *testing.T) {
	h := newHarness(t)
	h.sc.Recreate(0, h.sc.Extent())

	_, err := New(DefaultConfig(), h.f, h.f, h.qs, h.sc, testProgram)
	h.g.Expect(KindOf(err)).To(Equal(KindInit))
	h.g.Expect(h.f.Live()).To(BeEmpty())
}

func TestDefaultCamera(t *testing.T) {
	g := NewWithT(t)

	view, proj := DefaultCamera(vk.Extent2D{Width: 800, Height: 600})
	g.Expect(view.At(2, 3)).To(BeNumerically("==", -2))
	g.Expect(proj.At(1, 1)).To(BeNumerically("<", 0))
	g.Expect(proj.At(0, 0)).To(BeNumerically(">", 0))

	_, square := DefaultCamera(vk.Extent2D{})
	g.Expect(square.At(0, 0)).To(BeNumerically("~", -square.At(1, 1), 1e-6))
}
