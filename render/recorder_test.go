package render

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu/gputest"
	"vulkan-renderer/pipeline"

	. "github.com/onsi/gomega"
)

func TestRecorderRejectsOutOfOrderCalls(t *testing.T) {
	h := newHarness(t)

	rec, err := NewRecorder(h.f, h.qs)
	h.g.Expect(err).NotTo(HaveOccurred())
	defer rec.Destroy()

	p := &pipeline.Pipeline{}
	constants := pipeline.MeshPushConstants{RenderMatrix: mgl32.Ident4()}

	for name, call := range map[string]func() error{
		"draw":               func() error { return rec.Draw(3, 1, 0, 0) },
		"bind pipeline":      func() error { return rec.BindPipeline(p) },
		"push constants":     func() error { return rec.PushConstants(&constants) },
		"end render pass":    func() error { return rec.EndRenderPass() },
		"end":                func() error { return rec.End() },
		"submit":             func() error { return rec.Submit(nil, nil, vk.NullFence) },
		"bind vertex buffer": func() error { return rec.BindVertexBuffers(nil, nil) },
	} {
		err := call()
		h.g.Expect(err).To(MatchError(ErrOutOfOrder), name)
		h.g.Expect(KindOf(err)).To(Equal(KindRecorder), name)
	}

	h.g.Expect(h.f.Events()).To(BeEmpty())
	h.g.Expect(h.f.Commands(rec.main)).To(BeEmpty())
}

func TestRecorderSequence(t *testing.T) {
	h := newHarness(t)

	l, err := BuildLayout(h.f, h.sc.ColorFormat(), h.sc.DepthFormat())
	h.g.Expect(err).NotTo(HaveOccurred())
	targets, err := BuildTargets(h.f, l, h.sc.Views(), h.sc.DepthView(), h.sc.Extent())
	h.g.Expect(err).NotTo(HaveOccurred())
	p, err := pipeline.Build(h.f, l.RenderPass, testProgram)
	h.g.Expect(err).NotTo(HaveOccurred())

	rec, err := NewRecorder(h.f, h.qs)
	h.g.Expect(err).NotTo(HaveOccurred())

	h.g.Expect(rec.Begin()).To(Succeed())
	h.g.Expect(rec.Begin()).To(MatchError(ErrOutOfOrder))
	h.g.Expect(rec.Draw(3, 1, 0, 0)).To(MatchError(ErrOutOfOrder))

	h.g.Expect(rec.BeginRenderPass(targets[1], nil)).To(Succeed())
	h.g.Expect(rec.End()).To(MatchError(ErrOutOfOrder))

	// Draws need a bound pipeline.
	h.g.Expect(rec.Draw(3, 1, 0, 0)).To(MatchError(ErrOutOfOrder))

	h.g.Expect(rec.BindPipeline(p)).To(Succeed())
	h.g.Expect(rec.PushConstants(&pipeline.MeshPushConstants{})).To(Succeed())
	h.g.Expect(rec.Draw(3, 1, 0, 0)).To(Succeed())
	h.g.Expect(rec.EndRenderPass()).To(Succeed())
	h.g.Expect(rec.End()).To(Succeed())

	ops := h.f.Commands(rec.main)
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Op)
	}
	h.g.Expect(names).To(Equal([]string{
		"begin_render_pass",
		"set_viewport",
		"set_scissor",
		"bind_pipeline",
		"push_constants",
		"draw",
		"end_render_pass",
	}))
	h.g.Expect(ops[0].Handles[1]).To(Equal(ptr(targets[1].Framebuffer)))
	h.g.Expect(ops[4].Args[1]).To(BeEquivalentTo(pipeline.PushConstantsSize))

	fence, err := h.f.CreateFence(false)
	h.g.Expect(err).NotTo(HaveOccurred())

	h.g.Expect(rec.Submit(nil, nil, fence)).To(Succeed())
	h.g.Expect(rec.Submit(nil, nil, fence)).To(MatchError(ErrOutOfOrder))
	h.g.Expect(h.f.Signaled(ptr(fence))).To(BeTrue())

	submits := h.f.Submits()
	h.g.Expect(submits).To(HaveLen(1))
	h.g.Expect(submits[0].Queue).To(Equal(ptr(h.qs.Graphics.Handle)))
	h.g.Expect(submits[0].Buffers).To(Equal([]unsafe.Pointer{ptr(rec.main)}))

	h.f.DestroyFence(fence)
	rec.Destroy()
	p.Destroy(h.f)
	targets.Destroy(h.f)
	l.Destroy(h.f)

	h.g.Expect(h.f.Live()).To(BeEmpty())
	h.expectClean()
}

func TestRecorderSubmitWaitsAtColorOutput(t *testing.T) {
	h := newHarness(t)

	rec, err := NewRecorder(h.f, h.qs)
	h.g.Expect(err).NotTo(HaveOccurred())
	defer rec.Destroy()

	sem, err := h.f.CreateSemaphore()
	h.g.Expect(err).NotTo(HaveOccurred())
	h.f.Signal(sem, "test")

	h.g.Expect(rec.Begin()).To(Succeed())
	h.g.Expect(rec.End()).To(Succeed())
	h.g.Expect(rec.Submit([]vk.Semaphore{sem}, nil, vk.NullFence)).To(Succeed())

	submit := h.f.Submits()[0]
	h.g.Expect(submit.Waits).To(HaveLen(1))
	h.g.Expect(submit.WaitStages).To(Equal([]vk.PipelineStageFlags{
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
	}))
	h.g.Expect(h.f.Signaled(ptr(sem))).To(BeFalse())

	h.f.DestroySemaphore(sem)
	h.expectClean()
}

func TestRecorderBeginFailure(t *testing.T) {
	h := newHarness(t)

	rec, err := NewRecorder(h.f, h.qs)
	h.g.Expect(err).NotTo(HaveOccurred())
	defer rec.Destroy()

	h.f.FailNext("begin_command_buffer")
	err = rec.Begin()
	h.g.Expect(KindOf(err)).To(Equal(KindRecorder))
	h.g.Expect(err).NotTo(MatchError(ErrOutOfOrder))

	h.g.Expect(rec.Begin()).To(Succeed())
}

func TestRecorderPools(t *testing.T) {
	t.Run("shared", func(t *testing.T) {
		h := newHarness(t)

		rec, err := NewRecorder(h.f, h.qs)
		h.g.Expect(err).NotTo(HaveOccurred())
		h.g.Expect(h.f.Created(gputest.KindCommandPool)).To(Equal(1))
		h.g.Expect(h.f.Created(gputest.KindCommandBuffer)).To(Equal(2))

		rec.Destroy()
		rec.Destroy()

		for _, pool := range h.f.Handles(gputest.KindCommandPool) {
			h.g.Expect(h.f.DestroyCount(pool)).To(Equal(1))
		}
		h.g.Expect(h.f.Live()).To(BeEmpty())
		h.expectClean()
	})

	t.Run("dedicated transfer family", func(t *testing.T) {
		h := newHarness(t).withTransferFamily()

		rec, err := NewRecorder(h.f, h.qs)
		h.g.Expect(err).NotTo(HaveOccurred())
		h.g.Expect(h.f.Created(gputest.KindCommandPool)).To(Equal(2))

		rec.Destroy()
		h.g.Expect(h.f.Live()).To(BeEmpty())
		h.expectClean()
	})

	t.Run("allocation failure", func(t *testing.T) {
		h := newHarness(t).withTransferFamily()
		h.f.FailAfter(gputest.KindCommandBuffer, 1)

		_, err := NewRecorder(h.f, h.qs)
		h.g.Expect(KindOf(err)).To(Equal(KindDevice))
		h.g.Expect(h.f.Live()).To(BeEmpty())
		h.expectClean()
	})
}

func TestRecorderCopyBuffer(t *testing.T) {
	h := newHarness(t).withTransferFamily()

	rec, err := NewRecorder(h.f, h.qs)
	h.g.Expect(err).NotTo(HaveOccurred())
	defer rec.Destroy()

	src, err := h.f.CreateBuffer(4, 0, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit))
	h.g.Expect(err).NotTo(HaveOccurred())
	dst, err := h.f.CreateBuffer(4, 0, 0)
	h.g.Expect(err).NotTo(HaveOccurred())

	mapped, err := h.f.Map(src)
	h.g.Expect(err).NotTo(HaveOccurred())
	vk.Memcopy(mapped, []byte{1, 2, 3, 4})
	h.f.Unmap(src)

	h.g.Expect(rec.CopyBuffer(src.Buffer, dst.Buffer, 4)).To(Succeed())
	h.g.Expect(h.f.Contents(dst.Buffer)).To(Equal([]byte{1, 2, 3, 4}))

	submit := h.f.Submits()[0]
	h.g.Expect(submit.Queue).To(Equal(ptr(h.qs.Transfer.Handle)))
	h.g.Expect(h.f.Events()).To(ContainElement("queue_wait_idle"))

	h.f.DestroyBuffer(src)
	h.f.DestroyBuffer(dst)
	h.expectClean()
}
