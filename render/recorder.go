package render

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/pipeline"
	"vulkan-renderer/queues"
	"vulkan-renderer/unsafer"
)

type recorderState int

const (
	stateIdle recorderState = iota
	stateRecording
	stateInPass
	stateExecutable
	stateSubmitted
)

func (s recorderState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRecording:
		return "recording"
	case stateInPass:
		return "in render pass"
	case stateExecutable:
		return "executable"
	case stateSubmitted:
		return "submitted"
	}
	return "unknown"
}

// Recorder owns the command pools and the command buffers the renderer
// records into: the main buffer, re-recorded every frame and submitted to the
// graphics queue, and the transfer buffer used for one-off copies.
//
// Calls on the main buffer must follow
//
//	Begin, [BeginRenderPass, {BindPipeline, BindVertexBuffers, PushConstants, Draw}, EndRenderPass], End, Submit
//
// A call made in any other order returns an error wrapping ErrOutOfOrder and
// does not reach the device.
type Recorder struct {
	dev    gpu.Device
	queues queues.Set

	graphicsPool vk.CommandPool
	transferPool vk.CommandPool
	sharedPool   bool

	main     vk.CommandBuffer
	transfer vk.CommandBuffer

	state recorderState
	bound *pipeline.Pipeline

	destroyed bool
}

// NewRecorder creates a command pool for the graphics family and, when the
// transfer queue belongs to another family, a second pool for it.
func NewRecorder(dev gpu.Device, qs queues.Set) (*Recorder, error) {
	r := &Recorder{
		dev:        dev,
		queues:     qs,
		sharedPool: qs.SharedTransfer(),
	}

	graphicsPool, err := dev.CreateCommandPool(qs.Graphics.Family)
	if err != nil {
		return nil, newError(KindDevice, "create command pool", err)
	}
	r.graphicsPool = graphicsPool
	r.transferPool = graphicsPool

	if !r.sharedPool {
		transferPool, err := dev.CreateCommandPool(qs.Transfer.Family)
		if err != nil {
			dev.DestroyCommandPool(graphicsPool)
			return nil, newError(KindDevice, "create transfer command pool", err)
		}
		r.transferPool = transferPool
	}

	r.main, err = dev.AllocateCommandBuffer(r.graphicsPool)
	if err != nil {
		r.Destroy()
		return nil, newError(KindDevice, "allocate command buffer", err)
	}

	r.transfer, err = dev.AllocateCommandBuffer(r.transferPool)
	if err != nil {
		r.Destroy()
		return nil, newError(KindDevice, "allocate transfer command buffer", err)
	}

	return r, nil
}

func (r *Recorder) outOfOrder(op string) error {
	return newError(KindRecorder, op, errors.Wrapf(ErrOutOfOrder, "recorder is %s", r.state))
}

// Begin resets the main command buffer and starts recording a one time
// submission. The caller must know the previous submission has completed.
func (r *Recorder) Begin() error {
	if r.state == stateRecording || r.state == stateInPass {
		return r.outOfOrder("begin")
	}

	if err := r.dev.ResetCommandBuffer(r.main); err != nil {
		r.state = stateIdle
		return newError(KindRecorder, "begin", err)
	}

	flags := vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	if err := r.dev.BeginCommandBuffer(r.main, flags); err != nil {
		r.state = stateIdle
		return newError(KindRecorder, "begin", err)
	}

	r.state = stateRecording
	r.bound = nil
	return nil
}

// BeginRenderPass begins the target's render pass with inline contents and
// sets the dynamic viewport and scissor to cover the whole target.
func (r *Recorder) BeginRenderPass(target Target, clear []vk.ClearValue) error {
	if r.state != stateRecording {
		return r.outOfOrder("begin render pass")
	}

	renderArea := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: target.Extent,
	}

	renderPassInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      target.RenderPass,
		Framebuffer:     target.Framebuffer,
		RenderArea:      renderArea,
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	r.dev.CmdBeginRenderPass(r.main, &renderPassInfo)

	r.dev.CmdSetViewport(r.main, vk.Viewport{
		X: 0, Y: 0,
		Width:    float32(target.Extent.Width),
		Height:   float32(target.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	r.dev.CmdSetScissor(r.main, renderArea)

	r.state = stateInPass
	return nil
}

// BindPipeline binds p for the draws which follow. Push constants use its
// layout.
func (r *Recorder) BindPipeline(p *pipeline.Pipeline) error {
	if r.state != stateInPass {
		return r.outOfOrder("bind pipeline")
	}
	r.dev.CmdBindPipeline(r.main, p.Handle)
	r.bound = p
	return nil
}

// BindVertexBuffers binds buffers starting at binding 0.
func (r *Recorder) BindVertexBuffers(buffers []vk.Buffer, offsets []vk.DeviceSize) error {
	if r.state != stateInPass {
		return r.outOfOrder("bind vertex buffers")
	}
	r.dev.CmdBindVertexBuffers(r.main, 0, buffers, offsets)
	return nil
}

// PushConstants updates the push constants of the bound pipeline.
func (r *Recorder) PushConstants(c *pipeline.MeshPushConstants) error {
	if r.state != stateInPass || r.bound == nil {
		return r.outOfOrder("push constants")
	}
	r.dev.CmdPushConstants(
		r.main,
		r.bound.Layout,
		pipeline.PushConstantStages,
		0,
		unsafer.StructToBytes(c),
	)
	return nil
}

// Draw records a non-indexed draw with the bound pipeline.
func (r *Recorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if r.state != stateInPass || r.bound == nil {
		return r.outOfOrder("draw")
	}
	r.dev.CmdDraw(r.main, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

// EndRenderPass closes the render pass opened by BeginRenderPass.
func (r *Recorder) EndRenderPass() error {
	if r.state != stateInPass {
		return r.outOfOrder("end render pass")
	}
	r.dev.CmdEndRenderPass(r.main)
	r.state = stateRecording
	return nil
}

// End finishes recording the main command buffer.
func (r *Recorder) End() error {
	if r.state != stateRecording {
		return r.outOfOrder("end")
	}
	if err := r.dev.EndCommandBuffer(r.main); err != nil {
		r.state = stateIdle
		return newError(KindRecorder, "end", err)
	}
	r.state = stateExecutable
	return nil
}

// Submit submits the main command buffer to the graphics queue. Every wait
// semaphore is waited on at the color attachment output stage. fence is
// signaled once the buffer has completed. A failed submission is not
// retried.
func (r *Recorder) Submit(wait, signal []vk.Semaphore, fence vk.Fence) error {
	if r.state != stateExecutable {
		return r.outOfOrder("submit")
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    colorOutputStages(len(wait)),
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{r.main},
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}

	err := r.dev.QueueSubmit(r.queues.Graphics.Handle, []vk.SubmitInfo{submitInfo}, fence)
	if err != nil {
		r.state = stateIdle
		return newError(KindDevice, "submit", err)
	}

	r.state = stateSubmitted
	return nil
}

// discard forgets a recording which will never be submitted. The next Begin
// resets the buffer.
func (r *Recorder) discard() {
	if r.state != stateSubmitted {
		r.state = stateIdle
	}
	r.bound = nil
}

// CopyBuffer copies size bytes from src to dst on the transfer queue and
// waits for the queue to become idle.
func (r *Recorder) CopyBuffer(src, dst vk.Buffer, size vk.DeviceSize) error {
	if err := r.dev.ResetCommandBuffer(r.transfer); err != nil {
		return newError(KindRecorder, "copy buffer", err)
	}

	flags := vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	if err := r.dev.BeginCommandBuffer(r.transfer, flags); err != nil {
		return newError(KindRecorder, "copy buffer", err)
	}

	r.dev.CmdCopyBuffer(r.transfer, src, dst, size)

	if err := r.dev.EndCommandBuffer(r.transfer); err != nil {
		return newError(KindRecorder, "copy buffer", err)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{r.transfer},
	}

	queue := r.queues.Transfer.Handle
	if err := r.dev.QueueSubmit(queue, []vk.SubmitInfo{submitInfo}, vk.NullFence); err != nil {
		return newError(KindDevice, "copy buffer", err)
	}

	if err := r.dev.QueueWaitIdle(queue); err != nil {
		return newError(KindDevice, "copy buffer", err)
	}

	return nil
}

// Destroy destroys the command pools, which frees their buffers. A shared
// pool is destroyed once. Destroying twice is a no-op.
func (r *Recorder) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true

	if !r.sharedPool {
		r.dev.DestroyCommandPool(r.transferPool)
	}
	r.dev.DestroyCommandPool(r.graphicsPool)
}

func colorOutputStages(n int) []vk.PipelineStageFlags {
	if n == 0 {
		return nil
	}
	stages := make([]vk.PipelineStageFlags, n)
	for i := range stages {
		stages[i] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	}
	return stages
}
