// Package gputest provides an in-memory implementation of gpu.Device and
// gpu.Allocator for tests, plus a fake swapchain.
//
// Submitted work completes as soon as it is submitted unless Stall is set.
// The fake keeps the state of every object it hands out and records every
// misuse it can detect (double destroy, waiting on an unsignaled semaphore,
// resetting a command buffer which is still pending, destroying a render pass
// before its framebuffers, ...) as a violation instead of failing the call.
package gputest

import (
	"fmt"
	"sort"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
)

// Object kinds as reported by Live, Created and DestroyLog. They are also the
// keys accepted by FailNext and FailAfter, together with the operation names
// "map", "reset_command_buffer", "begin_command_buffer", "end_command_buffer",
// "submit" and "reset_fence".
const (
	KindRenderPass     = "render_pass"
	KindFramebuffer    = "framebuffer"
	KindShaderModule   = "shader_module"
	KindPipelineLayout = "pipeline_layout"
	KindPipeline       = "pipeline"
	KindSemaphore      = "semaphore"
	KindFence          = "fence"
	KindCommandPool    = "command_pool"
	KindCommandBuffer  = "command_buffer"
	KindBuffer         = "buffer"
	KindMemory         = "memory"
	KindImageView      = "image_view"
	KindQueue          = "queue"
)

type cmdState int

const (
	cmdInitial cmdState = iota
	cmdRecording
	cmdExecutable
)

// Command is one recorded command.
type Command struct {
	Op      string
	Handles []unsafe.Pointer
	Args    []uint64
}

// Submit is one recorded batch of a QueueSubmit call.
type Submit struct {
	Queue      unsafe.Pointer
	Waits      []unsafe.Pointer
	WaitStages []vk.PipelineStageFlags
	Buffers    []unsafe.Pointer
	Signals    []unsafe.Pointer
	Fence      unsafe.Pointer

	// Ops is a copy of what the submitted command buffers contained.
	Ops []Command
}

type object struct {
	kind      string
	seq       int
	destroyed int

	// fences and semaphores
	signaled bool
	pending  bool
	awaited  bool

	// framebuffers point at their render pass, command buffers at their pool
	parent unsafe.Pointer

	// command buffers
	state cmdState
	ops   []Command

	// buffers
	data        []byte
	memory      unsafe.Pointer
	hostVisible bool
	mapped      bool
}

type inflight struct {
	buffers []unsafe.Pointer
	signals []unsafe.Pointer
	fence   unsafe.Pointer
}

// Fake is an in-memory GPU. The zero value is not usable, use New.
type Fake struct {
	// Stall keeps submitted work from completing until Complete is called.
	Stall bool

	objects    map[unsafe.Pointer]*object
	seq        int
	failures   map[string]int
	events     []string
	destroyLog []string
	violations []string
	submits    []Submit
	inflight   []inflight
}

var (
	_ gpu.Device    = (*Fake)(nil)
	_ gpu.Allocator = (*Fake)(nil)
)

// New returns an empty fake GPU.
func New() *Fake {
	return &Fake{
		objects:  make(map[unsafe.Pointer]*object),
		failures: make(map[string]int),
	}
}

// FailNext makes the next operation of the given kind fail.
func (f *Fake) FailNext(kind string) {
	f.FailAfter(kind, 0)
}

// FailAfter lets skip operations of the given kind succeed and fails the one
// after them.
func (f *Fake) FailAfter(kind string, skip int) {
	f.failures[kind] = skip
}

func (f *Fake) fail(kind string) bool {
	left, ok := f.failures[kind]
	if !ok {
		return false
	}
	if left == 0 {
		delete(f.failures, kind)
		return true
	}
	f.failures[kind] = left - 1
	return false
}

func (f *Fake) mint(kind string) (unsafe.Pointer, *object) {
	f.seq++
	obj := &object{kind: kind, seq: f.seq}
	handle := unsafe.Pointer(obj)
	f.objects[handle] = obj
	return handle, obj
}

func (f *Fake) violate(format string, args ...any) {
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *Fake) event(name string) {
	f.events = append(f.events, name)
}

// lookup returns the live object behind handle, recording a violation when
// the handle is unknown, of the wrong kind or already destroyed.
func (f *Fake) lookup(handle unsafe.Pointer, kind, op string) *object {
	obj, ok := f.objects[handle]
	switch {
	case !ok:
		f.violate("%s: unknown %s handle %p", op, kind, handle)
		return nil
	case obj.kind != kind:
		f.violate("%s: handle %p is a %s, not a %s", op, handle, obj.kind, kind)
		return nil
	case obj.destroyed > 0:
		f.violate("%s: %s %d used after destroy", op, kind, obj.seq)
	}
	return obj
}

func (f *Fake) destroy(handle unsafe.Pointer, kind string) *object {
	obj, ok := f.objects[handle]
	if !ok || obj.kind != kind {
		f.violate("destroy: unknown %s handle %p", kind, handle)
		return nil
	}

	obj.destroyed++
	if obj.destroyed > 1 {
		f.violate("destroy: %s %d destroyed %d times", kind, obj.seq, obj.destroyed)
		return nil
	}

	f.destroyLog = append(f.destroyLog, kind)
	return obj
}

// Violations returns every misuse recorded so far.
func (f *Fake) Violations() []string {
	return f.violations
}

// Events returns the ordered log of synchronization relevant calls.
func (f *Fake) Events() []string {
	return f.events
}

// ResetEvents clears the event log.
func (f *Fake) ResetEvents() {
	f.events = nil
}

// DestroyLog returns the kinds of the destroyed objects in destroy order.
func (f *Fake) DestroyLog() []string {
	return f.destroyLog
}

// Submits returns every batch submitted so far.
func (f *Fake) Submits() []Submit {
	return f.submits
}

// Live counts the objects which were created and not destroyed yet, by kind.
// Image views and queues belong to the swapchain and device and are not
// counted.
func (f *Fake) Live() map[string]int {
	live := make(map[string]int)
	for _, obj := range f.objects {
		if obj.destroyed > 0 || obj.kind == KindImageView || obj.kind == KindQueue {
			continue
		}
		live[obj.kind]++
	}
	return live
}

// Created returns how many objects of kind were created.
func (f *Fake) Created(kind string) int {
	return len(f.Handles(kind))
}

// Handles returns every handle of kind in creation order.
func (f *Fake) Handles(kind string) []unsafe.Pointer {
	var objs []*object
	for _, obj := range f.objects {
		if obj.kind == kind {
			objs = append(objs, obj)
		}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].seq < objs[j].seq })

	handles := make([]unsafe.Pointer, 0, len(objs))
	for _, obj := range objs {
		handles = append(handles, unsafe.Pointer(obj))
	}
	return handles
}

// DestroyCount returns how many times handle has been destroyed.
func (f *Fake) DestroyCount(handle unsafe.Pointer) int {
	if obj, ok := f.objects[handle]; ok {
		return obj.destroyed
	}
	return 0
}

// Signaled reports the state of a fence or semaphore.
func (f *Fake) Signaled(handle unsafe.Pointer) bool {
	if obj, ok := f.objects[handle]; ok {
		return obj.signaled
	}
	return false
}

// Commands returns what is currently recorded into cmd.
func (f *Fake) Commands(cmd vk.CommandBuffer) []Command {
	if obj, ok := f.objects[unsafe.Pointer(cmd)]; ok {
		return obj.ops
	}
	return nil
}

// Contents returns a copy of the memory behind buffer.
func (f *Fake) Contents(buffer vk.Buffer) []byte {
	obj, ok := f.objects[unsafe.Pointer(buffer)]
	if !ok {
		return nil
	}
	return append([]byte(nil), obj.data...)
}

// Queue creates a queue handle.
func (f *Fake) Queue() vk.Queue {
	handle, _ := f.mint(KindQueue)
	return vk.Queue(handle)
}

// ImageView creates an image view handle.
func (f *Fake) ImageView() vk.ImageView {
	handle, _ := f.mint(KindImageView)
	return vk.ImageView(handle)
}

// ReleaseImageView marks a view created with ImageView as destroyed.
func (f *Fake) ReleaseImageView(view vk.ImageView) {
	f.destroy(unsafe.Pointer(view), KindImageView)
}

// Complete finishes every stalled submission.
func (f *Fake) Complete() {
	pending := f.inflight
	f.inflight = nil
	for _, work := range pending {
		f.complete(work)
	}
}

// Signal puts a semaphore into the signaled state the way a presentation
// engine does on image acquisition.
func (f *Fake) Signal(semaphore vk.Semaphore, op string) {
	obj := f.lookup(unsafe.Pointer(semaphore), KindSemaphore, op)
	if obj == nil {
		return
	}
	if obj.signaled {
		f.violate("%s: semaphore %d is already signaled", op, obj.seq)
	}
	obj.signaled = true
}

// Consume waits on a semaphore and returns it to the unsignaled state.
func (f *Fake) Consume(semaphore unsafe.Pointer, op string) {
	obj := f.lookup(semaphore, KindSemaphore, op)
	if obj == nil {
		return
	}
	if obj.pending {
		obj.awaited = true
		return
	}
	if !obj.signaled {
		f.violate("%s: waits on semaphore %d which nothing signals", op, obj.seq)
	}
	obj.signaled = false
}

func (f *Fake) CreateRenderPass(info *vk.RenderPassCreateInfo) (vk.RenderPass, error) {
	if f.fail(KindRenderPass) {
		return vk.RenderPass(vk.NullHandle), errors.New("fake: render pass rejected")
	}

	for _, subpass := range info.PSubpasses {
		for _, ref := range subpass.PColorAttachments {
			if ref.Attachment >= info.AttachmentCount {
				f.violate("create render pass: color attachment %d out of range", ref.Attachment)
			}
		}
		if ref := subpass.PDepthStencilAttachment; ref != nil && ref.Attachment >= info.AttachmentCount {
			f.violate("create render pass: depth attachment %d out of range", ref.Attachment)
		}
	}

	handle, _ := f.mint(KindRenderPass)
	return vk.RenderPass(handle), nil
}

func (f *Fake) DestroyRenderPass(renderPass vk.RenderPass) {
	handle := unsafe.Pointer(renderPass)
	if f.destroy(handle, KindRenderPass) == nil {
		return
	}

	for _, obj := range f.objects {
		if obj.kind == KindFramebuffer && obj.parent == handle && obj.destroyed == 0 {
			f.violate("destroy render pass: framebuffer %d still references it", obj.seq)
		}
	}
}

func (f *Fake) CreateFramebuffer(info *vk.FramebufferCreateInfo) (vk.Framebuffer, error) {
	f.lookup(unsafe.Pointer(info.RenderPass), KindRenderPass, "create framebuffer")
	if int(info.AttachmentCount) != len(info.PAttachments) {
		f.violate("create framebuffer: attachment count %d, got %d views",
			info.AttachmentCount, len(info.PAttachments))
	}
	for _, view := range info.PAttachments {
		f.lookup(unsafe.Pointer(view), KindImageView, "create framebuffer")
	}

	if f.fail(KindFramebuffer) {
		return vk.Framebuffer(vk.NullHandle), errors.New("fake: framebuffer rejected")
	}

	handle, obj := f.mint(KindFramebuffer)
	obj.parent = unsafe.Pointer(info.RenderPass)
	return vk.Framebuffer(handle), nil
}

func (f *Fake) DestroyFramebuffer(framebuffer vk.Framebuffer) {
	f.destroy(unsafe.Pointer(framebuffer), KindFramebuffer)
}

func (f *Fake) CreateShaderModule(code []uint32) (vk.ShaderModule, error) {
	if f.fail(KindShaderModule) || len(code) == 0 {
		return vk.ShaderModule(vk.NullHandle), errors.New("fake: shader module rejected")
	}
	handle, _ := f.mint(KindShaderModule)
	return vk.ShaderModule(handle), nil
}

func (f *Fake) DestroyShaderModule(module vk.ShaderModule) {
	f.destroy(unsafe.Pointer(module), KindShaderModule)
}

func (f *Fake) CreatePipelineLayout(info *vk.PipelineLayoutCreateInfo) (vk.PipelineLayout, error) {
	if f.fail(KindPipelineLayout) {
		return vk.PipelineLayout(vk.NullHandle), errors.New("fake: pipeline layout rejected")
	}
	handle, _ := f.mint(KindPipelineLayout)
	return vk.PipelineLayout(handle), nil
}

func (f *Fake) DestroyPipelineLayout(layout vk.PipelineLayout) {
	f.destroy(unsafe.Pointer(layout), KindPipelineLayout)
}

func (f *Fake) CreateGraphicsPipeline(info *vk.GraphicsPipelineCreateInfo) (vk.Pipeline, error) {
	f.lookup(unsafe.Pointer(info.RenderPass), KindRenderPass, "create pipeline")
	f.lookup(unsafe.Pointer(info.Layout), KindPipelineLayout, "create pipeline")
	for _, stage := range info.PStages {
		f.lookup(unsafe.Pointer(stage.Module), KindShaderModule, "create pipeline")
	}

	if f.fail(KindPipeline) {
		return vk.Pipeline(vk.NullHandle), errors.New("fake: pipeline rejected")
	}
	handle, _ := f.mint(KindPipeline)
	return vk.Pipeline(handle), nil
}

func (f *Fake) DestroyPipeline(pipeline vk.Pipeline) {
	f.destroy(unsafe.Pointer(pipeline), KindPipeline)
}

func (f *Fake) CreateSemaphore() (vk.Semaphore, error) {
	if f.fail(KindSemaphore) {
		return vk.Semaphore(vk.NullHandle), errors.New("fake: semaphore rejected")
	}
	handle, _ := f.mint(KindSemaphore)
	return vk.Semaphore(handle), nil
}

func (f *Fake) DestroySemaphore(semaphore vk.Semaphore) {
	obj := f.destroy(unsafe.Pointer(semaphore), KindSemaphore)
	if obj != nil && obj.pending {
		f.violate("destroy semaphore: semaphore %d is used by pending work", obj.seq)
	}
}

func (f *Fake) CreateFence(signaled bool) (vk.Fence, error) {
	if f.fail(KindFence) {
		return vk.Fence(vk.NullHandle), errors.New("fake: fence rejected")
	}
	handle, obj := f.mint(KindFence)
	obj.signaled = signaled
	return vk.Fence(handle), nil
}

func (f *Fake) DestroyFence(fence vk.Fence) {
	obj := f.destroy(unsafe.Pointer(fence), KindFence)
	if obj != nil && obj.pending {
		f.violate("destroy fence: fence %d is used by pending work", obj.seq)
	}
}

func (f *Fake) WaitForFence(fence vk.Fence, timeout time.Duration) error {
	f.event("wait_fence")

	obj := f.lookup(unsafe.Pointer(fence), KindFence, "wait for fence")
	if obj == nil {
		return errors.New("fake: unknown fence")
	}
	if timeout <= 0 {
		f.violate("wait for fence: non positive timeout %s", timeout)
	}
	if !obj.signaled {
		return gpu.ErrTimeout
	}
	return nil
}

func (f *Fake) ResetFence(fence vk.Fence) error {
	f.event("reset_fence")

	obj := f.lookup(unsafe.Pointer(fence), KindFence, "reset fence")
	if obj == nil {
		return errors.New("fake: unknown fence")
	}
	if f.fail("reset_fence") {
		return errors.New("fake: fence reset rejected")
	}
	if obj.pending {
		f.violate("reset fence: fence %d is used by pending work", obj.seq)
	}
	obj.signaled = false
	return nil
}

func (f *Fake) CreateCommandPool(queueFamily uint32) (vk.CommandPool, error) {
	if f.fail(KindCommandPool) {
		return vk.CommandPool(vk.NullHandle), errors.New("fake: command pool rejected")
	}
	handle, _ := f.mint(KindCommandPool)
	return vk.CommandPool(handle), nil
}

func (f *Fake) DestroyCommandPool(pool vk.CommandPool) {
	handle := unsafe.Pointer(pool)
	if f.destroy(handle, KindCommandPool) == nil {
		return
	}

	for _, obj := range f.objects {
		if obj.kind != KindCommandBuffer || obj.parent != handle {
			continue
		}
		if obj.pending {
			f.violate("destroy command pool: command buffer %d is pending", obj.seq)
		}
		obj.destroyed++
	}
}

func (f *Fake) AllocateCommandBuffer(pool vk.CommandPool) (vk.CommandBuffer, error) {
	f.lookup(unsafe.Pointer(pool), KindCommandPool, "allocate command buffer")
	if f.fail(KindCommandBuffer) {
		return nil, errors.New("fake: command buffer allocation rejected")
	}
	handle, obj := f.mint(KindCommandBuffer)
	obj.parent = unsafe.Pointer(pool)
	return vk.CommandBuffer(handle), nil
}

func (f *Fake) commandBuffer(cmd vk.CommandBuffer, op string) *object {
	return f.lookup(unsafe.Pointer(cmd), KindCommandBuffer, op)
}

func (f *Fake) ResetCommandBuffer(cmd vk.CommandBuffer) error {
	f.event("reset_command_buffer")

	obj := f.commandBuffer(cmd, "reset command buffer")
	if obj == nil {
		return errors.New("fake: unknown command buffer")
	}
	if obj.pending {
		f.violate("reset command buffer: command buffer %d is pending", obj.seq)
	}
	if f.fail("reset_command_buffer") {
		return errors.New("fake: command buffer reset rejected")
	}
	obj.state = cmdInitial
	obj.ops = nil
	return nil
}

func (f *Fake) BeginCommandBuffer(cmd vk.CommandBuffer, flags vk.CommandBufferUsageFlags) error {
	f.event("begin_command_buffer")

	obj := f.commandBuffer(cmd, "begin command buffer")
	if obj == nil {
		return errors.New("fake: unknown command buffer")
	}
	if obj.pending {
		f.violate("begin command buffer: command buffer %d is pending", obj.seq)
	}
	if obj.state == cmdRecording {
		f.violate("begin command buffer: command buffer %d is already recording", obj.seq)
	}
	if f.fail("begin_command_buffer") {
		return errors.New("fake: begin rejected")
	}
	obj.state = cmdRecording
	obj.ops = nil
	return nil
}

func (f *Fake) EndCommandBuffer(cmd vk.CommandBuffer) error {
	f.event("end_command_buffer")

	obj := f.commandBuffer(cmd, "end command buffer")
	if obj == nil {
		return errors.New("fake: unknown command buffer")
	}
	if obj.state != cmdRecording {
		f.violate("end command buffer: command buffer %d is not recording", obj.seq)
	}
	if f.fail("end_command_buffer") {
		return errors.New("fake: end rejected")
	}
	obj.state = cmdExecutable
	return nil
}

func (f *Fake) record(cmd vk.CommandBuffer, c Command) {
	obj := f.commandBuffer(cmd, c.Op)
	if obj == nil {
		return
	}
	if obj.state != cmdRecording {
		f.violate("%s: command buffer %d is not recording", c.Op, obj.seq)
	}
	obj.ops = append(obj.ops, c)
}

func (f *Fake) CmdBeginRenderPass(cmd vk.CommandBuffer, info *vk.RenderPassBeginInfo) {
	f.lookup(unsafe.Pointer(info.RenderPass), KindRenderPass, "begin render pass")
	f.lookup(unsafe.Pointer(info.Framebuffer), KindFramebuffer, "begin render pass")
	f.record(cmd, Command{
		Op:      "begin_render_pass",
		Handles: []unsafe.Pointer{unsafe.Pointer(info.RenderPass), unsafe.Pointer(info.Framebuffer)},
		Args:    []uint64{uint64(info.ClearValueCount)},
	})
}

func (f *Fake) CmdEndRenderPass(cmd vk.CommandBuffer) {
	f.record(cmd, Command{Op: "end_render_pass"})
}

func (f *Fake) CmdBindPipeline(cmd vk.CommandBuffer, pipeline vk.Pipeline) {
	f.lookup(unsafe.Pointer(pipeline), KindPipeline, "bind pipeline")
	f.record(cmd, Command{
		Op:      "bind_pipeline",
		Handles: []unsafe.Pointer{unsafe.Pointer(pipeline)},
	})
}

func (f *Fake) CmdSetViewport(cmd vk.CommandBuffer, viewport vk.Viewport) {
	f.record(cmd, Command{
		Op:   "set_viewport",
		Args: []uint64{uint64(viewport.Width), uint64(viewport.Height)},
	})
}

func (f *Fake) CmdSetScissor(cmd vk.CommandBuffer, scissor vk.Rect2D) {
	f.record(cmd, Command{
		Op:   "set_scissor",
		Args: []uint64{uint64(scissor.Extent.Width), uint64(scissor.Extent.Height)},
	})
}

func (f *Fake) CmdBindVertexBuffers(
	cmd vk.CommandBuffer,
	firstBinding uint32,
	buffers []vk.Buffer,
	offsets []vk.DeviceSize,
) {
	c := Command{Op: "bind_vertex_buffers", Args: []uint64{uint64(firstBinding)}}
	for _, buffer := range buffers {
		f.lookup(unsafe.Pointer(buffer), KindBuffer, "bind vertex buffers")
		c.Handles = append(c.Handles, unsafe.Pointer(buffer))
	}
	if len(offsets) != len(buffers) {
		f.violate("bind vertex buffers: %d buffers, %d offsets", len(buffers), len(offsets))
	}
	f.record(cmd, c)
}

func (f *Fake) CmdPushConstants(
	cmd vk.CommandBuffer,
	layout vk.PipelineLayout,
	stages vk.ShaderStageFlags,
	offset uint32,
	data []byte,
) {
	f.lookup(unsafe.Pointer(layout), KindPipelineLayout, "push constants")
	f.record(cmd, Command{
		Op:      "push_constants",
		Handles: []unsafe.Pointer{unsafe.Pointer(layout)},
		Args:    []uint64{uint64(offset), uint64(len(data))},
	})
}

func (f *Fake) CmdDraw(
	cmd vk.CommandBuffer,
	vertexCount, instanceCount, firstVertex, firstInstance uint32,
) {
	f.record(cmd, Command{
		Op: "draw",
		Args: []uint64{
			uint64(vertexCount),
			uint64(instanceCount),
			uint64(firstVertex),
			uint64(firstInstance),
		},
	})
}

func (f *Fake) CmdCopyBuffer(cmd vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	f.lookup(unsafe.Pointer(src), KindBuffer, "copy buffer")
	f.lookup(unsafe.Pointer(dst), KindBuffer, "copy buffer")
	f.record(cmd, Command{
		Op:      "copy_buffer",
		Handles: []unsafe.Pointer{unsafe.Pointer(src), unsafe.Pointer(dst)},
		Args:    []uint64{uint64(size)},
	})
}

func (f *Fake) QueueSubmit(queue vk.Queue, submits []vk.SubmitInfo, fence vk.Fence) error {
	f.event("submit")

	f.lookup(unsafe.Pointer(queue), KindQueue, "queue submit")
	if f.fail("submit") {
		return errors.New("fake: submit rejected")
	}

	work := inflight{}

	for _, info := range submits {
		s := Submit{
			Queue:      unsafe.Pointer(queue),
			WaitStages: info.PWaitDstStageMask,
			Fence:      unsafe.Pointer(fence),
		}

		if len(info.PWaitDstStageMask) != len(info.PWaitSemaphores) {
			f.violate("queue submit: %d wait semaphores, %d wait stages",
				len(info.PWaitSemaphores), len(info.PWaitDstStageMask))
		}

		for _, sem := range info.PWaitSemaphores {
			f.Consume(unsafe.Pointer(sem), "queue submit")
			s.Waits = append(s.Waits, unsafe.Pointer(sem))
		}

		for _, cmd := range info.PCommandBuffers {
			obj := f.commandBuffer(cmd, "queue submit")
			if obj == nil {
				continue
			}
			if obj.state != cmdExecutable {
				f.violate("queue submit: command buffer %d is not executable", obj.seq)
			}
			if obj.pending {
				f.violate("queue submit: command buffer %d is already pending", obj.seq)
			}
			obj.pending = true
			s.Buffers = append(s.Buffers, unsafe.Pointer(cmd))
			s.Ops = append(s.Ops, obj.ops...)
			work.buffers = append(work.buffers, unsafe.Pointer(cmd))
		}

		for _, sem := range info.PSignalSemaphores {
			obj := f.lookup(unsafe.Pointer(sem), KindSemaphore, "queue submit")
			if obj != nil {
				if obj.signaled || obj.pending {
					f.violate("queue submit: semaphore %d signaled twice", obj.seq)
				}
				obj.pending = true
			}
			s.Signals = append(s.Signals, unsafe.Pointer(sem))
			work.signals = append(work.signals, unsafe.Pointer(sem))
		}

		f.submits = append(f.submits, s)
	}

	if fence != vk.NullFence {
		obj := f.lookup(unsafe.Pointer(fence), KindFence, "queue submit")
		if obj != nil {
			if obj.signaled || obj.pending {
				f.violate("queue submit: fence %d is not unsignaled", obj.seq)
			}
			obj.pending = true
		}
		work.fence = unsafe.Pointer(fence)

		if len(submits) == 0 {
			f.submits = append(f.submits, Submit{
				Queue: unsafe.Pointer(queue),
				Fence: unsafe.Pointer(fence),
			})
		}
	}

	if f.Stall {
		f.inflight = append(f.inflight, work)
		return nil
	}

	f.complete(work)
	return nil
}

func (f *Fake) complete(work inflight) {
	for _, handle := range work.buffers {
		obj := f.objects[handle]
		obj.pending = false

		for _, op := range obj.ops {
			if op.Op != "copy_buffer" {
				continue
			}
			src := f.objects[op.Handles[0]]
			dst := f.objects[op.Handles[1]]
			copy(dst.data[:op.Args[0]], src.data[:op.Args[0]])
		}
	}

	for _, handle := range work.signals {
		obj := f.objects[handle]
		obj.pending = false
		obj.signaled = !obj.awaited
		obj.awaited = false
	}

	if work.fence != nil {
		obj := f.objects[work.fence]
		obj.pending = false
		obj.signaled = true
	}
}

func (f *Fake) QueueWaitIdle(queue vk.Queue) error {
	f.event("queue_wait_idle")

	f.lookup(unsafe.Pointer(queue), KindQueue, "queue wait idle")
	if f.Stall && len(f.inflight) > 0 {
		return gpu.ErrDeviceLost
	}
	return nil
}

func (f *Fake) WaitIdle() error {
	f.event("device_wait_idle")

	if f.Stall && len(f.inflight) > 0 {
		return gpu.ErrDeviceLost
	}
	return nil
}

func (f *Fake) CreateBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
) (gpu.Allocation, error) {
	if f.fail(KindBuffer) {
		return gpu.Allocation{}, errors.New("fake: out of device memory")
	}
	if size == 0 {
		f.violate("create buffer: zero size")
	}

	bufHandle, buf := f.mint(KindBuffer)
	memHandle, _ := f.mint(KindMemory)

	buf.data = make([]byte, size)
	buf.memory = memHandle
	buf.hostVisible = properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0

	return gpu.Allocation{
		Buffer: vk.Buffer(bufHandle),
		Memory: vk.DeviceMemory(memHandle),
		Size:   size,
	}, nil
}

func (f *Fake) Map(a gpu.Allocation) (unsafe.Pointer, error) {
	obj := f.lookup(unsafe.Pointer(a.Buffer), KindBuffer, "map")
	if obj == nil {
		return nil, errors.New("fake: unknown buffer")
	}
	if f.fail("map") {
		return nil, errors.New("fake: memory map failed")
	}
	if !obj.hostVisible {
		f.violate("map: buffer %d is not host visible", obj.seq)
		return nil, errors.New("fake: memory is not host visible")
	}
	if obj.mapped {
		f.violate("map: buffer %d is already mapped", obj.seq)
	}
	obj.mapped = true

	if len(obj.data) == 0 {
		return nil, nil
	}
	return unsafe.Pointer(&obj.data[0]), nil
}

func (f *Fake) Unmap(a gpu.Allocation) {
	obj := f.lookup(unsafe.Pointer(a.Buffer), KindBuffer, "unmap")
	if obj == nil {
		return
	}
	if !obj.mapped {
		f.violate("unmap: buffer %d is not mapped", obj.seq)
	}
	obj.mapped = false
}

func (f *Fake) DestroyBuffer(a gpu.Allocation) {
	handle := unsafe.Pointer(a.Buffer)
	obj := f.destroy(handle, KindBuffer)
	if obj == nil {
		return
	}
	f.destroy(unsafe.Pointer(a.Memory), KindMemory)

	if obj.mapped {
		f.violate("destroy buffer: buffer %d is still mapped", obj.seq)
	}

	for _, cmd := range f.objects {
		if cmd.kind != KindCommandBuffer || !cmd.pending {
			continue
		}
		for _, op := range cmd.ops {
			for _, h := range op.Handles {
				if h == handle {
					f.violate("destroy buffer: buffer %d is used by pending command buffer %d",
						obj.seq, cmd.seq)
				}
			}
		}
	}
}
