// Package render drives frames through a swapchain with one frame in flight
// and owns every GPU object whose lifetime depends on in-flight work: the
// render pass, the framebuffers, the command buffers, the synchronization
// objects, the pipelines and the vertex buffers.
//
// A Renderer is not safe for concurrent use. All calls must come from the
// goroutine which owns the device.
package render

import (
	"log"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/mesh"
	"vulkan-renderer/pipeline"
	"vulkan-renderer/queues"
	"vulkan-renderer/shaders"
)

// Renderer renders a Scene into a Surface.
type Renderer struct {
	cfg     Config
	dev     gpu.Device
	alloc   gpu.Allocator
	queues  queues.Set
	surface Surface

	layout   *Layout
	targets  Targets
	recorder *Recorder
	uploader *Uploader
	sync     *FrameSync

	scene *Scene
	stats *FrameStats

	view mgl32.Mat4
	proj mgl32.Mat4
}

// New creates everything needed for rendering into surface and builds the
// default material from prog. On failure every object created so far is
// destroyed and a KindInit error is returned.
func New(
	cfg Config,
	dev gpu.Device,
	alloc gpu.Allocator,
	qs queues.Set,
	surface Surface,
	prog shaders.Program,
) (*Renderer, error) {
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultConfig().FenceTimeout
	}

	r := &Renderer{
		cfg:     cfg,
		dev:     dev,
		alloc:   alloc,
		queues:  qs,
		surface: surface,
		scene:   NewScene(),
		stats:   newFrameStats(),
	}
	r.view, r.proj = DefaultCamera(surface.Extent())

	if err := r.init(prog); err != nil {
		r.Destroy()
		return nil, newError(KindInit, "new", err)
	}

	if cfg.Debug {
		extent := surface.Extent()
		log.Printf("renderer ready: %d targets, %dx%d, staged upload: %t",
			len(r.targets), extent.Width, extent.Height, cfg.StagedUpload)
	}

	return r, nil
}

func (r *Renderer) init(prog shaders.Program) error {
	layout, err := BuildLayout(r.dev, r.surface.ColorFormat(), r.surface.DepthFormat())
	if err != nil {
		return errors.Wrap(err, "render target layout")
	}
	r.layout = layout

	if err := r.layout.checkSurface(r.surface); err != nil {
		return err
	}

	targets, err := BuildTargets(
		r.dev,
		r.layout,
		r.surface.Views(),
		r.surface.DepthView(),
		r.surface.Extent(),
	)
	if err != nil {
		return errors.Wrap(err, "frame targets")
	}
	r.targets = targets

	recorder, err := NewRecorder(r.dev, r.queues)
	if err != nil {
		return errors.Wrap(err, "command recorder")
	}
	r.recorder = recorder
	r.uploader = NewUploader(r.alloc, r.recorder, r.cfg.StagedUpload)

	sync, err := newFrameSync(r.dev)
	if err != nil {
		return errors.Wrap(err, "sync objects")
	}
	r.sync = sync

	if _, err := r.AddMaterial(DefaultMaterial, prog); err != nil {
		return err
	}

	return nil
}

// DefaultCamera returns a view two units in front of the origin and a 70
// degree perspective projection for extent, with Y pointing up on screen.
func DefaultCamera(extent vk.Extent2D) (view, proj mgl32.Mat4) {
	view = mgl32.Translate3D(0, 0, -2)

	aspect := float32(1)
	if extent.Height != 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj = mgl32.Perspective(mgl32.DegToRad(70), aspect, 0.1, 200)
	proj.Set(1, 1, -proj.At(1, 1))

	return view, proj
}

// SetCamera sets the view and projection used for all render objects.
func (r *Renderer) SetCamera(view, proj mgl32.Mat4) {
	r.view = view
	r.proj = proj
}

// Render runs one frame: wait for the previous frame, acquire an image,
// record the scene, submit and present.
//
// An error matching ErrSurfaceOutOfDate means the caller has to recreate the
// swapchain and call Resize before rendering again. A frame whose commands
// could not be recorded is dropped and logged without an error. Every other
// error is fatal.
func (r *Renderer) Render() error {
	if r.sync == nil {
		return newError(KindDevice, "render", errors.New("renderer is destroyed"))
	}

	r.stats.beginFrame()
	defer r.logSlowFrame()

	stop := r.stats.track(StageWait)
	err := r.sync.wait(r.dev, r.cfg.FenceTimeout)
	stop()
	if err != nil {
		return newError(KindDevice, "wait for frame", err)
	}

	if err := r.dev.ResetFence(r.sync.Fence); err != nil {
		return newError(KindDevice, "reset fence", err)
	}

	// From here on every early return must leave the fence signaled again or
	// the next wait never finishes.

	stop = r.stats.track(StageAcquire)
	imageIndex, _, err := r.surface.AcquireNextImage(r.sync.PresentSemaphore, r.cfg.FenceTimeout)
	stop()
	if err != nil {
		if rerr := r.sync.rearm(r.dev, r.queues.Graphics.Handle, false); rerr != nil {
			return newError(KindDevice, "acquire", rerr)
		}
		if isOutOfDate(err) {
			return newError(KindSurfaceOutOfDate, "acquire", err)
		}
		return newError(KindDevice, "acquire", err)
	}

	if int(imageIndex) >= len(r.targets) {
		if rerr := r.sync.rearm(r.dev, r.queues.Graphics.Handle, true); rerr != nil {
			return newError(KindDevice, "acquire", rerr)
		}
		return newError(KindSurfaceOutOfDate, "acquire",
			errors.Errorf("image %d has no target, %d targets", imageIndex, len(r.targets)))
	}

	stop = r.stats.track(StageRecord)
	err = r.record(r.targets[imageIndex])
	stop()
	if err != nil {
		r.recorder.discard()
		if rerr := r.sync.rearm(r.dev, r.queues.Graphics.Handle, true); rerr != nil {
			return newError(KindDevice, "record", rerr)
		}
		r.stats.DroppedFrames++
		log.Printf("WARNING: dropping frame %d: %s", r.sync.Frame, err)
		return nil
	}

	stop = r.stats.track(StageSubmit)
	err = r.recorder.Submit(
		[]vk.Semaphore{r.sync.PresentSemaphore},
		[]vk.Semaphore{r.sync.RenderSemaphore},
		r.sync.Fence,
	)
	stop()
	if err != nil {
		return err
	}

	stop = r.stats.track(StagePresent)
	err = r.surface.Present(r.queues.Present, imageIndex, []vk.Semaphore{r.sync.RenderSemaphore})
	stop()

	r.sync.Frame++
	r.stats.Frames++

	if err != nil {
		if isOutOfDate(err) {
			return newError(KindSurfaceOutOfDate, "present", err)
		}
		return newError(KindDevice, "present", err)
	}

	return nil
}

func (r *Renderer) record(target Target) error {
	rec := r.recorder

	if err := rec.Begin(); err != nil {
		return err
	}

	var clearValues [2]vk.ClearValue
	clearValues[ColorAttachment].SetColor(r.cfg.ClearColor[:])
	clearValues[DepthAttachment].SetDepthStencil(1, 0)

	if err := rec.BeginRenderPass(target, clearValues[:]); err != nil {
		return err
	}

	viewProj := r.proj.Mul4(r.view)

	var bound *Material
	for _, obj := range r.scene.Objects() {
		h, _ := r.scene.Mesh(obj.Mesh)
		geometry := r.scene.Geometry(h)
		material, _ := r.scene.Material(obj.Material)

		if material != bound {
			if err := rec.BindPipeline(material.Pipeline); err != nil {
				return err
			}
			bound = material
		}

		err := rec.BindVertexBuffers(
			[]vk.Buffer{geometry.Allocation.Buffer},
			[]vk.DeviceSize{0},
		)
		if err != nil {
			return err
		}

		constants := pipeline.MeshPushConstants{
			RenderMatrix: viewProj.Mul4(obj.Transform),
		}
		if err := rec.PushConstants(&constants); err != nil {
			return err
		}

		if err := rec.Draw(geometry.VertexCount, 1, 0, 0); err != nil {
			return err
		}
		r.stats.Draws++
	}

	if err := rec.EndRenderPass(); err != nil {
		return err
	}

	return rec.End()
}

func (r *Renderer) logSlowFrame() {
	if r.cfg.SlowFrame <= 0 {
		return
	}
	if elapsed := r.stats.Elapsed(); elapsed > r.cfg.SlowFrame {
		log.Printf("slow frame %d: %s (%s)", r.stats.Frames, elapsed, r.stats.TopN(3))
	}
}

// RebuildTargets destroys the frame targets and builds them again from the
// surface's current views.
func (r *Renderer) RebuildTargets() error {
	return r.Resize(nil)
}

// Resize waits for the frame in flight, destroys the frame targets, calls
// recreate (if not nil) to recreate the swapchain and then builds new targets
// for it. The surface formats must not change.
func (r *Renderer) Resize(recreate func() error) error {
	if r.sync == nil {
		return newError(KindDevice, "resize", errors.New("renderer is destroyed"))
	}

	if err := r.sync.wait(r.dev, r.cfg.FenceTimeout); err != nil {
		return newError(KindDevice, "resize", err)
	}

	old := r.targets
	r.targets = nil
	old.Destroy(r.dev)

	if recreate != nil {
		if err := recreate(); err != nil {
			return newError(KindDevice, "resize", err)
		}
	}

	if err := r.layout.checkSurface(r.surface); err != nil {
		return newError(KindDevice, "resize", err)
	}

	targets, err := BuildTargets(
		r.dev,
		r.layout,
		r.surface.Views(),
		r.surface.DepthView(),
		r.surface.Extent(),
	)
	if err != nil {
		return err
	}
	r.targets = targets
	r.stats.Rebuilds++

	if r.cfg.Debug {
		extent := r.surface.Extent()
		log.Printf("rebuilt %d targets at %dx%d", len(targets), extent.Width, extent.Height)
	}

	return nil
}

// AddMesh uploads vertices and registers them under name.
func (r *Renderer) AddMesh(name string, vertices []mesh.Vertex) (MeshHandle, error) {
	if _, ok := r.scene.Mesh(name); ok {
		return 0, newError(KindAllocator, "add mesh", errors.Errorf("mesh %q already exists", name))
	}

	geometry, err := r.uploader.Upload(vertices)
	if err != nil {
		return 0, err
	}

	h, err := r.scene.addMesh(name, geometry)
	if err != nil {
		geometry.Release(r.alloc)
		return 0, newError(KindAllocator, "add mesh", err)
	}

	if r.cfg.Debug {
		log.Printf("mesh %q: %d vertices", name, geometry.VertexCount)
	}

	return h, nil
}

// RemoveMesh frees the named mesh once the frame in flight has completed. A
// mesh used by a render object cannot be removed.
func (r *Renderer) RemoveMesh(name string) error {
	if r.sync == nil {
		return newError(KindDevice, "remove mesh", errors.New("renderer is destroyed"))
	}

	if err := r.sync.wait(r.dev, r.cfg.FenceTimeout); err != nil {
		return newError(KindDevice, "remove mesh", err)
	}

	geometry, err := r.scene.removeMesh(name)
	if err != nil {
		return newError(KindAllocator, "remove mesh", err)
	}
	geometry.Release(r.alloc)

	return nil
}

// AddMaterial builds a pipeline from prog and registers it under name.
func (r *Renderer) AddMaterial(name string, prog shaders.Program) (*Material, error) {
	if _, ok := r.scene.Material(name); ok {
		return nil, errors.Errorf("material %q already exists", name)
	}

	p, err := pipeline.Build(r.dev, r.layout.RenderPass, prog)
	if err != nil {
		return nil, newError(KindDevice, "add material", errors.Wrap(err, name))
	}

	m := &Material{Name: name, Pipeline: p}
	if err := r.scene.addMaterial(m); err != nil {
		p.Destroy(r.dev)
		return nil, err
	}

	return m, nil
}

// AddRenderable appends obj to the objects drawn every frame. Its mesh and
// material must already be registered.
func (r *Renderer) AddRenderable(obj RenderObject) error {
	return errors.Wrap(r.scene.addObject(obj), "add renderable")
}

// Scene returns the renderer's scene.
func (r *Renderer) Scene() *Scene {
	return r.scene
}

// Stats returns the frame statistics.
func (r *Renderer) Stats() *FrameStats {
	return r.stats
}

// Frame returns the number of frames submitted so far.
func (r *Renderer) Frame() uint64 {
	if r.sync == nil {
		return 0
	}
	return r.sync.Frame
}

// Destroy waits for the frame in flight and destroys everything the
// renderer created, children before parents. The surface is left alone.
// Calling Destroy more than once is allowed.
func (r *Renderer) Destroy() {
	if r.sync != nil {
		if err := r.sync.wait(r.dev, r.cfg.FenceTimeout); err != nil {
			log.Printf("WARNING: waiting for the last frame: %s", err)
			if err := r.dev.WaitIdle(); err != nil {
				log.Printf("WARNING: waiting for device idle: %s", err)
			}
		}
	}

	for _, geometry := range r.scene.takeGeometry() {
		geometry.Release(r.alloc)
	}

	if sync := r.sync; sync != nil {
		r.sync = nil
		sync.destroy(r.dev)
	}

	for _, m := range r.scene.takeMaterials() {
		m.Pipeline.Destroy(r.dev)
	}

	if recorder := r.recorder; recorder != nil {
		r.recorder = nil
		r.uploader = nil
		recorder.Destroy()
	}

	targets := r.targets
	r.targets = nil
	targets.Destroy(r.dev)

	if layout := r.layout; layout != nil {
		r.layout = nil
		layout.Destroy(r.dev)
	}
}

func isOutOfDate(err error) bool {
	return errors.Is(err, gpu.ErrOutOfDate) || errors.Is(err, ErrSurfaceOutOfDate)
}
