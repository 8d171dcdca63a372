// Command vulkan-renderer draws a rotating OBJ model in a window using the
// render package: one frame in flight, swapchain recreation on resize and
// orderly teardown on exit or interrupt.
package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/xlab/closer"

	"vulkan-renderer/boilerplate"
	"vulkan-renderer/mesh"
	"vulkan-renderer/models"
	"vulkan-renderer/render"
	"vulkan-renderer/shaders"
)

func init() {
	// This is needed to arrange that main() runs on main thread.
	// See documentation for functions that are only allowed to be called
	// from the main thread.
	runtime.LockOSThread()

	flag.BoolVar(&args.debug, "debug", false, "Enable Vulkan validation layers and verbose logs")
	flag.IntVar(&args.width, "width", 1024, "Initial window width")
	flag.IntVar(&args.height, "height", 768, "Initial window height")
	flag.StringVar(&args.model, "model", "", "OBJ file to draw instead of the embedded cube")
	flag.StringVar(&args.shaders, "shaders", "shaders", "Directory with the compiled SPIR-V shaders")
	flag.DurationVar(&args.fenceTimeout, "fence-timeout", time.Second,
		"How long to wait for the previous frame before giving up")
	flag.BoolVar(&args.stagedUpload, "staged-upload", false,
		"Upload geometry into device local memory through a staging buffer")
	flag.BoolVar(&args.vsync, "vsync", true, "Present with FIFO instead of mailbox")
}

var args struct {
	debug        bool
	width        int
	height       int
	model        string
	shaders      string
	fenceTimeout time.Duration
	stagedUpload bool
	vsync        bool
}

const title = "Vulkan Renderer"

func main() {
	flag.Parse()

	app := &App{
		stopC: make(chan struct{}),
		doneC: make(chan struct{}),
	}
	closer.Bind(app.stop)

	if err := app.Run(); err != nil {
		closer.Fatalln(fatalMessage(err))
	}
	closer.Close()
}

// App owns the window, the Vulkan context and the renderer.
type App struct {
	window   *glfw.Window
	vulkan   *boilerplate.Context
	renderer *render.Renderer

	// stopC is closed when the program is asked to exit from outside of the
	// main loop. doneC is closed once Run has released everything.
	stopC    chan struct{}
	doneC    chan struct{}
	stopOnce sync.Once
}

// Run runs the whole program.
func (a *App) Run() error {
	defer close(a.doneC)

	if err := a.initWindow(); err != nil {
		return errors.Wrap(err, "initWindow")
	}
	defer a.cleanWindow()

	if err := a.initVulkan(); err != nil {
		return err
	}
	defer a.cleanVulkan()

	if err := a.loadScene(); err != nil {
		return errors.Wrap(err, "loading scene")
	}

	return a.mainLoop()
}

// stop asks the main loop to return and blocks until Run is done.
func (a *App) stop() {
	a.stopOnce.Do(func() {
		close(a.stopC)
	})
	<-a.doneC
}

func (a *App) initWindow() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw.Init")
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err := glfw.CreateWindow(args.width, args.height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "creating window")
	}
	a.window = window

	return nil
}

func (a *App) initVulkan() error {
	vulkan, err := boilerplate.New(a.window, boilerplate.Config{
		Title: title,
		Debug: args.debug,
		VSync: args.vsync,
	})
	if err != nil {
		return errors.Wrap(err, "initVulkan")
	}
	a.vulkan = vulkan

	prog, err := shaders.Load(args.shaders)
	if err != nil {
		return errors.Wrap(err, "loading shaders")
	}

	cfg := render.DefaultConfig()
	cfg.FenceTimeout = args.fenceTimeout
	cfg.StagedUpload = args.stagedUpload
	cfg.Debug = args.debug

	renderer, err := render.New(
		cfg,
		vulkan.Device(),
		vulkan.Allocator(),
		vulkan.Queues(),
		vulkan.Swapchain(),
		prog,
	)
	if err != nil {
		return err
	}
	a.renderer = renderer

	return nil
}

func (a *App) loadScene() error {
	var (
		vertices []mesh.Vertex
		name     = models.Cube
		err      error
	)

	if args.model != "" {
		name = args.model
		vertices, err = mesh.LoadOBJFile(args.model)
	} else {
		vertices, err = models.Load(models.Cube)
	}
	if err != nil {
		return err
	}

	meshName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if _, err := a.renderer.AddMesh(meshName, vertices); err != nil {
		return err
	}

	return a.renderer.AddRenderable(render.RenderObject{
		Mesh:      meshName,
		Material:  render.DefaultMaterial,
		Transform: mgl32.Ident4(),
	})
}

func (a *App) mainLoop() error {
	for !a.window.ShouldClose() {
		select {
		case <-a.stopC:
			return nil
		default:
		}

		glfw.PollEvents()
		if err := a.drawFrame(); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) drawFrame() error {
	scene := a.renderer.Scene()
	angle := float32(a.renderer.Frame()) / 100
	for i := range scene.Objects() {
		if err := scene.SetTransform(i, mgl32.HomogRotate3DY(angle)); err != nil {
			return err
		}
	}

	err := a.renderer.Render()
	if !errors.Is(err, render.ErrSurfaceOutOfDate) {
		return err
	}

	if err := a.renderer.Resize(a.vulkan.Recreate); err != nil {
		return err
	}
	a.renderer.SetCamera(render.DefaultCamera(a.vulkan.Swapchain().Extent()))

	return nil
}

func (a *App) cleanVulkan() {
	if a.renderer != nil {
		a.renderer.Destroy()
		a.renderer = nil
	}

	if a.vulkan != nil {
		a.vulkan.Destroy()
		a.vulkan = nil
	}
}

func (a *App) cleanWindow() {
	a.window.Destroy()
	glfw.Terminate()
}

func fatalMessage(err error) string {
	switch render.KindOf(err) {
	case render.KindInit:
		return fmt.Sprintf("ERROR: renderer setup failed: %s", err)
	case render.KindDevice:
		return fmt.Sprintf("ERROR: device failure: %s", err)
	case render.KindAllocator:
		return fmt.Sprintf("ERROR: could not upload geometry: %s", err)
	}

	return fmt.Sprintf("ERROR: %s", err)
}
