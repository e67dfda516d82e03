// Command rhidemo drives a Device through its whole frame loop: it clears
// the present image every frame and, given SPIR-V shaders, draws a
// triangle. With -headless it runs on the software backend and needs no
// GPU or display.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/andewx/dieselrhi"
	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/driver/headless"
	"github.com/andewx/dieselrhi/driver/vulkan"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GLFW and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

var (
	configPath  = flag.String("config", "", "TOML configuration file")
	headlessRun = flag.Bool("headless", false, "use the software backend")
	frames      = flag.Int("frames", 0, "stop after this many frames (0 runs until the window closes)")
	vertPath    = flag.String("vert", "", "vertex shader SPIR-V")
	fragPath    = flag.String("frag", "", "fragment shader SPIR-V")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rhidemo: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := dieselrhi.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = dieselrhi.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	log, closer, err := dieselrhi.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if *headlessRun {
		if *frames <= 0 {
			*frames = 120
		}
		b := headless.New(headless.WithLogger(log), headless.WithSurface(cfg.Width, cfg.Height))
		defer b.Close()
		d := dieselrhi.NewDevice(b, cfg, dieselrhi.WithLogger(log))
		if err := d.Init(); err != nil {
			return err
		}
		defer d.ShutDown()
		return loop(d, log, func() bool { return true })
	}

	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	defer glfw.Terminate()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.AppName, nil, nil)
	if err != nil {
		return errors.Wrap(err, "glfw window")
	}
	defer window.Destroy()

	b, err := vulkan.New(window,
		vulkan.WithLogger(log),
		vulkan.WithAppName(cfg.AppName),
		vulkan.WithValidation(cfg.Validation),
		vulkan.WithBlockSizes(cfg.StagingBlockSize, cfg.DeviceBlockSize))
	if err != nil {
		return err
	}
	defer b.Close()

	d := dieselrhi.NewDevice(b, cfg, dieselrhi.WithLogger(log))
	if err := d.Init(); err != nil {
		return err
	}
	defer d.ShutDown()
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		d.OnResize(w, h)
	})
	return loop(d, log, func() bool {
		glfw.PollEvents()
		waitRestored(window.GetFramebufferSize, window.ShouldClose, glfw.WaitEvents)
		return !window.ShouldClose()
	})
}

// waitRestored blocks on window events while the framebuffer has no area,
// so a minimized window does not spin through skipped frames.
func waitRestored(size func() (int, int), closed func() bool, wait func()) {
	for !closed() {
		if w, h := size(); w > 0 && h > 0 {
			return
		}
		wait()
	}
}

type triangle struct {
	pipeline dieselrhi.PipelineHandle
	ok       bool
}

func loadTriangle(d *dieselrhi.Device) (triangle, error) {
	if *vertPath == "" || *fragPath == "" {
		return triangle{}, nil
	}
	vs, err := d.CreateShaderFromFile(driver.StageVertex, *vertPath, dieselrhi.Reflection{})
	if err != nil {
		return triangle{}, err
	}
	fs, err := d.CreateShaderFromFile(driver.StageFragment, *fragPath, dieselrhi.Reflection{})
	if err != nil {
		return triangle{}, err
	}
	p, err := d.CreateGraphicPipeline(dieselrhi.GraphicsPipelineDesc{
		Shaders:  []dieselrhi.ShaderHandle{vs, fs},
		Topology: driver.TopologyTriangleList,
	})
	d.DestroyShader(vs)
	d.DestroyShader(fs)
	if err != nil {
		return triangle{}, err
	}
	return triangle{pipeline: p, ok: true}, nil
}

func loop(d *dieselrhi.Device, log *slog.Logger, alive func() bool) error {
	tri, err := loadTriangle(d)
	if err != nil {
		return err
	}
	if tri.ok {
		defer d.DestroyPipeline(tri.pipeline)
	}

	last := time.Now()
	start := last
	for alive() {
		if *frames > 0 && d.Frame() >= uint64(*frames) {
			break
		}
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		if !d.BeginFrame(dt) {
			continue
		}
		c := d.BeginCommandList(driver.QueueGraphics)
		draw(d, c, tri, now.Sub(start).Seconds())
		d.SubmitCommandList(c)
		d.EndFrame(dt)
	}
	s := d.Stats()
	log.Info("demo finished", "frames", d.Frame(), "elapsed", time.Since(start),
		"buffers", s.Buffers, "images", s.Images, "pipelines", s.Pipelines)
	return nil
}

func draw(d *dieselrhi.Device, c *dieselrhi.CommandList, tri triangle, t float64) {
	img := d.GetPresentImage()
	ext := d.SwapchainExtent()
	c.PipelineBarriers(nil, []dieselrhi.ImageBarrier{{
		Barrier:      driver.Barrier{SyncAfter: driver.SyncColorOutput, AccessAfter: driver.AccessColorWrite},
		Image:        img,
		LayoutBefore: driver.LayoutUndefined,
		LayoutAfter:  driver.LayoutColorTarget,
	}}, nil)

	pulse := float32(t - float64(int(t)))
	c.BeginRendering(dieselrhi.RenderingInfo{Colors: []dieselrhi.ColorAttachment{{
		Image: img,
		Load:  driver.LoadClear,
		Store: driver.StoreStore,
		Clear: [4]float32{0.05, 0.05, 0.1 + 0.2*pulse, 1},
	}}})
	if tri.ok {
		c.BindPipeline(tri.pipeline)
		c.SetViewport(driver.Viewport{Width: float32(ext.Width), Height: float32(ext.Height), MaxDepth: 1})
		c.SetScissor(driver.Rect{Width: uint32(ext.Width), Height: uint32(ext.Height)})
		c.Draw(3, 1, 0, 0)
	}
	c.EndRendering()

	c.PipelineBarriers(nil, []dieselrhi.ImageBarrier{{
		Barrier:      driver.Barrier{SyncBefore: driver.SyncColorOutput, AccessBefore: driver.AccessColorWrite},
		Image:        img,
		LayoutBefore: driver.LayoutColorTarget,
		LayoutAfter:  driver.LayoutPresent,
	}}, nil)
}
