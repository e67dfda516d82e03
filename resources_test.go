package dieselrhi

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/andewx/dieselrhi/driver"
	"github.com/andewx/dieselrhi/driver/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}

func TestCreateBufferUploadsGPUData(t *testing.T) {
	d, b := newTestDevice(t)
	data := bytes.Repeat([]byte{0xab, 0xcd}, 32)
	h, err := d.CreateBuffer(BufferDesc{Size: 128, Usage: driver.BufferVertex}, data)
	require.NoError(t, err)

	got := headless.ReadBuffer(nativeOf(t, d, h))
	assert.Equal(t, data, got[:64])
	assert.Equal(t, make([]byte, 64), got[64:])
	assert.Nil(t, d.BufferMapped(h))

	desc, ok := d.BufferDesc(h)
	require.True(t, ok)
	assert.NotZero(t, desc.Usage&driver.BufferCopyDst)
	// the staging buffer is gone
	assert.Equal(t, 1, b.Stats().Live[headless.KindBuffer])
	assert.Empty(t, b.Violations())
}

func TestCreateBufferCPUMapped(t *testing.T) {
	d, _ := newTestDevice(t)
	h, err := d.CreateBuffer(BufferDesc{Size: 4, Usage: driver.BufferUniform, Domain: driver.DomainCPU}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	m := d.BufferMapped(h)
	assert.Equal(t, []byte{1, 2, 3, 4}, m)
	m[0] = 9
	assert.Equal(t, byte(9), headless.ReadBuffer(nativeOf(t, d, h))[0])
}

func TestCreateBufferInvalid(t *testing.T) {
	d, _ := newTestDevice(t)
	_, err := d.CreateBuffer(BufferDesc{}, nil)
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateBuffer(BufferDesc{Size: 2}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	assert.Zero(t, d.Stats().Buffers)
}

func TestCreateImageUpload(t *testing.T) {
	d, b := newTestDevice(t)
	texels := make([]byte, 4*4*4)
	for i := range texels {
		texels[i] = byte(i)
	}
	h, err := d.CreateImage(ImageDesc{Format: driver.FormatRGBA8Unorm, Width: 4, Height: 4, Usage: driver.ImageSampled}, texels)
	require.NoError(t, err)

	rec, ok := d.res.images.Get(h.h)
	require.True(t, ok)
	assert.Equal(t, driver.LayoutShaderRead, headless.ImageLayout(rec.native))
	assert.Equal(t, texels, headless.ReadImage(rec.native))
	assert.Equal(t, 1, rec.desc.Levels)
	assert.Equal(t, 1, rec.desc.Layers)

	_, owned := d.ImageLayout(h)
	assert.False(t, owned)
	assert.Empty(t, b.Violations())
}

func TestCreateImageInvalid(t *testing.T) {
	d, _ := newTestDevice(t)
	_, err := d.CreateImage(ImageDesc{Format: driver.FormatRGBA8Unorm, Width: 0, Height: 4}, nil)
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateImage(ImageDesc{Width: 4, Height: 4}, nil)
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateImage(ImageDesc{Format: driver.FormatRGBA8Unorm, Width: 4, Height: 4}, make([]byte, 15))
	assert.ErrorIs(t, err, driver.ErrInvalid)
}

func TestImageFreeDeferred(t *testing.T) {
	d, b := newTestDevice(t)
	h, err := d.CreateImage(ImageDesc{Format: driver.FormatR8Unorm, Width: 8, Height: 8, Usage: driver.ImageSampled}, nil)
	require.NoError(t, err)
	require.True(t, d.BeginFrame(dt))
	d.ImageFree(h)
	_, ok := d.ImageDesc(h)
	assert.False(t, ok)
	assert.Equal(t, 1, d.Stats().Garbage[0])
	c := d.BeginCommandList(driver.QueueGraphics)
	clearAndPresent(d, c)
	require.True(t, d.EndFrame(dt))
	require.True(t, frame(t, d, nil))
	require.True(t, frame(t, d, nil))
	assert.Equal(t, 0, d.Stats().Garbage[0])
	assert.Empty(t, b.Violations())
}

func TestShaderBytecodeAlignment(t *testing.T) {
	d, _ := newTestDevice(t)
	_, err := d.CreateShaderFromBytes(driver.StageVertex, spirv[:6], Reflection{})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateShaderFromBytes(driver.StageVertex, nil, Reflection{})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateShaderFromBytes(driver.StageAllGraphics, spirv, Reflection{})
	assert.ErrorIs(t, err, driver.ErrInvalid)

	h, err := d.CreateShaderFromBytes(driver.StageFragment, spirv, Reflection{Bindings: []ReflectedBinding{
		{Set: 0, Binding: 1, Kind: driver.DescSampledImage},
	}})
	require.NoError(t, err)
	refl, ok := d.ShaderReflection(h)
	require.True(t, ok)
	assert.Equal(t, driver.StageFragment, refl.Bindings[0].Stages)
}

func TestCreateShaderFromFile(t *testing.T) {
	d, _ := newTestDevice(t)
	path := filepath.Join(t.TempDir(), "tri.vert.spv")
	require.NoError(t, os.WriteFile(path, spirv, 0o644))
	h, err := d.CreateShaderFromFile(driver.StageVertex, path, Reflection{})
	require.NoError(t, err)
	assert.False(t, h.IsNil())

	_, err = d.CreateShaderFromFile(driver.StageVertex, filepath.Join(t.TempDir(), "missing.spv"), Reflection{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// scene is a textured triangle: a vertex shader reading a uniform buffer
// and push constants, a fragment shader sampling an image.
type scene struct {
	pipeline PipelineHandle
	vertices BufferHandle
	globals  DescriptorSetHandle
	material DescriptorSetHandle
}

func newScene(t *testing.T, d *Device) scene {
	t.Helper()
	vs, err := d.CreateShaderFromBytes(driver.StageVertex, spirv, Reflection{
		Bindings:      []ReflectedBinding{{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer}},
		PushConstants: []driver.PushConstantRange{{Offset: 0, Size: 64}},
	})
	require.NoError(t, err)
	fs, err := d.CreateShaderFromBytes(driver.StageFragment, spirv, Reflection{
		Bindings: []ReflectedBinding{{Set: 1, Binding: 0, Kind: driver.DescCombinedImageSampler}},
	})
	require.NoError(t, err)

	var s scene
	s.pipeline, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{
		Shaders:    []ShaderHandle{vs, fs},
		Bindings:   []driver.VertexBinding{{Binding: 0, Stride: 12}},
		Attributes: []driver.VertexAttribute{{Location: 0, Format: driver.FormatRGB32Float}},
	})
	require.NoError(t, err)

	s.vertices, err = d.CreateBuffer(BufferDesc{Size: 36, Usage: driver.BufferVertex}, make([]byte, 36))
	require.NoError(t, err)
	ubo, err := d.CreateBuffer(BufferDesc{Size: 64, Usage: driver.BufferUniform, Domain: driver.DomainCPU}, nil)
	require.NoError(t, err)
	tex, err := d.CreateImage(ImageDesc{Format: driver.FormatRGBA8Unorm, Width: 2, Height: 2, Usage: driver.ImageSampled}, make([]byte, 16))
	require.NoError(t, err)
	smp, err := d.CreateSampler(SamplerDesc{Min: driver.FilterLinear, Mag: driver.FilterLinear})
	require.NoError(t, err)

	s.globals, err = d.CreateDescriptorSet(s.pipeline, 0, []DescriptorWrite{
		{Binding: 0, Kind: driver.DescUniformBuffer, Buffer: ubo},
	})
	require.NoError(t, err)
	s.material, err = d.CreateDescriptorSet(s.pipeline, 1, []DescriptorWrite{
		{Binding: 0, Kind: driver.DescCombinedImageSampler, Image: tex, Sampler: smp},
	})
	require.NoError(t, err)
	return s
}

func (s scene) draw(d *Device, c *CommandList) {
	img := d.GetPresentImage()
	c.PipelineBarriers(nil, []ImageBarrier{toColorTarget(img)}, nil)
	c.BeginRendering(RenderingInfo{Colors: []ColorAttachment{{Image: img, Load: driver.LoadClear, Store: driver.StoreStore}}})
	c.BindPipeline(s.pipeline)
	c.SetViewport(driver.Viewport{Width: 800, Height: 600, MaxDepth: 1})
	c.SetScissor(driver.Rect{Width: 800, Height: 600})
	c.BindVertexBuffers(0, []BufferHandle{s.vertices}, nil)
	c.BindDescriptorSet(0, s.globals)
	c.BindDescriptorSet(1, s.material)
	c.PushConstants(driver.StageVertex, 0, make([]byte, 64))
	c.Draw(3, 1, 0, 0)
	c.EndRendering()
	c.PipelineBarriers(nil, []ImageBarrier{toPresent(img)}, nil)
}

func TestDrawTexturedTriangle(t *testing.T) {
	d, b := newTestDevice(t)
	s := newScene(t, d)
	for i := 0; i < 3; i++ {
		require.True(t, d.BeginFrame(dt))
		c := d.BeginCommandList(driver.QueueGraphics)
		s.draw(d, c)
		require.True(t, d.EndFrame(dt))
	}
	require.NoError(t, d.Driver().WaitIdle())
	assert.Equal(t, 3, b.Stats().Draws)
	assert.Empty(t, b.Violations())
}

func TestPipelinesShareLayout(t *testing.T) {
	d, _ := newTestDevice(t)
	s := newScene(t, d)
	vs, err := d.CreateShaderFromBytes(driver.StageVertex, spirv, Reflection{
		Bindings:      []ReflectedBinding{{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer}},
		PushConstants: []driver.PushConstantRange{{Offset: 0, Size: 64}},
	})
	require.NoError(t, err)
	fs, err := d.CreateShaderFromBytes(driver.StageFragment, spirv, Reflection{
		Bindings: []ReflectedBinding{{Set: 1, Binding: 0, Kind: driver.DescCombinedImageSampler}},
	})
	require.NoError(t, err)
	p, err := d.CreateGraphicPipeline(GraphicsPipelineDesc{
		Shaders:   []ShaderHandle{fs, vs},
		Topology:  driver.TopologyTriangleStrip,
		DepthTest: true,
	})
	require.NoError(t, err)
	assert.Same(t, d.PipelineLayout(s.pipeline), d.PipelineLayout(p))
	assert.Equal(t, 1, d.Stats().Layouts)

	// a set created for one pipeline binds under the other
	require.True(t, frame(t, d, func(c *CommandList) {
		c.BindPipeline(p)
		c.BindDescriptorSet(0, s.globals)
	}))
}

func TestCreateGraphicPipelineInvalid(t *testing.T) {
	d, _ := newTestDevice(t)
	vs, err := d.CreateShaderFromBytes(driver.StageVertex, spirv, Reflection{})
	require.NoError(t, err)
	fs, err := d.CreateShaderFromBytes(driver.StageFragment, spirv, Reflection{})
	require.NoError(t, err)
	cs, err := d.CreateShaderFromBytes(driver.StageCompute, spirv, Reflection{})
	require.NoError(t, err)

	_, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{Shaders: []ShaderHandle{fs}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{Shaders: []ShaderHandle{vs, vs}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{Shaders: []ShaderHandle{vs, cs}})
	assert.ErrorIs(t, err, driver.ErrInvalid)

	conflict, err := d.CreateShaderFromBytes(driver.StageFragment, spirv, Reflection{
		Bindings: []ReflectedBinding{{Set: 0, Binding: 0, Kind: driver.DescStorageBuffer}},
	})
	require.NoError(t, err)
	ubo, err := d.CreateShaderFromBytes(driver.StageVertex, spirv, Reflection{
		Bindings: []ReflectedBinding{{Set: 0, Binding: 0, Kind: driver.DescUniformBuffer}},
	})
	require.NoError(t, err)
	_, err = d.CreateGraphicPipeline(GraphicsPipelineDesc{Shaders: []ShaderHandle{ubo, conflict}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	assert.Zero(t, d.Stats().Pipelines)
}

func TestCreateDescriptorSetInvalid(t *testing.T) {
	d, _ := newTestDevice(t)
	s := newScene(t, d)
	buf, err := d.CreateBuffer(BufferDesc{Size: 16, Usage: driver.BufferUniform, Domain: driver.DomainCPU}, nil)
	require.NoError(t, err)

	_, err = d.CreateDescriptorSet(s.pipeline, 2, nil)
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateDescriptorSet(s.pipeline, 0, []DescriptorWrite{{Binding: 0, Kind: driver.DescStorageBuffer, Buffer: buf}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateDescriptorSet(s.pipeline, 0, []DescriptorWrite{{Binding: 3, Kind: driver.DescUniformBuffer, Buffer: buf}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
	_, err = d.CreateDescriptorSet(s.pipeline, 1, []DescriptorWrite{{Binding: 0, Kind: driver.DescCombinedImageSampler}})
	assert.ErrorIs(t, err, driver.ErrInvalid)

	d.DestroyBuffer(buf)
	_, err = d.CreateDescriptorSet(s.pipeline, 0, []DescriptorWrite{{Binding: 0, Kind: driver.DescUniformBuffer, Buffer: buf}})
	assert.ErrorIs(t, err, driver.ErrInvalid)
}

func TestBindDescriptorSetWrongIndexPanics(t *testing.T) {
	d, _ := newTestDevice(t)
	s := newScene(t, d)
	require.True(t, d.BeginFrame(dt))
	c := d.BeginCommandList(driver.QueueGraphics)
	assert.Panics(t, func() { c.BindDescriptorSet(0, s.globals) }, "no pipeline bound")
	c.BindPipeline(s.pipeline)
	assert.Panics(t, func() { c.BindDescriptorSet(1, s.globals) })
	clearAndPresent(d, c)
	require.True(t, d.EndFrame(dt))
}

func TestStaleHandles(t *testing.T) {
	d, _ := newTestDevice(t)
	h, err := d.CreateBuffer(BufferDesc{Size: 16, Domain: driver.DomainCPU}, nil)
	require.NoError(t, err)
	d.DestroyBuffer(h)
	assert.Panics(t, func() { d.DestroyBuffer(h) })
	assert.Panics(t, func() { d.BufferMapped(h) })

	// the slot is reused under a new generation
	h2, err := d.CreateBuffer(BufferDesc{Size: 32, Domain: driver.DomainCPU}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, h, h2)
	_, ok := d.BufferDesc(h)
	assert.False(t, ok)
	desc, ok := d.BufferDesc(h2)
	require.True(t, ok)
	assert.Equal(t, uint64(32), desc.Size)

	smp, err := d.CreateSampler(SamplerDesc{})
	require.NoError(t, err)
	d.DestroySampler(smp)
	assert.Panics(t, func() { d.DestroySampler(smp) })
}

func TestReleaseConfigSkipsAssertions(t *testing.T) {
	cfg := DefaultConfig()
	b := headless.New(headless.WithLogger(quietLogger()))
	d := NewDevice(b, cfg, WithFatalHandler(PanicOnFatal), WithLogger(quietLogger()))
	require.NoError(t, d.Init())
	defer b.Close()
	defer d.ShutDown()

	h, err := d.CreateBuffer(BufferDesc{Size: 16, Domain: driver.DomainCPU}, nil)
	require.NoError(t, err)
	d.DestroyBuffer(h)
	assert.NotPanics(t, func() { d.DestroyBuffer(h) })
	assert.Nil(t, d.BufferMapped(h))
}
