package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const maxColors = 8

type attachmentKey struct {
	format vk.Format
	load   vk.AttachmentLoadOp
	store  vk.AttachmentStoreOp
}

// passKey identifies a single-subpass render pass. Attachments keep the
// layout they enter with: colors stay color targets and depth stays a
// depth target, so transitions remain with the caller's barriers.
type passKey struct {
	colors   [maxColors]attachmentKey
	ncolors  int
	depth    attachmentKey
	hasDepth bool
}

type framebufferKey struct {
	pass   vk.RenderPass
	views  [maxColors + 1]vk.ImageView
	nviews int
	width  uint32
	height uint32
}

// passCache is the private render pass and framebuffer cache behind
// BeginRendering and pipeline creation.
type passCache struct {
	d      *device
	passes map[passKey]vk.RenderPass
	fbs    map[framebufferKey]vk.Framebuffer
}

func newPassCache(d *device) *passCache {
	return &passCache{
		d:      d,
		passes: make(map[passKey]vk.RenderPass),
		fbs:    make(map[framebufferKey]vk.Framebuffer),
	}
}

// compatKey is the key pipelines are built against. Load and store ops do
// not affect render pass compatibility.
func compatKey(colors []driver.Format, depth driver.Format) (passKey, error) {
	var k passKey
	if len(colors) > maxColors {
		return k, errors.Wrapf(driver.ErrInvalid, "vulkan: %d color attachments", len(colors))
	}
	for i, f := range colors {
		k.colors[i] = attachmentKey{format: vkFormat(f), load: vk.AttachmentLoadOpDontCare, store: vk.AttachmentStoreOpDontCare}
	}
	k.ncolors = len(colors)
	if depth != driver.FormatUndefined {
		k.depth = attachmentKey{format: vkFormat(depth), load: vk.AttachmentLoadOpDontCare, store: vk.AttachmentStoreOpDontCare}
		k.hasDepth = true
	}
	return k, nil
}

func (c *passCache) pass(k passKey) (vk.RenderPass, error) {
	if rp, ok := c.passes[k]; ok {
		return rp, nil
	}
	atts := make([]vk.AttachmentDescription, 0, k.ncolors+1)
	refs := make([]vk.AttachmentReference, k.ncolors)
	for i := 0; i < k.ncolors; i++ {
		a := k.colors[i]
		atts = append(atts, vk.AttachmentDescription{
			Format:         a.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         a.load,
			StoreOp:        a.store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		refs[i] = vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(k.ncolors),
		PColorAttachments:    refs,
	}
	if k.hasDepth {
		stencilLoad, stencilStore := vk.AttachmentLoadOpDontCare, vk.AttachmentStoreOpDontCare
		if driverFormat(k.depth.format).HasStencil() {
			stencilLoad, stencilStore = k.depth.load, k.depth.store
		}
		atts = append(atts, vk.AttachmentDescription{
			Format:         k.depth.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         k.depth.load,
			StoreOp:        k.depth.store,
			StencilLoadOp:  stencilLoad,
			StencilStoreOp: stencilStore,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(k.ncolors),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	var rp vk.RenderPass
	ret := vk.CreateRenderPass(c.d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}, nil, &rp)
	if isError(ret) {
		return vk.NullRenderPass, newError(ret)
	}
	c.passes[k] = rp
	return rp, nil
}

func (c *passCache) framebuffer(k framebufferKey) (vk.Framebuffer, error) {
	if fb, ok := c.fbs[k]; ok {
		return fb, nil
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(c.d.handle, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      k.pass,
		AttachmentCount: uint32(k.nviews),
		PAttachments:    k.views[:k.nviews],
		Width:           k.width,
		Height:          k.height,
		Layers:          1,
	}, nil, &fb)
	if isError(ret) {
		return vk.NullFramebuffer, newError(ret)
	}
	c.fbs[k] = fb
	return fb, nil
}

// evict destroys every framebuffer that uses view. The caller guarantees
// the GPU no longer uses the view.
func (c *passCache) evict(view vk.ImageView) {
	for k, fb := range c.fbs {
		for _, v := range k.views[:k.nviews] {
			if v == view {
				vk.DestroyFramebuffer(c.d.handle, fb, nil)
				delete(c.fbs, k)
				break
			}
		}
	}
}

func (c *passCache) destroy() {
	for k, fb := range c.fbs {
		vk.DestroyFramebuffer(c.d.handle, fb, nil)
		delete(c.fbs, k)
	}
	for k, rp := range c.passes {
		vk.DestroyRenderPass(c.d.handle, rp, nil)
		delete(c.passes, k)
	}
}

// begin resolves info to a render pass and framebuffer and returns the
// matching begin info.
func (c *passCache) begin(info *driver.RenderingInfo) (vk.RenderPassBeginInfo, error) {
	var k passKey
	if len(info.Colors) > maxColors {
		return vk.RenderPassBeginInfo{}, errors.Wrapf(driver.ErrInvalid, "vulkan: %d color attachments", len(info.Colors))
	}
	var fk framebufferKey
	clears := make([]vk.ClearValue, 0, len(info.Colors)+1)
	var extent driver.ImageDesc
	for i, a := range info.Colors {
		img := a.Image.(*image)
		k.colors[i] = attachmentKey{format: vkFormat(img.desc.Format), load: loadOps[a.Load], store: vkStoreOp(a.Store)}
		fk.views[i] = img.view
		clears = append(clears, vk.NewClearValue(a.Clear[:]))
		extent = img.desc
	}
	k.ncolors = len(info.Colors)
	fk.nviews = k.ncolors
	if info.Depth != nil {
		img := info.Depth.Image.(*image)
		k.depth = attachmentKey{format: vkFormat(img.desc.Format), load: loadOps[info.Depth.Load], store: vkStoreOp(info.Depth.Store)}
		k.hasDepth = true
		fk.views[fk.nviews] = img.view
		fk.nviews++
		clears = append(clears, vk.NewClearDepthStencil(info.Depth.ClearDepth, info.Depth.ClearStencil))
		if k.ncolors == 0 {
			extent = img.desc
		}
	}

	rp, err := c.pass(k)
	if err != nil {
		return vk.RenderPassBeginInfo{}, err
	}
	fk.pass = rp
	fk.width, fk.height = uint32(extent.Width), uint32(extent.Height)
	fb, err := c.framebuffer(fk)
	if err != nil {
		return vk.RenderPassBeginInfo{}, err
	}

	area := info.Area
	if area.Width == 0 || area.Height == 0 {
		area = driver.Rect{Width: fk.width, Height: fk.height}
	}
	return vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, nil
}
