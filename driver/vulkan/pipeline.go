package vulkan

import (
	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

type pipeline struct {
	d      *device
	handle vk.Pipeline
}

// NewGraphicsPipeline builds the pipeline against a render pass compatible
// with every BeginRendering scope that uses the same attachment formats.
// Viewport and scissor are dynamic.
func (d *device) NewGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	if desc.Layout == nil || len(desc.Shaders) == 0 {
		return nil, errors.Wrap(driver.ErrInvalid, "vulkan: pipeline needs a layout and shaders")
	}
	key, err := compatKey(desc.ColorFormats, desc.DepthFormat)
	if err != nil {
		return nil, err
	}
	rp, err := d.passes.pass(key)
	if err != nil {
		return nil, errors.Wrap(err, "vulkan: compatible render pass")
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Shaders))
	for i, s := range desc.Shaders {
		sh := s.(*shader)
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(vkShaderStages(sh.stage)),
			Module: sh.handle,
			PName:  safeString("main"),
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.Bindings))
	for i, b := range desc.Bindings {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: rate}
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vkFormat(a.Format),
			Offset:   a.Offset,
		}
	}

	front := vk.FrontFaceClockwise
	if desc.CCW {
		front = vk.FrontFaceCounterClockwise
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i := range blends {
		blends[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable: vkBool(desc.Blend),
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		}
		if desc.Blend {
			blends[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blends[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].ColorBlendOp = vk.BlendOpAdd
			blends[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blends[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blends[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}

	keep := vk.StencilOpState{FailOp: vk.StencilOpKeep, PassOp: vk.StencilOpKeep, CompareOp: vk.CompareOpAlways}
	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attrs)),
			PVertexAttributeDescriptions:    attrs,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: topologies[desc.Topology],
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vkCull(desc.Cull),
			FrontFace:   front,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vkBool(desc.DepthTest),
			DepthWriteEnable: vkBool(desc.DepthWrite),
			DepthCompareOp:   compareOps[desc.DepthOp],
			Front:            keep,
			Back:             keep,
			MaxDepthBounds:   1.0,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: uint32(len(blends)),
			PAttachments:    blends,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		},
		Layout:     desc.Layout.(*pipelineLayout).handle,
		RenderPass: rp,
	}

	pipelines := []vk.Pipeline{vk.NullPipeline}
	ret := vk.CreateGraphicsPipelines(d.handle, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if isError(ret) {
		return nil, newError(ret)
	}
	return &pipeline{d: d, handle: pipelines[0]}, nil
}

func (p *pipeline) Destroy() {
	vk.DestroyPipeline(p.d.handle, p.handle, nil)
	p.handle = vk.NullPipeline
}
