// Package pipeline builds the graphics pipeline meshes are drawn with.
package pipeline

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/mesh"
	"vulkan-renderer/shaders"
)

// MeshPushConstants is the push constant block of tri_mesh.vert.
type MeshPushConstants struct {
	Data         mgl32.Vec4
	RenderMatrix mgl32.Mat4
}

// PushConstantsSize is the size of the push constant range in bytes.
const PushConstantsSize = uint32(unsafe.Sizeof(MeshPushConstants{}))

// PushConstantStages are the stages which read the push constants.
const PushConstantStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit)

// Pipeline is a graphics pipeline together with its layout.
type Pipeline struct {
	Layout vk.PipelineLayout
	Handle vk.Pipeline
}

// Build creates a pipeline for drawing mesh.Vertex triangle lists into
// subpass 0 of renderPass. Viewport and scissor are dynamic so the pipeline
// survives swapchain resizes. The shader modules only live for the duration
// of the call.
func Build(dev gpu.Device, renderPass vk.RenderPass, prog shaders.Program) (*Pipeline, error) {
	vertexShaderModule, err := dev.CreateShaderModule(prog.Vertex)
	if err != nil {
		return nil, errors.Wrap(err, "creating vertex shader module")
	}
	defer dev.DestroyShaderModule(vertexShaderModule)

	fragmentShaderModule, err := dev.CreateShaderModule(prog.Fragment)
	if err != nil {
		return nil, errors.Wrap(err, "creating fragment shader module")
	}
	defer dev.DestroyShaderModule(fragmentShaderModule)

	shaderStages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertexShaderModule,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragmentShaderModule,
			PName:  "main\x00",
		},
	}

	bindingDescription := mesh.BindingDescription()
	attributeDescriptions := mesh.AttributeDescriptions()

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,

		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions:    []vk.VertexInputBindingDescription{bindingDescription},

		VertexAttributeDescriptionCount: uint32(len(attributeDescriptions)),
		PVertexAttributeDescriptions:    attributeDescriptions,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit |
				vk.ColorComponentGBit |
				vk.ColorComponentBBit |
				vk.ColorComponentABit,
		),
		BlendEnable: vk.False,
	}

	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{
			colorBlendAttachment,
		},
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
		StencilTestEnable:     vk.False,
	}

	pushConstantRange := vk.PushConstantRange{
		StageFlags: PushConstantStages,
		Offset:     0,
		Size:       PushConstantsSize,
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vk.PushConstantRange{pushConstantRange},
	}

	pipelineLayout, err := dev.CreatePipelineLayout(&pipelineLayoutInfo)
	if err != nil {
		return nil, err
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(shaderStages)),
		PStages:             shaderStages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              pipelineLayout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}

	graphicsPipeline, err := dev.CreateGraphicsPipeline(&pipelineInfo)
	if err != nil {
		dev.DestroyPipelineLayout(pipelineLayout)
		return nil, err
	}

	return &Pipeline{
		Layout: pipelineLayout,
		Handle: graphicsPipeline,
	}, nil
}

// Destroy destroys the pipeline and its layout.
func (p *Pipeline) Destroy(dev gpu.Device) {
	dev.DestroyPipeline(p.Handle)
	dev.DestroyPipelineLayout(p.Layout)
}
