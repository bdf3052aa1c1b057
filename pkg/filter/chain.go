package filter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/frame"
)

// blitUploadWGSL and blitDownloadWGSL move pixel bytes between a CPU-facing
// storage buffer and a GPU texture. The wgpu package this chain is built on
// only exposes CopyBufferToBuffer on CommandEncoder - not CopyBufferToTexture
// or CopyTextureToBuffer - so every upload/readback at the chain's CPU
// boundary goes through one of these tiny compute passes instead.
const blitUploadWGSL = `
@group(0) @binding(0) var<storage, read> src: array<u32>;
@group(0) @binding(1) var dst: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(dst);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let packed = src[id.y * dims.x + id.x];
    let r = f32(packed & 0xFFu) / 255.0;
    let g = f32((packed >> 8u) & 0xFFu) / 255.0;
    let b = f32((packed >> 16u) & 0xFFu) / 255.0;
    let a = f32((packed >> 24u) & 0xFFu) / 255.0;
    textureStore(dst, vec2<i32>(id.xy), vec4<f32>(r, g, b, a));
}
`

const blitDownloadWGSL = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<u32>;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(src);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let px = textureLoad(src, vec2<i32>(id.xy), 0);
    let r = u32(clamp(px.r, 0.0, 1.0) * 255.0 + 0.5);
    let g = u32(clamp(px.g, 0.0, 1.0) * 255.0 + 0.5);
    let b = u32(clamp(px.b, 0.0, 1.0) * 255.0 + 0.5);
    let a = u32(clamp(px.a, 0.0, 1.0) * 255.0 + 0.5);
    dst[id.y * dims.x + id.x] = r | (g << 8u) | (b << 16u) | (a << 24u);
}
`

// compiledDescriptor is a descriptor after its one startup compile attempt.
// A compile failure is logged once and the descriptor is marked disabled;
// it is never fatal to channel startup.
type compiledDescriptor struct {
	desc     Descriptor
	pipeline *wgpu.ComputePipeline
	enabled  bool
	err      error
}

// Chain dispatches a sequence of compiled filter descriptors against
// ping-pong intermediate textures. It is backed by the same shared GPU
// device the compositor uses; in CPU mode (no GPU device available) the
// chain degrades to a documented no-op, warning once per affected binding.
type Chain struct {
	startedAt time.Time

	available bool
	device    *wgpu.Device
	encMu     *sync.Mutex

	bgl    *wgpu.BindGroupLayout
	layout *wgpu.PipelineLayout

	blitUploadBGL        *wgpu.BindGroupLayout
	blitUploadPipeline   *wgpu.ComputePipeline
	blitDownloadBGL      *wgpu.BindGroupLayout
	blitDownloadPipeline *wgpu.ComputePipeline

	descriptors map[string]*compiledDescriptor

	warnMu sync.Mutex
	warned map[string]bool

	texMu     sync.Mutex
	width     int
	height    int
	textures  [2]*wgpu.Texture
	views     [2]*wgpu.TextureView
	uniform   *wgpu.Buffer
	readback  *wgpu.Buffer // storage buffer the download blit writes into
	staging   *wgpu.Buffer // CopyDst|MapRead mirror Queue.ReadBuffer actually reads
	uploadBuf *wgpu.Buffer // CPU-written storage buffer, blitted into textures[0]
}

// NewChain compiles descs (typically Builtins() plus shader-loader-provided
// descriptors) against the shared GPU device. If gpuAvailable is false the
// returned chain is inert: Apply returns its input unchanged and logs a
// one-time warning per binding, per spec §4.5 CPU mode.
func NewChain(descs []Descriptor, gpuAvailable bool) (*Chain, error) {
	c := &Chain{
		startedAt:   time.Now(),
		descriptors: make(map[string]*compiledDescriptor, len(descs)),
		warned:      make(map[string]bool),
	}

	if !gpuAvailable {
		for _, d := range descs {
			c.descriptors[d.Name] = &compiledDescriptor{desc: d, enabled: false, err: fmt.Errorf("cpu mode: filters not applied")}
		}
		return c, nil
	}

	device, encMu, err := compositor.SharedWGPUDevice()
	if err != nil {
		return nil, fmt.Errorf("filter chain: shared device: %w", err)
	}
	c.available = true
	c.device = device
	c.encMu = encMu

	bgl, err := device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "filter-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm,
			}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("filter chain: bind group layout: %w", err)
	}
	c.bgl = bgl

	layout, err := device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{Label: "filter-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{bgl}})
	if err != nil {
		return nil, fmt.Errorf("filter chain: pipeline layout: %w", err)
	}
	c.layout = layout

	if err := c.compileBlitPipelines(); err != nil {
		return nil, err
	}

	for _, d := range descs {
		c.descriptors[d.Name] = c.compile(d)
	}
	return c, nil
}

func (c *Chain) compileBlitPipelines() error {
	uploadShader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "filter-blit-upload", WGSL: blitUploadWGSL})
	if err != nil {
		return fmt.Errorf("filter chain: compile blit-upload shader: %w", err)
	}
	defer uploadShader.Release()

	uploadBGL, err := c.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "filter-blit-upload-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("filter chain: blit-upload bind group layout: %w", err)
	}
	uploadLayout, err := c.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{Label: "filter-blit-upload-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{uploadBGL}})
	if err != nil {
		return fmt.Errorf("filter chain: blit-upload pipeline layout: %w", err)
	}
	defer uploadLayout.Release()
	uploadPipeline, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "filter-blit-upload", Layout: uploadLayout, Module: uploadShader, EntryPoint: "main",
	})
	if err != nil {
		return fmt.Errorf("filter chain: create blit-upload pipeline: %w", err)
	}

	downloadShader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "filter-blit-download", WGSL: blitDownloadWGSL})
	if err != nil {
		return fmt.Errorf("filter chain: compile blit-download shader: %w", err)
	}
	defer downloadShader.Release()

	downloadBGL, err := c.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "filter-blit-download-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("filter chain: blit-download bind group layout: %w", err)
	}
	downloadLayout, err := c.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{Label: "filter-blit-download-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{downloadBGL}})
	if err != nil {
		return fmt.Errorf("filter chain: blit-download pipeline layout: %w", err)
	}
	defer downloadLayout.Release()
	downloadPipeline, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "filter-blit-download", Layout: downloadLayout, Module: downloadShader, EntryPoint: "main",
	})
	if err != nil {
		return fmt.Errorf("filter chain: create blit-download pipeline: %w", err)
	}

	c.blitUploadBGL, c.blitUploadPipeline = uploadBGL, uploadPipeline
	c.blitDownloadBGL, c.blitDownloadPipeline = downloadBGL, downloadPipeline
	return nil
}

// compile attempts to build one descriptor's pipeline. Failures are logged
// once and the descriptor is marked disabled, never propagated.
func (c *Chain) compile(d Descriptor) *compiledDescriptor {
	shader, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "filter-" + d.Name, WGSL: d.WGSLBody})
	if err != nil {
		log.Error().Str("filter", d.Name).Err(err).Msg("filter shader failed to compile, disabling")
		return &compiledDescriptor{desc: d, enabled: false, err: err}
	}
	defer shader.Release()

	pipeline, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "filter-" + d.Name, Layout: c.layout, Module: shader, EntryPoint: "main",
	})
	if err != nil {
		log.Error().Str("filter", d.Name).Err(err).Msg("filter pipeline failed to compile, disabling")
		return &compiledDescriptor{desc: d, enabled: false, err: err}
	}
	return &compiledDescriptor{desc: d, pipeline: pipeline, enabled: true}
}

// Enabled reports whether a descriptor compiled successfully and can be
// dispatched. Unknown names report false.
func (c *Chain) Enabled(name string) bool {
	cd, ok := c.descriptors[name]
	return ok && cd.enabled
}

// Apply runs bindings, in declared order, against input and returns the
// result. Bindings referencing a disabled or unknown descriptor are
// silently skipped, per spec. In CPU mode (no GPU device) the input is
// returned unchanged and a warning is logged once per binding.
func (c *Chain) Apply(bindings []Binding, input frame.Frame, timeSeconds float64) (frame.Frame, error) {
	if len(bindings) == 0 {
		return input, nil
	}
	if !c.available {
		for _, b := range bindings {
			c.warnOnce(b.Descriptor, "cpu backend active: filter bindings are not applied")
		}
		return input, nil
	}

	c.ensureTextures(input.Width, input.Height)

	current := input
	for _, b := range bindings {
		cd, ok := c.descriptors[b.Descriptor]
		if !ok || !cd.enabled {
			continue
		}
		out, err := c.dispatchOne(cd, b, current, timeSeconds)
		if err != nil {
			log.Error().Str("filter", b.Descriptor).Err(err).Msg("filter dispatch failed, passing input through")
			continue
		}
		current = out
	}
	return current, nil
}

func (c *Chain) warnOnce(name, msg string) {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if c.warned[name] {
		return
	}
	c.warned[name] = true
	log.Warn().Str("filter", name).Msg(msg)
}

func (c *Chain) ensureTextures(width, height int) {
	c.texMu.Lock()
	defer c.texMu.Unlock()
	if c.width == width && c.height == height && c.textures[0] != nil {
		return
	}
	c.releaseTexturesLocked()

	for i := range c.textures {
		tex, _ := c.device.CreateTexture(&wgpu.TextureDescriptor{
			Label: fmt.Sprintf("filter-intermediate-%d", i),
			Size:  gputypes.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
			Format: gputypes.TextureFormatRGBA8Unorm,
			Usage: wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc,
			Dimension: gputypes.TextureDimension2D,
		})
		view, _ := c.device.CreateTextureView(tex, nil)
		c.textures[i], c.views[i] = tex, view
	}
	c.uniform, _ = c.device.CreateBuffer(&wgpu.BufferDescriptor{Label: "filter-uniform", Size: 80, Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst})
	c.readback, _ = c.device.CreateBuffer(&wgpu.BufferDescriptor{Label: "filter-readback", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc})
	c.staging, _ = c.device.CreateBuffer(&wgpu.BufferDescriptor{Label: "filter-staging", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead})
	c.uploadBuf, _ = c.device.CreateBuffer(&wgpu.BufferDescriptor{Label: "filter-upload", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst})

	c.width, c.height = width, height
}

func (c *Chain) releaseTexturesLocked() {
	for i := range c.textures {
		if c.views[i] != nil {
			c.views[i].Release()
			c.views[i] = nil
		}
		if c.textures[i] != nil {
			c.textures[i].Release()
			c.textures[i] = nil
		}
	}
	if c.uniform != nil {
		c.uniform.Release()
		c.uniform = nil
	}
	if c.readback != nil {
		c.readback.Release()
		c.readback = nil
	}
	if c.staging != nil {
		c.staging.Release()
		c.staging = nil
	}
	if c.uploadBuf != nil {
		c.uploadBuf.Release()
		c.uploadBuf = nil
	}
}

// dispatchOne uploads in into the first ping-pong slot (every call, even
// when in is the read-back result of the previous binding), dispatches cd's
// pipeline writing the other slot, and reads that back to a new
// frame.Frame. Ping-pong keeps exactly two intermediate textures per
// filter-chain call regardless of chain length.
func (c *Chain) dispatchOne(cd *compiledDescriptor, b Binding, in frame.Frame, timeSeconds float64) (frame.Frame, error) {
	c.encMu.Lock()
	defer c.encMu.Unlock()

	if err := c.uploadBytes(in.Pix); err != nil {
		return frame.Frame{}, err
	}
	if err := c.copyUploadToTexture(c.textures[0]); err != nil {
		return frame.Frame{}, err
	}

	uniform := packUniform(timeSeconds, c.width, c.height, b.Params)
	if err := c.device.Queue().WriteBuffer(c.uniform, 0, uniform); err != nil {
		return frame.Frame{}, fmt.Errorf("write filter uniform: %w", err)
	}

	bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "filter-bg-" + cd.desc.Name, Layout: c.bgl,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: c.views[0]},
			{Binding: 1, TextureView: c.views[1]},
			{Binding: 2, Buffer: c.uniform, Size: 80},
		},
	})
	if err != nil {
		return frame.Frame{}, fmt.Errorf("filter bind group: %w", err)
	}
	defer bg.Release()

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return frame.Frame{}, err
	}
	pass, err := encoder.BeginComputePass(nil)
	if err != nil {
		return frame.Frame{}, err
	}
	pass.SetPipeline(cd.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32((c.width+15)/16), uint32((c.height+15)/16), 1)
	if err := pass.End(); err != nil {
		return frame.Frame{}, err
	}
	cmdBuf, err := encoder.Finish()
	if err != nil {
		return frame.Frame{}, err
	}
	if err := c.device.Queue().Submit(cmdBuf); err != nil {
		return frame.Frame{}, err
	}

	if err := c.blitTextureToBuffer(c.views[1]); err != nil {
		return frame.Frame{}, fmt.Errorf("blit filter output: %w", err)
	}

	out := frame.NewFrame(c.width, c.height, in.Format)
	if err := c.device.Queue().ReadBuffer(c.staging, 0, out.Pix); err != nil {
		return frame.Frame{}, fmt.Errorf("read filter output: %w", err)
	}
	return out, nil
}

func (c *Chain) uploadBytes(pix []byte) error {
	return c.device.Queue().WriteBuffer(c.uploadBuf, 0, pix)
}

// copyUploadToTexture dispatches the upload blit shader, moving the bytes
// just written into uploadBuf into dst.
func (c *Chain) copyUploadToTexture(dst *wgpu.Texture) error {
	view, err := c.device.CreateTextureView(dst, nil)
	if err != nil {
		return err
	}
	defer view.Release()

	bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "filter-blit-upload-bg", Layout: c.blitUploadBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.uploadBuf, Size: uint64(c.width * c.height * 4)},
			{Binding: 1, TextureView: view},
		},
	})
	if err != nil {
		return fmt.Errorf("blit-upload bind group: %w", err)
	}
	defer bg.Release()

	return c.dispatchBlit(c.blitUploadPipeline, bg)
}

// blitTextureToBuffer dispatches the download blit shader to pack src's
// pixels into readback, then hops them to the CPU-mappable staging buffer
// with the one public buffer-to-buffer copy this API exposes.
func (c *Chain) blitTextureToBuffer(src *wgpu.TextureView) error {
	size := uint64(c.width * c.height * 4)
	bg, err := c.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "filter-blit-download-bg", Layout: c.blitDownloadBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src},
			{Binding: 1, Buffer: c.readback, Size: size},
		},
	})
	if err != nil {
		return fmt.Errorf("blit-download bind group: %w", err)
	}
	defer bg.Release()

	if err := c.dispatchBlit(c.blitDownloadPipeline, bg); err != nil {
		return err
	}

	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(c.readback, 0, c.staging, 0, size)
	cmdBuf, err := encoder.Finish()
	if err != nil {
		return err
	}
	return c.device.Queue().Submit(cmdBuf)
}

func (c *Chain) dispatchBlit(pipeline *wgpu.ComputePipeline, bg *wgpu.BindGroup) error {
	encoder, err := c.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass, err := encoder.BeginComputePass(nil)
	if err != nil {
		return err
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(uint32((c.width+15)/16), uint32((c.height+15)/16), 1)
	if err := pass.End(); err != nil {
		return err
	}
	cmdBuf, err := encoder.Finish()
	if err != nil {
		return err
	}
	return c.device.Queue().Submit(cmdBuf)
}

// packUniform lays out {time, width, height, param_count, params[0..16)}
// exactly as the WGSL FilterParams struct expects.
func packUniform(timeSeconds float64, width, height int, params []float32) []byte {
	buf := make([]byte, 80) // 4 scalars + 4 vec4<f32> = 20 floats = 80 bytes
	putF32(buf[0:4], float32(timeSeconds))
	putF32(buf[4:8], float32(width))
	putF32(buf[8:12], float32(height))
	putF32(buf[12:16], float32(len(params)))
	for i := 0; i < MaxParams; i++ {
		var v float32
		if i < len(params) {
			v = params[i]
		}
		putF32(buf[16+i*4:20+i*4], v)
	}
	return buf
}

func putF32(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}
