package compositor

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	_ "github.com/gogpu/wgpu/hal/allbackends" // register Vulkan/DX12/Metal/GLES backends
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/frame"
)

// clearShaderWGSL fills a storage texture with opaque black.
const clearShaderWGSL = `
@group(0) @binding(0) var canvas: texture_storage_2d<rgba8unorm, write>;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(canvas);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    textureStore(canvas, vec2<i32>(id.xy), vec4<f32>(0.0, 0.0, 0.0, 1.0));
}
`

// blendShaderWGSL implements the reference "source over" law on the GPU,
// reading the previous canvas and a layer texture and writing the next
// canvas (ping-pong to avoid read/write aliasing on the same texture).
const blendShaderWGSL = `
struct Params {
    opacity: f32,
    width:   f32,
    height:  f32,
    _pad:    f32,
}

@group(0) @binding(0) var prevCanvas: texture_2d<f32>;
@group(0) @binding(1) var layerTex: texture_2d<f32>;
@group(0) @binding(2) var nextCanvas: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (f32(id.x) >= params.width || f32(id.y) >= params.height) {
        return;
    }
    let pos = vec2<i32>(id.xy);
    let canvasPx = textureLoad(prevCanvas, pos, 0);

    let layerDims = textureDimensions(layerTex);
    var layerPx = vec4<f32>(0.0, 0.0, 0.0, 0.0);
    if (id.x < layerDims.x && id.y < layerDims.y) {
        layerPx = textureLoad(layerTex, pos, 0);
    }

    let sa = layerPx.a * params.opacity;
    var outPx = canvasPx;
    if (sa <= 0.0) {
        outPx = canvasPx;
    } else if (sa >= 1.0) {
        outPx = vec4<f32>(layerPx.rgb, 1.0);
    } else {
        let outA = sa + canvasPx.a * (1.0 - sa);
        if (outA <= 0.0) {
            outPx = vec4<f32>(0.0, 0.0, 0.0, 0.0);
        } else {
            let rgb = (layerPx.rgb * sa + canvasPx.rgb * canvasPx.a * (1.0 - sa)) / outA;
            outPx = vec4<f32>(rgb, outA);
        }
    }
    textureStore(nextCanvas, pos, outPx);
}
`

// blitUploadWGSL moves a CPU-written storage buffer of packed RGBA8 pixels
// (low byte red, high byte alpha, matching the order Queue.WriteBuffer
// just delivered) into a sampled/storage texture. This, plus
// blitDownloadWGSL, is the only way this package moves pixels between CPU
// memory and a GPU texture: the wgpu package this is built on only exposes
// CopyBufferToBuffer on CommandEncoder, not CopyBufferToTexture or
// CopyTextureToBuffer, so every upload/readback goes through a tiny compute
// pass instead of a texture-copy command.
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

// blitDownloadWGSL is the inverse of blitUploadWGSL: it reads a texture and
// packs it into a storage buffer the CPU can then Queue.ReadBuffer out.
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

// device is the process-wide shared GPU device. Per spec §5 the GPU device
// is shared across channels; encMu guards command encoding so each
// channel's (short) encode/submit is serialized against the others.
type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	dev      *wgpu.Device

	encMu sync.Mutex

	clearPipeline *wgpu.ComputePipeline
	clearBGL      *wgpu.BindGroupLayout
	blendPipeline *wgpu.ComputePipeline
	blendBGL      *wgpu.BindGroupLayout

	blitUploadPipeline   *wgpu.ComputePipeline
	blitUploadBGL        *wgpu.BindGroupLayout
	blitDownloadPipeline *wgpu.ComputePipeline
	blitDownloadBGL      *wgpu.BindGroupLayout
}

var (
	sharedDevice     *device
	sharedDeviceOnce sync.Once
	sharedDeviceErr  error
)

func getSharedDevice() (*device, error) {
	sharedDeviceOnce.Do(func() {
		sharedDevice, sharedDeviceErr = newDevice()
	})
	return sharedDevice, sharedDeviceErr
}

// SharedWGPUDevice exposes the process-wide GPU device and its encoding
// mutex to other packages (the filter chain) that need to compile their own
// pipelines against the same device compositor uses. Every channel shares
// one device per spec §5; callers must hold the returned mutex around
// command encoding so channels' dispatches serialize correctly.
func SharedWGPUDevice() (*wgpu.Device, *sync.Mutex, error) {
	d, err := getSharedDevice()
	if err != nil {
		return nil, nil, err
	}
	return d.dev, &d.encMu, nil
}

func newDevice() (*device, error) {
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	d := &device{instance: instance, adapter: adapter, dev: dev}
	if err := d.compilePipelines(); err != nil {
		d.release()
		return nil, err
	}
	log.Info().Str("adapter", adapter.Info().Name).Msg("gpu compositor device initialized")
	return d, nil
}

func (d *device) compilePipelines() error {
	clearShader, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "compositor-clear", WGSL: clearShaderWGSL})
	if err != nil {
		return fmt.Errorf("compile clear shader: %w", err)
	}
	defer clearShader.Release()

	clearBGL, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "compositor-clear-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("clear bind group layout: %w", err)
	}

	clearLayout, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "compositor-clear-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{clearBGL},
	})
	if err != nil {
		return fmt.Errorf("clear pipeline layout: %w", err)
	}
	defer clearLayout.Release()

	clearPipeline, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "compositor-clear", Layout: clearLayout, Module: clearShader, EntryPoint: "main",
	})
	if err != nil {
		return fmt.Errorf("create clear pipeline: %w", err)
	}

	blendShader, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "compositor-blend", WGSL: blendShaderWGSL})
	if err != nil {
		return fmt.Errorf("compile blend shader: %w", err)
	}
	defer blendShader.Release()

	blendBGL, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "compositor-blend-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm,
			}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return fmt.Errorf("blend bind group layout: %w", err)
	}

	blendLayout, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "compositor-blend-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{blendBGL},
	})
	if err != nil {
		return fmt.Errorf("blend pipeline layout: %w", err)
	}
	defer blendLayout.Release()

	blendPipeline, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "compositor-blend", Layout: blendLayout, Module: blendShader, EntryPoint: "main",
	})
	if err != nil {
		return fmt.Errorf("create blend pipeline: %w", err)
	}

	blitUploadPipeline, blitUploadBGL, err := d.compileBlitUpload()
	if err != nil {
		return err
	}
	blitDownloadPipeline, blitDownloadBGL, err := d.compileBlitDownload()
	if err != nil {
		return err
	}

	d.clearPipeline, d.clearBGL = clearPipeline, clearBGL
	d.blendPipeline, d.blendBGL = blendPipeline, blendBGL
	d.blitUploadPipeline, d.blitUploadBGL = blitUploadPipeline, blitUploadBGL
	d.blitDownloadPipeline, d.blitDownloadBGL = blitDownloadPipeline, blitDownloadBGL
	return nil
}

func (d *device) compileBlitUpload() (*wgpu.ComputePipeline, *wgpu.BindGroupLayout, error) {
	shader, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "compositor-blit-upload", WGSL: blitUploadWGSL})
	if err != nil {
		return nil, nil, fmt.Errorf("compile blit-upload shader: %w", err)
	}
	defer shader.Release()

	bgl, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "compositor-blit-upload-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm,
			}},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("blit-upload bind group layout: %w", err)
	}

	layout, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "compositor-blit-upload-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("blit-upload pipeline layout: %w", err)
	}
	defer layout.Release()

	pipeline, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "compositor-blit-upload", Layout: layout, Module: shader, EntryPoint: "main",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create blit-upload pipeline: %w", err)
	}
	return pipeline, bgl, nil
}

func (d *device) compileBlitDownload() (*wgpu.ComputePipeline, *wgpu.BindGroupLayout, error) {
	shader, err := d.dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: "compositor-blit-download", WGSL: blitDownloadWGSL})
	if err != nil {
		return nil, nil, fmt.Errorf("compile blit-download shader: %w", err)
	}
	defer shader.Release()

	bgl, err := d.dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "compositor-blit-download-bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Texture: &gputypes.TextureBindingLayout{SampleType: gputypes.TextureSampleTypeFloat}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("blit-download bind group layout: %w", err)
	}

	layout, err := d.dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label: "compositor-blit-download-pl", BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("blit-download pipeline layout: %w", err)
	}
	defer layout.Release()

	pipeline, err := d.dev.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "compositor-blit-download", Layout: layout, Module: shader, EntryPoint: "main",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create blit-download pipeline: %w", err)
	}
	return pipeline, bgl, nil
}

func (d *device) release() {
	if d.blitDownloadPipeline != nil {
		d.blitDownloadPipeline.Release()
	}
	if d.blitDownloadBGL != nil {
		d.blitDownloadBGL.Release()
	}
	if d.blitUploadPipeline != nil {
		d.blitUploadPipeline.Release()
	}
	if d.blitUploadBGL != nil {
		d.blitUploadBGL.Release()
	}
	if d.blendPipeline != nil {
		d.blendPipeline.Release()
	}
	if d.blendBGL != nil {
		d.blendBGL.Release()
	}
	if d.clearPipeline != nil {
		d.clearPipeline.Release()
	}
	if d.clearBGL != nil {
		d.clearBGL.Release()
	}
	if d.dev != nil {
		d.dev.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

func workgroupCount(dim int) uint32 {
	return uint32((dim + 15) / 16)
}

// GPUBackend dispatches the clear/blend compute pipelines against a device
// shared by every channel; only command encoding is serialized per-device,
// so independent channels' dispatches interleave cheaply.
type GPUBackend struct {
	dev *device
}

// NewGPUBackend attempts to initialize (or attach to) the shared GPU
// device. On any failure it returns *ErrBackendUnavailable so callers fall
// back to the CPU backend, per spec §4.3 selection policy.
func NewGPUBackend() (*GPUBackend, error) {
	d, err := getSharedDevice()
	if err != nil {
		return nil, &ErrBackendUnavailable{Reason: err.Error()}
	}
	return &GPUBackend{dev: d}, nil
}

func (g *GPUBackend) Name() string { return "gpu" }
func (g *GPUBackend) Close()       {}

// gpuCanvas holds a ping-pong pair of storage-writable canvas textures, the
// layer-upload texture and its feeding storage buffer, and the buffers used
// for the once-per-period readback. The canvas's own pixel format is
// declared BGRA8 (frame.FormatBGRA8), matching the CPU backend, so the two
// backends agree byte-for-byte on what comes out of Snapshot (spec
// invariant #3); internally, between upload and readback, pixels are kept
// in plain R,G,B,A order because that's what the blit shaders pack into
// their storage buffers.
type gpuCanvas struct {
	backend *GPUBackend
	width   int
	height  int

	textures [2]*wgpu.Texture
	views    [2]*wgpu.TextureView
	current  int // index into textures/views holding the latest composited result

	uniformBuf *wgpu.Buffer

	layerTex      *wgpu.Texture
	layerView     *wgpu.TextureView
	layerBuf      *wgpu.Buffer // CPU-written storage buffer, blitted into layerTex
	uploadScratch []byte       // reusable CPU-side staging for uploadLayer, canvas-sized

	readbackBuf *wgpu.Buffer // storage buffer the download blit writes into
	stagingBuf  *wgpu.Buffer // CopyDst|MapRead mirror Queue.ReadBuffer actually reads
}

func (c *gpuCanvas) Release() {
	for i := range c.textures {
		if c.views[i] != nil {
			c.views[i].Release()
		}
		if c.textures[i] != nil {
			c.textures[i].Release()
		}
	}
	if c.uniformBuf != nil {
		c.uniformBuf.Release()
	}
	if c.layerView != nil {
		c.layerView.Release()
	}
	if c.layerTex != nil {
		c.layerTex.Release()
	}
	if c.layerBuf != nil {
		c.layerBuf.Release()
	}
	if c.readbackBuf != nil {
		c.readbackBuf.Release()
	}
	if c.stagingBuf != nil {
		c.stagingBuf.Release()
	}
}

// NewCanvas allocates the ping-pong texture pair, the layer upload texture
// and its feeding buffer, and the readback buffer pair. Resized only on a
// resolution change, never per frame.
func (g *GPUBackend) NewCanvas(width, height int) (Canvas, error) {
	c := &gpuCanvas{backend: g, width: width, height: height}

	for i := range c.textures {
		tex, err := g.dev.dev.CreateTexture(&wgpu.TextureDescriptor{
			Label:     fmt.Sprintf("canvas-%d", i),
			Size:      gputypes.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
			Format:    gputypes.TextureFormatRGBA8Unorm,
			Usage:     wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
			Dimension: gputypes.TextureDimension2D,
		})
		if err != nil {
			c.Release()
			return nil, fmt.Errorf("create canvas texture: %w", err)
		}
		view, err := g.dev.dev.CreateTextureView(tex, nil)
		if err != nil {
			c.Release()
			return nil, fmt.Errorf("create canvas view: %w", err)
		}
		c.textures[i], c.views[i] = tex, view
	}

	layerTex, err := g.dev.dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:     "layer-upload",
		Size:      gputypes.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
		Dimension: gputypes.TextureDimension2D,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create layer texture: %w", err)
	}
	layerView, err := g.dev.dev.CreateTextureView(layerTex, nil)
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create layer view: %w", err)
	}
	c.layerTex, c.layerView = layerTex, layerView
	c.uploadScratch = make([]byte, width*height*4)

	layerBuf, err := g.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "layer-upload-buf", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create layer upload buffer: %w", err)
	}
	c.layerBuf = layerBuf

	uniformBuf, err := g.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "blend-params", Size: 16, Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create uniform buffer: %w", err)
	}
	c.uniformBuf = uniformBuf

	readbackBuf, err := g.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "canvas-readback-buf", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}
	c.readbackBuf = readbackBuf

	stagingBuf, err := g.dev.dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "canvas-staging", Size: uint64(width * height * 4), Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	c.stagingBuf = stagingBuf

	return c, nil
}

// Clear dispatches the clear pipeline against the current canvas texture.
func (g *GPUBackend) Clear(canvas Canvas) {
	c := canvas.(*gpuCanvas)
	g.dev.encMu.Lock()
	defer g.dev.encMu.Unlock()

	bg, err := g.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "clear-bg", Layout: g.dev.clearBGL,
		Entries: []wgpu.BindGroupEntry{{Binding: 0, TextureView: c.views[c.current]}},
	})
	if err != nil {
		log.Error().Err(err).Msg("gpu compositor: clear bind group")
		return
	}
	defer bg.Release()

	if err := g.dispatch(g.dev.clearPipeline, bg, c.width, c.height); err != nil {
		log.Error().Err(err).Msg("gpu compositor: clear dispatch")
	}
}

// Blend uploads layer into the layer texture (converting its channel order
// to match the canvas's, if needed), then dispatches the blend pipeline
// reading the current canvas and writing the other half of the ping-pong
// pair, which becomes current afterward.
func (g *GPUBackend) Blend(canvas Canvas, layer frame.Frame, opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("compositor: opacity %v out of range [0,1]", opacity)
	}
	c := canvas.(*gpuCanvas)
	g.dev.encMu.Lock()
	defer g.dev.encMu.Unlock()

	if err := g.uploadLayer(c, layer); err != nil {
		return err
	}

	uniform := make([]byte, 16)
	putFloat32(uniform[0:4], float32(opacity))
	putFloat32(uniform[4:8], float32(c.width))
	putFloat32(uniform[8:12], float32(c.height))
	if err := g.dev.dev.Queue().WriteBuffer(c.uniformBuf, 0, uniform); err != nil {
		return fmt.Errorf("write blend params: %w", err)
	}

	next := 1 - c.current
	bg, err := g.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "blend-bg", Layout: g.dev.blendBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: c.views[c.current]},
			{Binding: 1, TextureView: c.layerView},
			{Binding: 2, TextureView: c.views[next]},
			{Binding: 3, Buffer: c.uniformBuf, Size: 16},
		},
	})
	if err != nil {
		return fmt.Errorf("blend bind group: %w", err)
	}
	defer bg.Release()

	if err := g.dispatch(g.dev.blendPipeline, bg, c.width, c.height); err != nil {
		return fmt.Errorf("blend dispatch: %w", err)
	}
	c.current = next
	return nil
}

// Snapshot blits the current canvas texture into the readback buffer, hops
// it over to the CPU-mappable staging buffer with the one public
// buffer-to-buffer copy this API exposes, and reads it into dst.Pix. dst is
// caller-owned (pool-acquired) and must already be sized to the canvas;
// Snapshot performs no heap allocation of its own. The canvas's declared
// format is BGRA8, but the blit shaders pack plain R,G,B,A into the
// readback buffer, so the final step swaps red and blue back into place.
func (g *GPUBackend) Snapshot(canvas Canvas, dst frame.Frame) error {
	c := canvas.(*gpuCanvas)
	if dst.Width != c.width || dst.Height != c.height {
		return fmt.Errorf("compositor: snapshot dst %dx%d does not match canvas %dx%d", dst.Width, dst.Height, c.width, c.height)
	}

	g.dev.encMu.Lock()
	defer g.dev.encMu.Unlock()

	size := uint64(c.width * c.height * 4)
	bg, err := g.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "blit-download-bg", Layout: g.dev.blitDownloadBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: c.views[c.current]},
			{Binding: 1, Buffer: c.readbackBuf, Size: size},
		},
	})
	if err != nil {
		return fmt.Errorf("blit-download bind group: %w", err)
	}
	defer bg.Release()

	if err := g.dispatch(g.dev.blitDownloadPipeline, bg, c.width, c.height); err != nil {
		return fmt.Errorf("blit-download dispatch: %w", err)
	}

	encoder, err := g.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(c.readbackBuf, 0, c.stagingBuf, 0, size)
	cmdBuf, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	if err := g.dev.dev.Queue().Submit(cmdBuf); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if err := g.dev.dev.Queue().ReadBuffer(c.stagingBuf, 0, dst.Pix); err != nil {
		return fmt.Errorf("read canvas: %w", err)
	}
	swapRedBlue(dst.Pix)
	return nil
}

// uploadLayer fills the canvas-sized uploadScratch buffer with layer's
// pixels - padded with transparent black if layer is smaller than the
// canvas, and with red/blue swapped if layer isn't already in the canvas's
// byte order - then writes that buffer to the GPU and blits it into
// layerTex. uploadScratch is sized once in NewCanvas and reused across
// calls, so this never allocates it again.
func (g *GPUBackend) uploadLayer(c *gpuCanvas, layer frame.Frame) error {
	swapRB := layer.Format == frame.FormatBGRA8
	w, h := layer.Width, layer.Height
	if w > c.width {
		w = c.width
	}
	if h > c.height {
		h = c.height
	}
	rowBytes := c.width * 4

	for y := 0; y < c.height; y++ {
		dstRow := c.uploadScratch[y*rowBytes : (y+1)*rowBytes]
		if y >= h {
			clear(dstRow)
			continue
		}
		srcRow := layer.Pix[y*layer.Stride : y*layer.Stride+w*4]
		if swapRB {
			for x := 0; x < w; x++ {
				o := x * 4
				dstRow[o+0] = srcRow[o+2]
				dstRow[o+1] = srcRow[o+1]
				dstRow[o+2] = srcRow[o+0]
				dstRow[o+3] = srcRow[o+3]
			}
		} else {
			copy(dstRow[:w*4], srcRow)
		}
		clear(dstRow[w*4:])
	}

	if err := g.dev.dev.Queue().WriteBuffer(c.layerBuf, 0, c.uploadScratch); err != nil {
		return fmt.Errorf("upload layer: %w", err)
	}

	bg, err := g.dev.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label: "blit-upload-bg", Layout: g.dev.blitUploadBGL,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.layerBuf, Size: uint64(len(c.uploadScratch))},
			{Binding: 1, TextureView: c.layerView},
		},
	})
	if err != nil {
		return fmt.Errorf("blit-upload bind group: %w", err)
	}
	defer bg.Release()

	return g.dispatch(g.dev.blitUploadPipeline, bg, c.width, c.height)
}

func (g *GPUBackend) dispatch(pipeline *wgpu.ComputePipeline, bg *wgpu.BindGroup, width, height int) error {
	encoder, err := g.dev.dev.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass, err := encoder.BeginComputePass(nil)
	if err != nil {
		return err
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(workgroupCount(width), workgroupCount(height), 1)
	if err := pass.End(); err != nil {
		return err
	}
	cmdBuf, err := encoder.Finish()
	if err != nil {
		return err
	}
	return g.dev.dev.Queue().Submit(cmdBuf)
}

func swapRedBlue(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

func putFloat32(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}
