package filter

// filterUniformWGSL is the common header every compiled filter pipeline
// shares: the uniform block (time, width, height, param_count, up to 16
// packed params) and the input/output texture bindings. Each builtin below
// is this header concatenated with its own @compute entry point, so its
// WGSLBody is complete source that the chain compiles as-is.
const filterUniformWGSL = `
struct FilterParams {
    time:        f32,
    width:       f32,
    height:      f32,
    param_count: f32,
    p0: vec4<f32>,
    p1: vec4<f32>,
    p2: vec4<f32>,
    p3: vec4<f32>,
}

@group(0) @binding(0) var input_tex: texture_2d<f32>;
@group(0) @binding(1) var output_tex: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(2) var<uniform> params: FilterParams;

fn paramAt(i: u32) -> f32 {
    if (i == 0u)  { return params.p0.x; }
    if (i == 1u)  { return params.p0.y; }
    if (i == 2u)  { return params.p0.z; }
    if (i == 3u)  { return params.p0.w; }
    if (i == 4u)  { return params.p1.x; }
    if (i == 5u)  { return params.p1.y; }
    if (i == 6u)  { return params.p1.z; }
    if (i == 7u)  { return params.p1.w; }
    if (i == 8u)  { return params.p2.x; }
    if (i == 9u)  { return params.p2.y; }
    if (i == 10u) { return params.p2.z; }
    if (i == 11u) { return params.p2.w; }
    if (i == 12u) { return params.p3.x; }
    if (i == 13u) { return params.p3.y; }
    if (i == 14u) { return params.p3.z; }
    return params.p3.w;
}
`

const colorAdjustWGSL = filterUniformWGSL + `
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(input_tex);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let pos = vec2<i32>(id.xy);
    let px = textureLoad(input_tex, pos, 0);

    let brightness = paramAt(0u);
    let contrast = paramAt(1u);
    let saturation = paramAt(2u);

    var rgb = px.rgb + vec3<f32>(brightness);
    rgb = (rgb - vec3<f32>(0.5)) * contrast + vec3<f32>(0.5);
    let luma = dot(rgb, vec3<f32>(0.2126, 0.7152, 0.0722));
    rgb = mix(vec3<f32>(luma), rgb, saturation);
    rgb = clamp(rgb, vec3<f32>(0.0), vec3<f32>(1.0));

    textureStore(output_tex, pos, vec4<f32>(rgb, px.a));
}
`

const scanlinesWGSL = filterUniformWGSL + `
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(input_tex);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let pos = vec2<i32>(id.xy);
    let px = textureLoad(input_tex, pos, 0);

    let intensity = paramAt(0u);
    let scroll = paramAt(1u);
    let spacing = paramAt(2u);

    var rgb = px.rgb;
    if (spacing > 0.0) {
        let yPrime = f32(id.y) + params.time * scroll * spacing;
        let m = yPrime - floor(yPrime / spacing) * spacing;
        if (m / spacing >= 0.5) {
            rgb = rgb * (1.0 - intensity);
        }
    }

    textureStore(output_tex, pos, vec4<f32>(rgb, px.a));
}
`

const chromaticAberrationWGSL = filterUniformWGSL + `
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(input_tex);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let pos = vec2<i32>(id.xy);

    let amount = paramAt(0u);
    let angle = paramAt(1u);
    let offF = vec2<f32>(cos(angle), sin(angle)) * amount;
    let off = vec2<i32>(i32(offF.x), i32(offF.y));
    let maxPos = vec2<i32>(i32(dims.x) - 1, i32(dims.y) - 1);

    let rPos = clamp(pos + off, vec2<i32>(0, 0), maxPos);
    let bPos = clamp(pos - off, vec2<i32>(0, 0), maxPos);

    let rPx = textureLoad(input_tex, rPos, 0);
    let gaPx = textureLoad(input_tex, pos, 0);
    let bPx = textureLoad(input_tex, bPos, 0);

    textureStore(output_tex, pos, vec4<f32>(rPx.r, gaPx.g, bPx.b, gaPx.a));
}
`

const vignetteWGSL = filterUniformWGSL + `
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(input_tex);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let pos = vec2<i32>(id.xy);
    let px = textureLoad(input_tex, pos, 0);

    let radius = paramAt(0u);
    let softness = paramAt(1u);
    let uv = vec2<f32>(f32(id.x) / params.width, f32(id.y) / params.height);
    let dist = length(2.0 * (uv - vec2<f32>(0.5, 0.5)));
    let v = 1.0 - smoothstep(radius, radius + softness, dist);

    textureStore(output_tex, pos, vec4<f32>(px.rgb * v, px.a));
}
`

const dropShadowWGSL = filterUniformWGSL + `
@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let dims = textureDimensions(input_tex);
    if (id.x >= dims.x || id.y >= dims.y) {
        return;
    }
    let pos = vec2<i32>(id.xy);
    let fg = textureLoad(input_tex, pos, 0);

    let angle = paramAt(0u);
    let distance = paramAt(1u);
    let opacity = paramAt(2u);
    let softness = paramAt(3u);

    let dir = vec2<f32>(cos(angle), sin(angle));
    let center = vec2<f32>(f32(pos.x), f32(pos.y)) - dir * distance;

    var radius = i32(ceil(softness));
    radius = clamp(radius, 0, 10);
    let maxPos = vec2<i32>(i32(dims.x) - 1, i32(dims.y) - 1);

    var accum = 0.0;
    var weight = 0.0;
    for (var dy = -radius; dy <= radius; dy = dy + 1) {
        for (var dx = -radius; dx <= radius; dx = dx + 1) {
            let sampleF = center + vec2<f32>(f32(dx), f32(dy));
            let samplePos = clamp(vec2<i32>(i32(round(sampleF.x)), i32(round(sampleF.y))), vec2<i32>(0, 0), maxPos);
            let d = length(vec2<f32>(f32(dx), f32(dy)));
            let maxD = f32(radius) + 1.0;
            let w = max(0.0, 1.0 - d / maxD);
            accum = accum + textureLoad(input_tex, samplePos, 0).a * w;
            weight = weight + w;
        }
    }

    var shadowAlpha = 0.0;
    if (weight > 0.0) {
        shadowAlpha = (accum / weight) * opacity;
    }

    let sa = shadowAlpha * (1.0 - fg.a);
    let outA = fg.a + sa;
    var rgb = vec3<f32>(0.0, 0.0, 0.0);
    if (outA > 0.0) {
        rgb = (fg.rgb * fg.a) / outA;
    }

    textureStore(output_tex, pos, vec4<f32>(rgb, outA));
}
`

// Builtins returns the fixed set of built-in filter descriptors, compiled
// at startup alongside any shader-loader-provided descriptors.
func Builtins() []Descriptor {
	return []Descriptor{
		{Name: "color_adjust", WGSLBody: colorAdjustWGSL, ParamCount: 3},
		{Name: "scanlines", WGSLBody: scanlinesWGSL, ParamCount: 3},
		{Name: "chromatic_aberration", WGSLBody: chromaticAberrationWGSL, ParamCount: 2},
		{Name: "vignette", WGSLBody: vignetteWGSL, ParamCount: 2},
		{Name: "drop_shadow", WGSLBody: dropShadowWGSL, ParamCount: 4},
	}
}
