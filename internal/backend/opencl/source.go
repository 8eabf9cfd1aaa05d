package opencl

// kernelSource holds every simulation kernel. Each field is passed as a
// buffer plus its channel count and a half flag; half fields are stored as
// binary16 and go through vload_half/vstore_half_rte, which core OpenCL
// provides without cl_khr_fp16. Rows run bottom-up and every neighbour
// lookup clamps to the edge texel.
const kernelSource = `
#define FIELD(n) __global void* n, const int n##_ch, const int n##_half
#define AT(n, x, y, c) fetch(n, n##_ch, n##_half, w, h, (x), (y), (c))
#define PUT(n, x, y, c, v) put(n, n##_ch, n##_half, w, (x), (y), (c), (v))

float load_value(__global void* buf, int is_half, int i)
{
    if (is_half) {
        return vload_half(i, (__global half*)buf);
    }
    return ((__global float*)buf)[i];
}

float fetch(__global void* buf, int ch, int is_half, int w, int h, int x, int y, int c)
{
    if (c >= ch) {
        return 0.0f;
    }
    x = clamp(x, 0, w - 1);
    y = clamp(y, 0, h - 1);
    return load_value(buf, is_half, (y * w + x) * ch + c);
}

void put(__global void* buf, int ch, int is_half, int w, int x, int y, int c, float v)
{
    int i = (y * w + x) * ch + c;
    if (is_half) {
        vstore_half_rte(v, i, (__global half*)buf);
    } else {
        ((__global float*)buf)[i] = v;
    }
}

float bilinear(__global void* buf, int ch, int is_half, int w, int h, float u, float v, int c)
{
    float px = u * (float)w - 0.5f;
    float py = v * (float)h - 0.5f;
    float fx = floor(px);
    float fy = floor(py);
    float tx = px - fx;
    float ty = py - fy;
    int x0 = (int)fx;
    int y0 = (int)fy;
    float a00 = fetch(buf, ch, is_half, w, h, x0, y0, c);
    float a10 = fetch(buf, ch, is_half, w, h, x0 + 1, y0, c);
    float a01 = fetch(buf, ch, is_half, w, h, x0, y0 + 1, c);
    float a11 = fetch(buf, ch, is_half, w, h, x0 + 1, y0 + 1, c);
    float a = a00 + (a10 - a00) * tx;
    float b = a01 + (a11 - a01) * tx;
    return a + (b - a) * ty;
}

#define PROLOGUE \
    int idx = get_global_id(0); \
    if (idx >= w * h) { \
        return; \
    } \
    int x = idx % w; \
    int y = idx / w;

__kernel void splat(const int w, const int h, FIELD(src), FIELD(dst), const int n,
    const float px, const float py, const float vx, const float vy, const float vz,
    const float radius, const float aspect)
{
    PROLOGUE
    float u = ((float)x + 0.5f) / (float)w;
    float v = ((float)y + 0.5f) / (float)h;
    float dx = (u - px) * aspect;
    float dy = v - py;
    float s = exp(-(dx * dx + dy * dy) / radius);
    float value[3] = {vx, vy, vz};
    for (int c = 0; c < dst_ch; c++) {
        float base = AT(src, x, y, c);
        PUT(dst, x, y, c, c < n ? base + value[c] * s : base);
    }
}

__kernel void advect(const int w, const int h, FIELD(vel), FIELD(src), FIELD(dst), const int n,
    const float dt, const float dissipation, const float tx, const float ty)
{
    PROLOGUE
    float u = ((float)x + 0.5f) / (float)w;
    float v = ((float)y + 0.5f) / (float)h;
    float su = u - dt * AT(vel, x, y, 0) * tx;
    float sv = v - dt * AT(vel, x, y, 1) * ty;
    for (int c = 0; c < dst_ch; c++) {
        float out = c < n ? dissipation * bilinear(src, src_ch, src_half, w, h, su, sv, c) : AT(src, x, y, c);
        PUT(dst, x, y, c, out);
    }
}

__kernel void curl(const int w, const int h, FIELD(vel), FIELD(dst))
{
    PROLOGUE
    float l = AT(vel, x - 1, y, 1);
    float r = AT(vel, x + 1, y, 1);
    float t = AT(vel, x, y + 1, 0);
    float b = AT(vel, x, y - 1, 0);
    PUT(dst, x, y, 0, 0.5f * (r - l - t + b));
}

__kernel void vorticity(const int w, const int h, FIELD(vel), FIELD(cu), FIELD(dst),
    const float strength, const float dt)
{
    PROLOGUE
    float l = AT(cu, x - 1, y, 0);
    float r = AT(cu, x + 1, y, 0);
    float t = AT(cu, x, y + 1, 0);
    float b = AT(cu, x, y - 1, 0);
    float c = AT(cu, x, y, 0);
    float fx = 0.5f * (fabs(t) - fabs(b));
    float fy = 0.5f * (fabs(r) - fabs(l));
    float inv = 1.0f / (hypot(fx, fy) + 0.0001f);
    fx *= inv * strength * c;
    fy *= -inv * strength * c;
    PUT(dst, x, y, 0, AT(vel, x, y, 0) + fx * dt);
    PUT(dst, x, y, 1, AT(vel, x, y, 1) + fy * dt);
    for (int k = 2; k < dst_ch; k++) {
        PUT(dst, x, y, k, AT(vel, x, y, k));
    }
}

__kernel void divergence(const int w, const int h, FIELD(vel), FIELD(dst))
{
    PROLOGUE
    float l = AT(vel, x - 1, y, 0);
    float r = AT(vel, x + 1, y, 0);
    float t = AT(vel, x, y + 1, 1);
    float b = AT(vel, x, y - 1, 1);
    PUT(dst, x, y, 0, 0.5f * (r - l + t - b));
}

__kernel void pressure_clear(const int w, const int h, FIELD(p), FIELD(dst), const float decay)
{
    PROLOGUE
    PUT(dst, x, y, 0, decay * AT(p, x, y, 0));
}

__kernel void pressure_solve(const int w, const int h, FIELD(p), FIELD(dv), FIELD(dst))
{
    PROLOGUE
    float l = AT(p, x - 1, y, 0);
    float r = AT(p, x + 1, y, 0);
    float t = AT(p, x, y + 1, 0);
    float b = AT(p, x, y - 1, 0);
    PUT(dst, x, y, 0, (l + r + b + t - AT(dv, x, y, 0)) * 0.25f);
}

__kernel void gradient(const int w, const int h, FIELD(p), FIELD(vel), FIELD(dst))
{
    PROLOGUE
    float l = AT(p, x - 1, y, 0);
    float r = AT(p, x + 1, y, 0);
    float t = AT(p, x, y + 1, 0);
    float b = AT(p, x, y - 1, 0);
    PUT(dst, x, y, 0, AT(vel, x, y, 0) - (r - l));
    PUT(dst, x, y, 1, AT(vel, x, y, 1) - (t - b));
    for (int k = 2; k < dst_ch; k++) {
        PUT(dst, x, y, k, AT(vel, x, y, k));
    }
}

__kernel void display(const int w, const int h, FIELD(dens), __global uchar* rgba, const float gamma)
{
    PROLOGUE
    int o = ((h - 1 - y) * w + x) * 4;
    for (int c = 0; c < 3; c++) {
        float v = AT(dens, x, y, c);
        float m = 0.0f;
        if (v > 0.0f) {
            m = pow(v / (1.0f + v), gamma);
        }
        rgba[o + c] = (uchar)min(255.0f, rint(m * 255.0f));
    }
    rgba[o + 3] = (uchar)255;
}
`
