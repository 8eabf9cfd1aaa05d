//go:build opencl

// Package opencl runs the simulation kernels on an OpenCL device. Fields
// live in device buffers for their whole lifetime; only the display pass
// and explicit Read/Write calls move data across the bus.
package opencl

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/Distortions81/stable-fluids/internal/field"
	"github.com/Distortions81/stable-fluids/internal/kernel"
	"github.com/Distortions81/stable-fluids/internal/logging"
)

// Available reports whether this build includes the OpenCL executor.
const Available = true

var kernelNames = map[kernel.ID]string{
	kernel.Splat:            "splat",
	kernel.Advection:        "advect",
	kernel.CurlKernel:       "curl",
	kernel.Vorticity:        "vorticity",
	kernel.DivergenceKernel: "divergence",
	kernel.PressureClear:    "pressure_clear",
	kernel.PressureSolve:    "pressure_solve",
	kernel.GradientSubtract: "gradient",
	kernel.Display:          "display",
}

// Executor owns an OpenCL context, its command queue, and the compiled
// kernel program.
type Executor struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernels map[kernel.ID]*cl.Kernel

	deviceName string
	hasFP16    bool

	displayBuf  *cl.MemObject
	displaySize int
	scratch     []byte
}

// buffer is a field texture resident on the device.
type buffer struct {
	mem           *cl.MemObject
	width, height int
	channels      int
	half          bool
}

func (b *buffer) Release() {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
}

func (b *buffer) bytes() int {
	n := b.width * b.height * b.channels
	if b.half {
		return n * 2
	}
	return n * 4
}

func pickDevice() (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`")
	}
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				return devices[0], nil
			}
		}
	}
	return nil, errors.New("no suitable OpenCL devices found")
}

// New compiles the kernel program on the first GPU, falling back to the
// first CPU device.
func New() (*Executor, error) {
	device, err := pickDevice()
	if err != nil {
		return nil, err
	}
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	e := &Executor{
		context:    context,
		kernels:    make(map[kernel.ID]*cl.Kernel, len(kernelNames)),
		deviceName: device.Name(),
		hasFP16:    strings.Contains(device.Extensions(), "cl_khr_fp16"),
	}
	e.queue, err = context.CreateCommandQueue(device, 0)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	e.program, err = context.CreateProgramWithSource([]string{kernelSource})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := e.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		e.Close()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	for id, name := range kernelNames {
		k, err := e.program.CreateKernel(name)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("creating %s kernel: %w", name, err)
		}
		e.kernels[id] = k
	}
	logging.Logger().Info("opencl executor ready", "device", e.deviceName, "fp16", e.hasFP16)
	return e, nil
}

func (e *Executor) Name() string { return "opencl:" + e.deviceName }

// DeviceName returns the name of the selected device.
func (e *Executor) DeviceName() string { return e.deviceName }

// SupportsFormat accepts every format: half storage only needs the core
// vload_half/vstore_half built-ins.
func (e *Executor) SupportsFormat(f field.Format) bool { return f.Channels() > 0 }

func (e *Executor) Allocate(width, height int, f field.Format) (field.Texture, error) {
	if !e.SupportsFormat(f) {
		return nil, fmt.Errorf("format %v not supported", f)
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	b := &buffer{width: width, height: height, channels: f.Channels(), half: f.Half()}
	mem, err := e.context.CreateEmptyBuffer(cl.MemReadWrite, b.bytes())
	if err != nil {
		return nil, fmt.Errorf("allocating %v buffer: %w", f, err)
	}
	b.mem = mem
	zero := e.zeroes(b.bytes())
	if _, err := e.queue.EnqueueWriteBuffer(mem, true, 0, len(zero), unsafe.Pointer(&zero[0]), nil); err != nil {
		mem.Release()
		return nil, fmt.Errorf("clearing %v buffer: %w", f, err)
	}
	return b, nil
}

func (e *Executor) zeroes(n int) []byte {
	if cap(e.scratch) < n {
		e.scratch = make([]byte, n)
	}
	e.scratch = e.scratch[:n]
	clear(e.scratch)
	return e.scratch
}

func bufferOf(f *field.Field) (*buffer, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("field %v is not allocated", f)
	}
	b, ok := f.Texture.(*buffer)
	if !ok {
		return nil, fmt.Errorf("field %s is bound to a %T, not an OpenCL buffer", f.Name, f.Texture)
	}
	if b.mem == nil {
		return nil, fmt.Errorf("field %s buffer already released", f.Name)
	}
	return b, nil
}

// fieldArgs expands fields into the (buffer, channels, half) triples the
// kernels take.
func fieldArgs(fields ...*field.Field) ([]interface{}, error) {
	args := make([]interface{}, 0, len(fields)*3)
	for _, f := range fields {
		b, err := bufferOf(f)
		if err != nil {
			return nil, err
		}
		half := int32(0)
		if b.half {
			half = 1
		}
		args = append(args, b.mem, int32(b.channels), half)
	}
	return args, nil
}

func (e *Executor) launch(id kernel.ID, w, h int, fields []*field.Field, extra ...interface{}) error {
	k := e.kernels[id]
	if k == nil {
		return fmt.Errorf("kernel %v not compiled", id)
	}
	fa, err := fieldArgs(fields...)
	if err != nil {
		return err
	}
	args := append([]interface{}{int32(w), int32(h)}, fa...)
	args = append(args, extra...)
	if err := k.SetArgs(args...); err != nil {
		return fmt.Errorf("setting arguments: %w", err)
	}
	if _, err := e.queue.EnqueueNDRangeKernel(k, nil, []int{w * h}, nil, nil); err != nil {
		return fmt.Errorf("enqueueing kernel: %w", err)
	}
	return nil
}

func logical(n, max int) int32 {
	if n > max {
		n = max
	}
	return int32(n)
}

// Execute enqueues one pass. The queue is in order, so a pass always sees
// the results of the passes enqueued before it.
func (e *Executor) Execute(p kernel.Pass) error {
	switch p := p.(type) {
	case kernel.SplatParams:
		return e.launch(kernel.Splat, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Target, p.Output},
			logical(p.Output.Components, 3), p.Point.X(), p.Point.Y(),
			p.Value.X(), p.Value.Y(), p.Value.Z(), p.Radius, p.AspectRatio)
	case kernel.AdvectParams:
		return e.launch(kernel.Advection, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Velocity, p.Source, p.Output},
			int32(p.Output.Components), p.DT, p.Dissipation, p.TexelSize.X(), p.TexelSize.Y())
	case kernel.CurlParams:
		return e.launch(kernel.CurlKernel, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Velocity, p.Output})
	case kernel.VorticityParams:
		return e.launch(kernel.Vorticity, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Velocity, p.Curl, p.Output}, p.Strength, p.DT)
	case kernel.DivergenceParams:
		return e.launch(kernel.DivergenceKernel, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Velocity, p.Output})
	case kernel.PressureClearParams:
		return e.launch(kernel.PressureClear, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Pressure, p.Output}, p.Decay)
	case kernel.PressureSolveParams:
		return e.launch(kernel.PressureSolve, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Pressure, p.Divergence, p.Output})
	case kernel.GradientParams:
		return e.launch(kernel.GradientSubtract, p.Output.Width, p.Output.Height,
			[]*field.Field{p.Pressure, p.Velocity, p.Output})
	case kernel.DisplayParams:
		return e.display(p)
	}
	return fmt.Errorf("unsupported pass %T", p)
}

func (e *Executor) display(p kernel.DisplayParams) error {
	w, h := p.Density.Width, p.Density.Height
	size := w * h * 4
	if e.displayBuf == nil || e.displaySize != size {
		if e.displayBuf != nil {
			e.displayBuf.Release()
			e.displayBuf = nil
		}
		mem, err := e.context.CreateEmptyBuffer(cl.MemWriteOnly, size)
		if err != nil {
			return fmt.Errorf("allocating display buffer: %w", err)
		}
		e.displayBuf, e.displaySize = mem, size
	}
	gamma := p.Gamma
	if gamma <= 0 {
		gamma = 0.8
	}
	if err := e.launch(kernel.Display, w, h, []*field.Field{p.Density}, e.displayBuf, gamma); err != nil {
		return err
	}
	img := p.Target
	if img.Stride == w*4 && img.Bounds().Min == (image.Point{}) {
		if _, err := e.queue.EnqueueReadBuffer(e.displayBuf, true, 0, size, unsafe.Pointer(&img.Pix[0]), nil); err != nil {
			return fmt.Errorf("reading display buffer: %w", err)
		}
		return nil
	}
	tmp := make([]byte, size)
	if _, err := e.queue.EnqueueReadBuffer(e.displayBuf, true, 0, size, unsafe.Pointer(&tmp[0]), nil); err != nil {
		return fmt.Errorf("reading display buffer: %w", err)
	}
	min := img.Bounds().Min
	for y := 0; y < h; y++ {
		copy(img.Pix[img.PixOffset(min.X, min.Y+y):], tmp[y*w*4:(y+1)*w*4])
	}
	return nil
}

// Read copies the logical components of f back to the host, row-major from
// the bottom row up.
func (e *Executor) Read(f *field.Field) ([]float32, error) {
	b, err := bufferOf(f)
	if err != nil {
		return nil, err
	}
	n := b.width * b.height * b.channels
	raw := make([]float32, n)
	if b.half {
		bits := make([]uint16, n)
		if _, err := e.queue.EnqueueReadBuffer(b.mem, true, 0, n*2, unsafe.Pointer(&bits[0]), nil); err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		field.DecodeHalf(raw, bits)
	} else if _, err := e.queue.EnqueueReadBufferFloat32(b.mem, true, 0, raw, nil); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	out := make([]float32, b.width*b.height*f.Components)
	for i := 0; i < b.width*b.height; i++ {
		copy(out[i*f.Components:(i+1)*f.Components], raw[i*b.channels:i*b.channels+f.Components])
	}
	return out, nil
}

// Write uploads data, laid out as Read returns it, into f. Padding channels
// are zeroed.
func (e *Executor) Write(f *field.Field, data []float32) error {
	b, err := bufferOf(f)
	if err != nil {
		return err
	}
	if len(data) != b.width*b.height*f.Components {
		return fmt.Errorf("write %s: got %d values, want %d", f.Name, len(data), b.width*b.height*f.Components)
	}
	raw := make([]float32, b.width*b.height*b.channels)
	for i := 0; i < b.width*b.height; i++ {
		copy(raw[i*b.channels:], data[i*f.Components:(i+1)*f.Components])
	}
	if b.half {
		bits := make([]uint16, len(raw))
		field.EncodeHalf(bits, raw)
		if _, err := e.queue.EnqueueWriteBuffer(b.mem, true, 0, len(bits)*2, unsafe.Pointer(&bits[0]), nil); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
		return nil
	}
	if _, err := e.queue.EnqueueWriteBufferFloat32(b.mem, true, 0, raw, nil); err != nil {
		return fmt.Errorf("writing %s: %w", f.Name, err)
	}
	return nil
}

// Close releases the display buffer, kernels, program, queue and context.
// Field buffers belong to the store and are released through it.
func (e *Executor) Close() {
	if e.displayBuf != nil {
		e.displayBuf.Release()
		e.displayBuf = nil
	}
	for id, k := range e.kernels {
		k.Release()
		delete(e.kernels, id)
	}
	if e.program != nil {
		e.program.Release()
		e.program = nil
	}
	if e.queue != nil {
		e.queue.Release()
		e.queue = nil
	}
	if e.context != nil {
		e.context.Release()
		e.context = nil
	}
}

var _ kernel.Executor = (*Executor)(nil)
