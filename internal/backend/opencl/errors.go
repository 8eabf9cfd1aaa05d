package opencl

import "errors"

// ErrUnavailable is returned by New in builds without the opencl tag.
var ErrUnavailable = errors.New("OpenCL support is not enabled; rebuild with -tags opencl")
