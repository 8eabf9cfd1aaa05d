//go:build !opencl

package opencl

import (
	"errors"
	"testing"
)

func TestNewWithoutTag(t *testing.T) {
	if Available {
		t.Fatal("Available = true in a build without the opencl tag")
	}
	e, err := New()
	if e != nil || !errors.Is(err, ErrUnavailable) {
		t.Errorf("New() = %v, %v; want nil, ErrUnavailable", e, err)
	}
}
