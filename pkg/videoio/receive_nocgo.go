//go:build !cgo

package videoio

import "github.com/ndimixer/mixer/pkg/ingest"

// GstSource is a stub that always fails discovery when CGO is disabled.
type GstSource struct{}

// NewGstSource returns a source whose Discover always fails with
// ErrCGORequired when CGO is disabled.
func NewGstSource(width, height int) *GstSource { return &GstSource{} }

func (s *GstSource) Discover() ([]string, error) { return nil, ErrCGORequired }

func (s *GstSource) Connect(name string) (ingest.Receiver, error) { return nil, ErrCGORequired }
