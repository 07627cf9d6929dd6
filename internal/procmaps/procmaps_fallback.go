//go:build !linux

package procmaps

// Prober is a stub on platforms without /proc/self/maps.
type Prober struct{}

// New returns ErrUnsupported.
func New() (*Prober, error) {
	return nil, ErrUnsupported
}

// Regions returns ErrUnsupported.
func (p *Prober) Regions() ([]Region, error) {
	return nil, ErrUnsupported
}

// IsRangeFree returns ErrUnsupported.
func (p *Prober) IsRangeFree(begin, end uintptr) (bool, error) {
	return false, ErrUnsupported
}
