//go:build linux

package procmaps

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Prober reads /proc/self/maps through procfs on every query, so the answer
// reflects mappings made by any goroutine or cgo code up to that moment.
type Prober struct {
	fs procfs.FS
}

// New returns a Prober rooted at the default /proc mount.
func New() (*Prober, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("procmaps: %w", err)
	}
	return &Prober{fs: fs}, nil
}

// Regions returns the current mappings of this process in address order.
func (p *Prober) Regions() ([]Region, error) {
	self, err := p.fs.Self()
	if err != nil {
		return nil, fmt.Errorf("procmaps: open self: %w", err)
	}
	maps, err := self.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("procmaps: read maps: %w", err)
	}
	regions := make([]Region, 0, len(maps))
	for _, m := range maps {
		r := Region{Start: m.StartAddr, End: m.EndAddr, Path: m.Pathname}
		if m.Perms != nil {
			r.Perms = perms(m.Perms)
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// IsRangeFree reports whether no mapping intersects [begin, end).
func (p *Prober) IsRangeFree(begin, end uintptr) (bool, error) {
	regions, err := p.Regions()
	if err != nil {
		return false, err
	}
	return rangeFree(regions, begin, end), nil
}

func perms(pm *procfs.ProcMapPermissions) string {
	b := []byte("----")
	if pm.Read {
		b[0] = 'r'
	}
	if pm.Write {
		b[1] = 'w'
	}
	if pm.Execute {
		b[2] = 'x'
	}
	switch {
	case pm.Shared:
		b[3] = 's'
	case pm.Private:
		b[3] = 'p'
	}
	return string(b)
}
