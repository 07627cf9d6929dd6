package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/internal/procmaps"
	"github.com/joshuapare/slabkit/slab"
)

var (
	mapsMinSize uint64
	mapsSample  bool
	mapsSlab    bool
)

func init() {
	cmd := newMapsCmd()
	cmd.Flags().Uint64Var(&mapsMinSize, "min-size", 0, "Only show regions of at least this many bytes")
	cmd.Flags().BoolVar(&mapsSample, "sample", false, "Allocate one slot per slab class first so their superpages show up")
	cmd.Flags().BoolVar(&mapsSlab, "slab-only", false, "Only show regions aligned as superpages of the class they encode")
	rootCmd.AddCommand(cmd)
}

func newMapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maps",
		Short: "List this process's mappings with their encoded class",
		Long: `The maps command lists the mappings of the slabctl process, as seen by the
allocator's address-space prober, and decodes the class and selector bits of
each start address.

Example:
  slabctl maps --sample --slab-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaps()
		},
	}
}

// MapEntry is one listed region.
type MapEntry struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Size      uint64 `json:"size"`
	Perms     string `json:"perms"`
	Path      string `json:"path,omitempty"`
	Class     int    `json:"class"`
	Selector  int    `json:"selector"`
	Superpage bool   `json:"superpage"`
}

func runMaps() error {
	prober, err := procmaps.New()
	if err != nil {
		return err
	}

	if mapsSample {
		a, err := slab.New(&slab.Config{
			MaxThreads:     1,
			HugeClass:      slab.DefaultConfig().HugeClass,
			SuperpageLimit: slab.DefaultConfig().SuperpageLimit,
			Prober:         prober,
		})
		if err != nil {
			return err
		}
		th, err := a.Attach()
		if err != nil {
			return err
		}
		// Slots stay allocated so the superpages remain mapped while listing.
		for class := 0; class < a.Config().HugeClass; class++ {
			th.Alloc(int(addr.SlotSize(class)))
		}
		printVerbose("sampled %d classes\n", a.Config().HugeClass)
	}

	regions, err := prober.Regions()
	if err != nil {
		return err
	}

	var out []MapEntry
	for _, r := range regions {
		if uint64(r.Size()) < mapsMinSize {
			continue
		}
		class := addr.Decode(r.Start)
		e := MapEntry{
			Start:     fmt.Sprintf("%#x", r.Start),
			End:       fmt.Sprintf("%#x", r.End),
			Size:      uint64(r.Size()),
			Perms:     r.Perms,
			Path:      r.Path,
			Class:     class,
			Selector:  addr.Selector(r.Start),
			Superpage: addr.Valid(r.Start, class) && r.Start >= addr.MinCandidate && r.Path == "",
		}
		if mapsSlab && !e.Superpage {
			continue
		}
		out = append(out, e)
	}

	if jsonOut {
		return printJSON(out)
	}
	printInfo("%-16s %-16s %10s %-4s %5s %3s  %s\n", "START", "END", "SIZE", "PERM", "CLASS", "SEL", "PATH")
	for _, e := range out {
		mark := ""
		if e.Superpage {
			mark = " *"
		}
		printInfo("%-16s %-16s %10s %-4s %5d %3d  %s%s\n",
			e.Start, e.End, humanBytes(e.Size), e.Perms, e.Class, e.Selector, e.Path, mark)
	}
	printVerbose("%d regions\n", len(out))
	return nil
}
