package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/internal/addr"
	"github.com/joshuapare/slabkit/slab"
)

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout <size|0xpointer>...",
		Short: "Classify sizes or decode class-encoded pointers",
		Long: `The layout command shows where a request lands. A decimal argument is a
request size; a 0x-prefixed argument is a pointer returned by the allocator and
is decoded into its class, selector, page base and slot index.

Example:
  slabctl layout 1 100 1000000
  slabctl layout 0x4a0000001100`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(args)
		},
	}
}

// Layout describes one size or pointer.
type Layout struct {
	Input     string  `json:"input"`
	Size      *uint64 `json:"size,omitempty"`
	Pointer   string  `json:"pointer,omitempty"`
	Class     int     `json:"class"`
	SlotSize  uint64  `json:"slot_size"`
	Huge      bool    `json:"huge"`
	Selector  *int    `json:"selector,omitempty"`
	PageBase  string  `json:"page_base,omitempty"`
	SlotIndex *int    `json:"slot_index,omitempty"`
	Window    string  `json:"window"`
}

func describe(arg string, cfg slab.Config) (Layout, error) {
	l := Layout{Input: arg}
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		v, err := strconv.ParseUint(arg[2:], 16, 64)
		if err != nil {
			return l, fmt.Errorf("invalid pointer %q: %w", arg, err)
		}
		p := uintptr(v)
		l.Pointer = fmt.Sprintf("%#x", p)
		l.Class = addr.Decode(p)
		sel := addr.Selector(p)
		l.Selector = &sel
		l.Huge = l.Class >= cfg.HugeClass
		if !l.Huge {
			l.PageBase = fmt.Sprintf("%#x", addr.PageBase(p, l.Class))
			idx := addr.SlotIndex(p, l.Class)
			l.SlotIndex = &idx
		}
		l.Window = fmt.Sprintf("[%#x, %#x)", addr.WindowBase(l.Class, sel), addr.WindowEnd(l.Class, sel))
	} else {
		size, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return l, fmt.Errorf("invalid size %q: %w", arg, err)
		}
		l.Size = &size
		_, l.Class = addr.Classify(size)
		if l.Class >= addr.NumClasses {
			return l, fmt.Errorf("%w: %d bytes", slab.ErrTooLarge, size)
		}
		l.Huge = l.Class >= cfg.HugeClass
		sel := addr.PreferredSelector(l.Class)
		l.Window = fmt.Sprintf("[%#x, %#x)", addr.WindowBase(l.Class, sel), addr.WindowEnd(l.Class, sel))
	}
	l.SlotSize = addr.SlotSize(l.Class)
	return l, nil
}

func runLayout(args []string) error {
	cfg := slab.DefaultConfig()
	out := make([]Layout, 0, len(args))
	for _, arg := range args {
		l, err := describe(arg, cfg)
		if err != nil {
			return err
		}
		out = append(out, l)
	}
	if jsonOut {
		return printJSON(out)
	}

	for _, l := range out {
		kind := "slab"
		if l.Huge {
			kind = "huge"
		}
		if l.Size != nil {
			printInfo("%s: class %d, %s slot (%s), window %s\n",
				l.Input, l.Class, humanBytes(l.SlotSize), kind, l.Window)
			continue
		}
		printInfo("%s: class %d, %s slot (%s), selector %d, window %s\n",
			l.Pointer, l.Class, humanBytes(l.SlotSize), kind, *l.Selector, l.Window)
		if l.SlotIndex != nil {
			printInfo("  page %s, slot %d\n", l.PageBase, *l.SlotIndex)
		}
	}
	return nil
}
