package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/slab"
)

var (
	classesHugeClass      int
	classesSuperpageLimit int
	classesAll            bool
)

func init() {
	cmd := newClassesCmd()
	def := slab.DefaultConfig()
	cmd.Flags().IntVar(&classesHugeClass, "huge-class", def.HugeClass, "First class served by a dedicated mapping")
	cmd.Flags().IntVar(&classesSuperpageLimit, "superpage-limit", def.SuperpageLimit, "Largest class with a full-size superpage")
	cmd.Flags().BoolVar(&classesAll, "all", false, "Include every encodable huge class")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Show the size-class table",
		Long: `The classes command prints each size class with its slot size, superpage
alignment, mapped bytes per superpage, and usable slots per superpage.

Example:
  slabctl classes
  slabctl classes --huge-class 20 --superpage-limit 15
  slabctl classes --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
}

func runClasses() error {
	cfg := slab.DefaultConfig()
	cfg.HugeClass = classesHugeClass
	cfg.SuperpageLimit = classesSuperpageLimit
	if err := cfg.Validate(); err != nil {
		return err
	}

	classes := cfg.Classes()
	if !classesAll {
		classes = classes[:cfg.HugeClass+1]
	}
	if jsonOut {
		return printJSON(classes)
	}

	printInfo("%-5s  %10s  %10s  %10s  %6s  %8s\n", "CLASS", "SLOT", "ALIGN", "MAPPED", "HEADER", "CAPACITY")
	for _, c := range classes {
		if c.Huge {
			printInfo("%-5d  %10s  %10s  %10s  %6s  %8s\n",
				c.Class, humanBytes(c.SlotSize), humanBytes(uint64(c.SuperpageWidth)),
				humanBytes(uint64(c.MappedSize)), "-", "huge")
			continue
		}
		printInfo("%-5d  %10s  %10s  %10s  %6d  %8d\n",
			c.Class, humanBytes(c.SlotSize), humanBytes(uint64(c.SuperpageWidth)),
			humanBytes(uint64(c.MappedSize)), c.HeaderSlots, c.Capacity)
	}
	return nil
}
