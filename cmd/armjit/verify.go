package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armjit/cpu"
	"github.com/colorfulnotion/armjit/verify"
)

func newVerifyCmd() *cobra.Command {
	var (
		img      imageFlags
		maxInsts uint64
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare translated execution with the reference emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(img.path)
			if err != nil {
				return err
			}
			load, err := parseAddr(img.loadAddr)
			if err != nil {
				return err
			}
			entry := load
			if img.entry != "" {
				if entry, err = parseAddr(img.entry); err != nil {
					return err
				}
			}
			sp, err := parseAddr(img.stackTop)
			if err != nil {
				return err
			}
			p := verify.Program{
				Regions: []verify.Region{{Addr: load, Data: image}},
				Entry:   entry,
				Thumb:   img.thumb,
			}
			if sp != 0 && img.stackSize > 0 {
				p.Regions = append(p.Regions, verify.Region{Addr: sp - uint32(img.stackSize), Size: img.stackSize})
				p.Init = cpu.State{}
				p.Init.Regs[13] = sp
			}
			report, err := verify.Compare(context.Background(), cfg, p, maxInsts)
			if err != nil {
				return err
			}
			if report.Match {
				fmt.Println("match")
				fmt.Println(report.Translated)
				return nil
			}
			fmt.Println(report.Diff)
			return fmt.Errorf("translated state differs from reference")
		},
	}
	img.add(cmd)
	cmd.Flags().Uint64Var(&maxInsts, "max-insts", 1<<20, "instruction limit for the reference run")
	return cmd
}
