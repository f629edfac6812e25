package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armjit/cpu"
	"github.com/colorfulnotion/armjit/recompiler"
	"github.com/colorfulnotion/armjit/types"
)

const consoleHelp = `reg(n) setreg(n, v) pc() setpc(addr, thumb) flags()
mem(addr, len) poke(addr, hexbytes) run() state() stats() exits()
translate(addr, thumb) disasm(addr, thumb) table() help()`

// newConsoleVM exposes the guest thread e to JavaScript.
func newConsoleVM(ctx context.Context, s *session, e *cpu.Execution) *goja.Runtime {
	vm := goja.New()
	mm := s.guest.Memory
	jsErr := func(err error) goja.Value {
		panic(vm.NewGoError(err))
	}
	toJSON := func(v any) goja.Value {
		data, err := json.Marshal(v)
		if err != nil {
			return jsErr(err)
		}
		var out any
		json.Unmarshal(data, &out)
		return vm.ToValue(out)
	}

	vm.Set("print", func(args ...goja.Value) {
		for _, arg := range args {
			fmt.Println(arg.Export())
		}
	})
	vm.Set("help", func() string { return consoleHelp })
	vm.Set("reg", func(n int) uint32 { return e.Reg(n) })
	vm.Set("setreg", func(n int, v int64) { e.SetReg(n, uint32(v)) })
	vm.Set("pc", func() string { return e.PC().String() })
	vm.Set("setpc", func(addr int64, thumb bool) { e.SetPC(uint32(addr), thumb) })
	vm.Set("flags", func() map[string]bool {
		n, z, c, v := e.Flags()
		return map[string]bool{"n": n, "z": z, "c": c, "v": v}
	})
	vm.Set("mem", func(addr int64, n int) string {
		buf := make([]byte, n)
		if err := mm.Read(mm.VirtualAddress(uint32(addr)), buf); err != nil {
			return jsErr(err).String()
		}
		return hex.EncodeToString(buf)
	})
	vm.Set("poke", func(addr int64, data string) int {
		buf, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
		if err != nil {
			jsErr(err)
		}
		if err := mm.Write(mm.VirtualAddress(uint32(addr)), buf); err != nil {
			jsErr(err)
		}
		return len(buf)
	})
	vm.Set("run", func() goja.Value {
		if err := e.Run(ctx); err != nil {
			return jsErr(err)
		}
		return toJSON(e.Snapshot())
	})
	vm.Set("state", func() goja.Value { return toJSON(e.Snapshot()) })
	vm.Set("stats", func() goja.Value { return toJSON(s.guest.Translator.Stats()) })
	vm.Set("exits", func() goja.Value { return toJSON(e.ExitCounts()) })
	translate := func(addr int64, thumb bool) *recompiler.TranslatedUnit {
		u, err := s.guest.Translator.Translate(ctx, types.NewGuestAddress(uint32(addr), thumb))
		if err != nil {
			jsErr(err)
		}
		return u
	}
	vm.Set("translate", func(addr int64, thumb bool) string { return translate(addr, thumb).String() })
	vm.Set("disasm", func(addr int64, thumb bool) string {
		return recompiler.DisassembleUnit(translate(addr, thumb))
	})
	vm.Set("table", func() string { return tableTree(s.guest.Table).String() })
	return vm
}

func newConsoleCmd() *cobra.Command {
	var img imageFlags
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive JavaScript console over a loaded image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := img.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			e, err := s.newExecution()
			if err != nil {
				return err
			}
			defer e.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "armjit> ",
				HistoryFile: filepath.Join(os.TempDir(), "armjit_console_history.txt"),
			})
			if err != nil {
				return fmt.Errorf("start readline: %w", err)
			}
			defer rl.Close()

			vm := newConsoleVM(ctx, s, e)
			fmt.Println(consoleHelp)
			for {
				line, err := rl.Readline()
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" {
					return nil
				}
				value, err := vm.RunString(line)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				if value != nil && !goja.IsUndefined(value) {
					fmt.Println(value)
				}
			}
		},
	}
	img.add(cmd)
	return cmd
}
