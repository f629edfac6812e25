package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/cpu"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/storage"
	"github.com/colorfulnotion/armjit/types"
)

// Supervisor calls understood by the command line runner.
const (
	svcExit  = 0 // stop
	svcPutc  = 1 // write the low byte of r0 to stdout
	svcWrite = 2 // write r1 bytes at guest address r0 to stdout
)

// imageFlags describe a flat binary and where it runs.
type imageFlags struct {
	path      string
	loadAddr  string
	entry     string
	thumb     bool
	stackTop  string
	stackSize uint64
	profile   string
}

func (f *imageFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "image", "i", "", "flat guest binary")
	cmd.Flags().StringVar(&f.loadAddr, "load", "0x10000", "guest address the image is loaded at")
	cmd.Flags().StringVar(&f.entry, "entry", "", "entry point (defaults to the load address)")
	cmd.Flags().BoolVar(&f.thumb, "thumb", false, "start in Thumb state")
	cmd.Flags().StringVar(&f.stackTop, "stack", "0x80000000", "initial stack pointer, 0 for none")
	cmd.Flags().Uint64Var(&f.stackSize, "stack-size", 64<<10, "bytes mapped below the stack pointer")
	cmd.Flags().StringVar(&f.profile, "profile", "", "translation profile database")
	cmd.MarkFlagRequired("image")
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad guest address %q: %w", s, err)
	}
	return uint32(v), nil
}

type session struct {
	guest   *cpu.Guest
	image   []byte
	hash    common.Hash
	load    uint32
	entry   uint32
	thumb   bool
	sp      uint32
	stack   uint64
	profile *storage.ProfileStore
}

func (f *imageFlags) open(ctx context.Context) (*session, error) {
	image, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	s := &session{image: image, hash: common.ComputeHash(image), thumb: f.thumb, stack: f.stackSize}
	if s.load, err = parseAddr(f.loadAddr); err != nil {
		return nil, err
	}
	s.entry = s.load
	if f.entry != "" {
		if s.entry, err = parseAddr(f.entry); err != nil {
			return nil, err
		}
	}
	if s.sp, err = parseAddr(f.stackTop); err != nil {
		return nil, err
	}
	if s.guest, err = cpu.NewGuest(cfg); err != nil {
		return nil, err
	}
	if err := s.guest.Load(s.load, image); err != nil {
		s.Close()
		return nil, err
	}
	if s.sp != 0 && s.stack > 0 {
		if err := s.guest.MapZero(s.sp-uint32(s.stack), s.stack); err != nil {
			s.Close()
			return nil, fmt.Errorf("map stack: %w", err)
		}
	}
	path := f.profile
	if path == "" {
		path = cfg.ProfilePath
	}
	if path != "" {
		if s.profile, err = storage.OpenProfileStore(path); err != nil {
			s.Close()
			return nil, err
		}
		keys, err := s.profile.Keys(s.hash)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := s.guest.Warm(ctx, keys); err != nil {
			log.Warn(log.StorageMonitoring, "warm from profile", "keys", len(keys), "err", err)
		}
	}
	log.Info(log.CPUMonitoring, "image loaded", "path", f.path, "size", len(image), "load", fmt.Sprintf("%#x", s.load), "hash", s.hash)
	return s, nil
}

// newExecution creates the main guest thread with the stack pointer set and
// the command line supervisor calls installed.
func (s *session) newExecution() (*cpu.Execution, error) {
	e, err := s.guest.NewExecution(s.entry, s.thumb)
	if err != nil {
		return nil, err
	}
	if s.sp != 0 {
		e.SetReg(13, s.sp)
	}
	e.SetSupervisorCall(s.supervisorCall)
	return e, nil
}

func (s *session) supervisorCall(e *cpu.Execution, imm uint32) (bool, error) {
	switch imm {
	case svcExit:
		return true, nil
	case svcPutc:
		_, err := os.Stdout.Write([]byte{byte(e.Reg(0))})
		return false, err
	case svcWrite:
		buf := make([]byte, e.Reg(1))
		mm := s.guest.Memory
		if err := mm.Read(mm.VirtualAddress(e.Reg(0)), buf); err != nil {
			return false, err
		}
		_, err := os.Stdout.Write(buf)
		return false, err
	}
	log.Warn(log.CPUMonitoring, "unknown supervisor call", "imm", imm, "pc", e.PC())
	return true, nil
}

// execute runs the image from its entry point to the exit call.
func (s *session) execute(ctx context.Context) (*cpu.Execution, error) {
	e, err := s.newExecution()
	if err != nil {
		return nil, err
	}
	if err := e.Run(ctx); err != nil {
		return e, err
	}
	return e, nil
}

// saveProfile records which keys were translated so the next run of the
// same image can warm them.
func (s *session) saveProfile() error {
	if s.profile == nil {
		return nil
	}
	return s.profile.Save(s.hash, s.guest.Translator.Profile())
}

func (s *session) Close() error {
	if s.profile != nil {
		s.profile.Close()
		s.profile = nil
	}
	if s.guest != nil {
		err := s.guest.Close()
		s.guest = nil
		return err
	}
	return nil
}

func parseKeys(list []string, thumb bool) ([]types.GuestAddress, error) {
	keys := make([]types.GuestAddress, 0, len(list))
	for _, a := range list {
		pc, err := parseAddr(a)
		if err != nil {
			return nil, err
		}
		keys = append(keys, types.NewGuestAddress(pc, thumb || pc&1 == 1))
	}
	return keys, nil
}
