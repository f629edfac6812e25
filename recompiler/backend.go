// Package recompiler translates guest ARM blocks into host code and keeps the
// translated units reachable from the native dispatch stub.
package recompiler

import (
	"fmt"

	"github.com/colorfulnotion/armjit/addrtable"
	"github.com/colorfulnotion/armjit/arm32"
	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/recompiler/amd64"
	"github.com/colorfulnotion/armjit/types"
)

// Encoder lowers guest instructions of one block to host code.
type Encoder interface {
	EmitInstruction(inst *arm32.Inst) error
	EmitFallthrough(key uint32)
	Finish() ([]byte, error)
	Len() int
	Instructions() int
}

// stubCode is the per-table runtime code, offsets relative to code[0].
type stubCode struct {
	code     []byte
	enter    int
	leave    int
	dispatch int
}

type backend struct {
	newEncoder func(dispatch uint64) Encoder
	stubs      func(root uintptr, levels []addrtable.Level) (stubCode, error)
}

var backends = map[types.Architecture]backend{
	types.ArchAmd64: {
		newEncoder: func(dispatch uint64) Encoder { return amd64.NewEncoder(dispatch) },
		stubs: func(root uintptr, levels []addrtable.Level) (stubCode, error) {
			s, err := amd64.GenerateStubs(root, levels)
			if err != nil {
				return stubCode{}, err
			}
			return stubCode{code: s.Code, enter: s.Enter, leave: s.Leave, dispatch: s.Dispatch}, nil
		},
	},
}

func backendFor(arch types.Architecture) (backend, error) {
	b, ok := backends[arch]
	if !ok {
		return backend{}, fmt.Errorf("%w: %s", jiterrors.ErrUnsupportedTarget, arch)
	}
	return b, nil
}

// Supported reports whether an encoder is registered for arch.
func Supported(arch types.Architecture) bool {
	_, ok := backends[arch]
	return ok
}
