//go:build !unicorn

package verify

import "github.com/colorfulnotion/armjit/cpu"

func RunReference(p Program, maxInsts uint64) (cpu.State, error) {
	return cpu.State{}, ErrNoReference
}
