//go:build !(linux && amd64 && cgo)

package native

import "github.com/colorfulnotion/armjit/jiterrors"

func Supported() bool {
	return false
}

func Run(enter, ctx uintptr) (Result, error) {
	return Result{}, jiterrors.ErrUnsupportedPlatform
}
