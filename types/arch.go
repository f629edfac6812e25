package types

import (
	"fmt"
	"runtime"
	"strings"
)

// Architecture names a host instruction set translated code can target.
type Architecture uint8

const (
	ArchUnknown Architecture = iota
	ArchAmd64
	ArchArm64
)

func (a Architecture) String() string {
	switch a {
	case ArchAmd64:
		return "amd64"
	case ArchArm64:
		return "arm64"
	default:
		return "unknown"
	}
}

// HostArchitecture reports the architecture of the running process.
func HostArchitecture() Architecture {
	arch, _ := ParseArchitecture(runtime.GOARCH)
	return arch
}

func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(s) {
	case "amd64", "x86_64", "x64":
		return ArchAmd64, nil
	case "arm64", "aarch64":
		return ArchArm64, nil
	default:
		return ArchUnknown, fmt.Errorf("unknown architecture %q", s)
	}
}

func (a Architecture) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Architecture) UnmarshalText(b []byte) error {
	arch, err := ParseArchitecture(string(b))
	if err != nil {
		return err
	}
	*a = arch
	return nil
}
