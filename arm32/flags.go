package arm32

import "strings"

// InstFlags describes the operand roles of an instruction class. The encoder
// reads these instead of re-deriving roles from the raw encoding.
type InstFlags uint32

const (
	FlagCond    InstFlags = 1 << iota // conditionally executed
	FlagRd                            // has destination
	FlagRdLo                          // low half of a destination pair
	FlagRdHi                          // high half of a destination pair
	FlagRn                            // has base / first source register
	FlagRt                            // has transfer register
	FlagRt2                           // has secondary transfer register
	FlagRlist                         // has register list
	FlagRd16                          // destination extended to r8-r15 (Thumb high registers)
	FlagReadRd                        // reads destination (or transfer register) before write
	FlagWBack                         // may write back its base register
	FlagThumb16                       // 16-bit encoding

	FlagNone InstFlags = 0
)

// Composite presets.
const (
	FlagRdRead       = FlagRd | FlagReadRd
	FlagRtRead       = FlagRt | FlagReadRd
	FlagRdLoHi       = FlagRdLo | FlagRdHi
	FlagRdLoHiRead   = FlagRdLoHi | FlagReadRd
	FlagRtRt2        = FlagRt | FlagRt2
	FlagRtRt2Read    = FlagRtRt2 | FlagReadRd
	FlagRlistRead    = FlagRlist | FlagReadRd
	FlagRnWBack      = FlagRn | FlagWBack
	FlagRtWBack      = FlagRt | FlagRnWBack
	FlagRtReadWBack  = FlagRtRead | FlagRnWBack
	FlagRtRt2WBack   = FlagRtRt2 | FlagRnWBack
	FlagRtRt2RdWBack = FlagRtRt2Read | FlagRnWBack
	FlagRlistWBack   = FlagRlist | FlagRnWBack
	FlagRlistRdWBack = FlagRlistRead | FlagRnWBack
	FlagRdRn         = FlagRd | FlagRn

	FlagCondRd           = FlagCond | FlagRd
	FlagCondRn           = FlagCond | FlagRn
	FlagCondRdRn         = FlagCond | FlagRdRn
	FlagCondRdRead       = FlagCond | FlagRdRead
	FlagCondRdLoHi       = FlagCond | FlagRdLoHi
	FlagCondRdLoHiRead   = FlagCond | FlagRdLoHiRead
	FlagCondRtWBack      = FlagCond | FlagRtWBack
	FlagCondRtReadWBack  = FlagCond | FlagRtReadWBack
	FlagCondRtRt2WBack   = FlagCond | FlagRtRt2WBack
	FlagCondRtRt2RdWBack = FlagCond | FlagRtRt2RdWBack
	FlagCondRlistWBack   = FlagCond | FlagRlistWBack
	FlagCondRlistRdWBack = FlagCond | FlagRlistRdWBack

	FlagRdT16         = FlagRd | FlagThumb16
	FlagRnT16         = FlagRn | FlagThumb16
	FlagRdRnT16       = FlagRdRn | FlagThumb16
	FlagRd16T16       = FlagRd | FlagRd16 | FlagThumb16
	FlagRd16ReadT16   = FlagRdRead | FlagRd16 | FlagThumb16
	FlagRn16T16       = FlagRn | FlagRd16 | FlagThumb16
	FlagRtT16         = FlagRt | FlagRn | FlagThumb16
	FlagRtReadT16     = FlagRtRead | FlagRn | FlagThumb16
	FlagRlistWBackT16 = FlagRlistWBack | FlagThumb16
	FlagRlistRdT16    = FlagRlistRdWBack | FlagThumb16
	FlagCondT16       = FlagCond | FlagThumb16
)

// Has reports whether every bit of x is set in f.
func (f InstFlags) Has(x InstFlags) bool {
	return f&x == x
}

var flagNames = []string{"Cond", "Rd", "RdLo", "RdHi", "Rn", "Rt", "Rt2", "Rlist", "Rd16", "ReadRd", "WBack", "Thumb16"}

func (f InstFlags) String() string {
	if f == FlagNone {
		return "None"
	}
	var parts []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}
