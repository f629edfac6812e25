package amd64

// X86Reg represents an x86-64 register with encoding information
type X86Reg struct {
	Name    string
	RegBits byte // 3-bit code for ModRM/SIB
	REXBit  byte // 1 if register index >= 8
}

func (r X86Reg) String() string {
	return r.Name
}

// Standard x86-64 register definitions. The 32-bit names share encodings with
// their 64-bit counterparts; the emitter decides the operand size.
var (
	RAX = X86Reg{"rax", 0, 0}
	RCX = X86Reg{"rcx", 1, 0}
	RDX = X86Reg{"rdx", 2, 0}
	RBX = X86Reg{"rbx", 3, 0}
	RBP = X86Reg{"rbp", 5, 0}
	RDI = X86Reg{"rdi", 7, 0}
	R8  = X86Reg{"r8", 0, 1}
	R9  = X86Reg{"r9", 1, 1}
	R10 = X86Reg{"r10", 2, 1}
	R12 = X86Reg{"r12", 4, 1}
	R13 = X86Reg{"r13", 5, 1}
	R14 = X86Reg{"r14", 6, 1}
	R15 = X86Reg{"r15", 7, 1}

	EAX  = X86Reg{"eax", 0, 0}
	ECX  = X86Reg{"ecx", 1, 0}
	EDX  = X86Reg{"edx", 2, 0}
	R8D  = X86Reg{"r8d", 0, 1}
	R9D  = X86Reg{"r9d", 1, 1}
	R10D = X86Reg{"r10d", 2, 1}
)

// Fixed roles in translated code.
var (
	regCtx  = R15 // *state.Context
	regMem  = R14 // host address of guest address 0
	regDst  = EAX // result and transfer register
	regBase = ECX // first operand, address, shift count
	regOp2  = EDX // shifter output
)

// calleeSaved is pushed by the enter stub in this order and popped in reverse.
var calleeSaved = []X86Reg{RBX, RBP, R12, R13, R14, R15}
