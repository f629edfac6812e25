package arm32

// Name is the instruction mnemonic the encoder switches on. The first sixteen
// follow the A32 data-processing opcode field.
type Name uint8

const (
	AND Name = iota
	EOR
	SUB
	RSB
	ADD
	ADC
	SBC
	RSC
	TST
	TEQ
	CMP
	CMN
	ORR
	MOV
	BIC
	MVN
	MUL
	MLA
	UMULL
	UMLAL
	SMULL
	SMLAL
	MOVW
	MOVT
	CLZ
	SXTB
	SXTH
	UXTB
	UXTH
	REV
	LDR
	LDRB
	LDRH
	LDRSB
	LDRSH
	LDRD
	STR
	STRB
	STRH
	STRD
	LDM
	STM
	B
	BL
	BLX
	BX
	SVC
	NOP
	UDF
)

var nameStrings = [...]string{
	"and", "eor", "sub", "rsb", "add", "adc", "sbc", "rsc", "tst", "teq", "cmp", "cmn", "orr", "mov", "bic", "mvn",
	"mul", "mla", "umull", "umlal", "smull", "smlal", "movw", "movt", "clz", "sxtb", "sxth", "uxtb", "uxth", "rev",
	"ldr", "ldrb", "ldrh", "ldrsb", "ldrsh", "ldrd", "str", "strb", "strh", "strd", "ldm", "stm",
	"b", "bl", "blx", "bx", "svc", "nop", "udf",
}

func (n Name) String() string {
	if int(n) < len(nameStrings) {
		return nameStrings[n]
	}
	return "???"
}

// IsCompare reports the data-processing forms that only set flags.
func (n Name) IsCompare() bool {
	return n >= TST && n <= CMN
}

// IsLogical reports data-processing forms whose carry comes from the shifter.
func (n Name) IsLogical() bool {
	switch n {
	case AND, EOR, TST, TEQ, ORR, MOV, BIC, MVN:
		return true
	}
	return false
}

func (n Name) IsDataProcessing() bool {
	return n <= MVN
}

func (n Name) IsLoad() bool {
	return n >= LDR && n <= LDRD
}

func (n Name) IsStore() bool {
	return n >= STR && n <= STRD
}

type Encoding uint8

const (
	EncA32 Encoding = iota
	EncT16
	EncT32
)

func (e Encoding) String() string {
	switch e {
	case EncA32:
		return "A32"
	case EncT16:
		return "T16"
	default:
		return "T32"
	}
}

// Opcode is an (instruction, encoding) class: the unit the classifier works on.
type Opcode uint16

const (
	AndA32 Opcode = iota
	EorA32
	SubA32
	RsbA32
	AddA32
	AdcA32
	SbcA32
	RscA32
	TstA32
	TeqA32
	CmpA32
	CmnA32
	OrrA32
	MovA32
	BicA32
	MvnA32
	MulA32
	MlaA32
	UmullA32
	UmlalA32
	SmullA32
	SmlalA32
	MovwA32
	MovtA32
	ClzA32
	SxtbA32
	SxthA32
	UxtbA32
	UxthA32
	RevA32
	LdrA32
	LdrbA32
	LdrhA32
	LdrsbA32
	LdrshA32
	LdrdA32
	StrA32
	StrbA32
	StrhA32
	StrdA32
	LdmA32
	StmA32
	BA32
	BlA32
	BlxImmA32
	BxA32
	BlxRegA32
	SvcA32
	NopA32
	UdfA32

	AndT16
	EorT16
	SubT16
	RsbT16
	AddT16
	AdcT16
	SbcT16
	TstT16
	CmpT16
	CmnT16
	OrrT16
	MovT16
	BicT16
	MvnT16
	MulT16
	AddHiT16
	CmpHiT16
	MovHiT16
	AdrT16
	AddSpT16
	SxtbT16
	SxthT16
	UxtbT16
	UxthT16
	RevT16
	LdrT16
	LdrbT16
	LdrhT16
	LdrsbT16
	LdrshT16
	StrT16
	StrbT16
	StrhT16
	LdmT16
	StmT16
	BCondT16
	BT16
	BxT16
	BlxRegT16
	SvcT16
	NopT16
	UdfT16

	BlT32
	BlxImmT32
	UdfT32

	opcodeCount
)

// OpInfo is one row of the classifier table.
type OpInfo struct {
	Name     Name
	Encoding Encoding
	Flags    InstFlags
}

var opTable = [opcodeCount]OpInfo{
	AndA32:    {AND, EncA32, FlagCondRdRn},
	EorA32:    {EOR, EncA32, FlagCondRdRn},
	SubA32:    {SUB, EncA32, FlagCondRdRn},
	RsbA32:    {RSB, EncA32, FlagCondRdRn},
	AddA32:    {ADD, EncA32, FlagCondRdRn},
	AdcA32:    {ADC, EncA32, FlagCondRdRn},
	SbcA32:    {SBC, EncA32, FlagCondRdRn},
	RscA32:    {RSC, EncA32, FlagCondRdRn},
	TstA32:    {TST, EncA32, FlagCondRn},
	TeqA32:    {TEQ, EncA32, FlagCondRn},
	CmpA32:    {CMP, EncA32, FlagCondRn},
	CmnA32:    {CMN, EncA32, FlagCondRn},
	OrrA32:    {ORR, EncA32, FlagCondRdRn},
	MovA32:    {MOV, EncA32, FlagCondRd},
	BicA32:    {BIC, EncA32, FlagCondRdRn},
	MvnA32:    {MVN, EncA32, FlagCondRd},
	MulA32:    {MUL, EncA32, FlagCondRd},
	MlaA32:    {MLA, EncA32, FlagCondRd},
	UmullA32:  {UMULL, EncA32, FlagCondRdLoHi},
	UmlalA32:  {UMLAL, EncA32, FlagCondRdLoHiRead},
	SmullA32:  {SMULL, EncA32, FlagCondRdLoHi},
	SmlalA32:  {SMLAL, EncA32, FlagCondRdLoHiRead},
	MovwA32:   {MOVW, EncA32, FlagCondRd},
	MovtA32:   {MOVT, EncA32, FlagCondRdRead},
	ClzA32:    {CLZ, EncA32, FlagCondRd},
	SxtbA32:   {SXTB, EncA32, FlagCondRd},
	SxthA32:   {SXTH, EncA32, FlagCondRd},
	UxtbA32:   {UXTB, EncA32, FlagCondRd},
	UxthA32:   {UXTH, EncA32, FlagCondRd},
	RevA32:    {REV, EncA32, FlagCondRd},
	LdrA32:    {LDR, EncA32, FlagCondRtWBack},
	LdrbA32:   {LDRB, EncA32, FlagCondRtWBack},
	LdrhA32:   {LDRH, EncA32, FlagCondRtWBack},
	LdrsbA32:  {LDRSB, EncA32, FlagCondRtWBack},
	LdrshA32:  {LDRSH, EncA32, FlagCondRtWBack},
	LdrdA32:   {LDRD, EncA32, FlagCondRtRt2WBack},
	StrA32:    {STR, EncA32, FlagCondRtReadWBack},
	StrbA32:   {STRB, EncA32, FlagCondRtReadWBack},
	StrhA32:   {STRH, EncA32, FlagCondRtReadWBack},
	StrdA32:   {STRD, EncA32, FlagCondRtRt2RdWBack},
	LdmA32:    {LDM, EncA32, FlagCondRlistWBack},
	StmA32:    {STM, EncA32, FlagCondRlistRdWBack},
	BA32:      {B, EncA32, FlagCond},
	BlA32:     {BL, EncA32, FlagCond},
	BlxImmA32: {BLX, EncA32, FlagNone},
	BxA32:     {BX, EncA32, FlagCond},
	BlxRegA32: {BLX, EncA32, FlagCond},
	SvcA32:    {SVC, EncA32, FlagCond},
	NopA32:    {NOP, EncA32, FlagCond},
	UdfA32:    {UDF, EncA32, FlagNone},

	AndT16:    {AND, EncT16, FlagRdRnT16},
	EorT16:    {EOR, EncT16, FlagRdRnT16},
	SubT16:    {SUB, EncT16, FlagRdRnT16},
	RsbT16:    {RSB, EncT16, FlagRdRnT16},
	AddT16:    {ADD, EncT16, FlagRdRnT16},
	AdcT16:    {ADC, EncT16, FlagRdRnT16},
	SbcT16:    {SBC, EncT16, FlagRdRnT16},
	TstT16:    {TST, EncT16, FlagRnT16},
	CmpT16:    {CMP, EncT16, FlagRnT16},
	CmnT16:    {CMN, EncT16, FlagRnT16},
	OrrT16:    {ORR, EncT16, FlagRdRnT16},
	MovT16:    {MOV, EncT16, FlagRdT16},
	BicT16:    {BIC, EncT16, FlagRdRnT16},
	MvnT16:    {MVN, EncT16, FlagRdT16},
	MulT16:    {MUL, EncT16, FlagRdT16},
	AddHiT16:  {ADD, EncT16, FlagRd16ReadT16},
	CmpHiT16:  {CMP, EncT16, FlagRn16T16},
	MovHiT16:  {MOV, EncT16, FlagRd16T16},
	AdrT16:    {ADD, EncT16, FlagRdRnT16},
	AddSpT16:  {ADD, EncT16, FlagRdRnT16},
	SxtbT16:   {SXTB, EncT16, FlagRdT16},
	SxthT16:   {SXTH, EncT16, FlagRdT16},
	UxtbT16:   {UXTB, EncT16, FlagRdT16},
	UxthT16:   {UXTH, EncT16, FlagRdT16},
	RevT16:    {REV, EncT16, FlagRdT16},
	LdrT16:    {LDR, EncT16, FlagRtT16},
	LdrbT16:   {LDRB, EncT16, FlagRtT16},
	LdrhT16:   {LDRH, EncT16, FlagRtT16},
	LdrsbT16:  {LDRSB, EncT16, FlagRtT16},
	LdrshT16:  {LDRSH, EncT16, FlagRtT16},
	StrT16:    {STR, EncT16, FlagRtReadT16},
	StrbT16:   {STRB, EncT16, FlagRtReadT16},
	StrhT16:   {STRH, EncT16, FlagRtReadT16},
	LdmT16:    {LDM, EncT16, FlagRlistWBackT16},
	StmT16:    {STM, EncT16, FlagRlistRdT16},
	BCondT16:  {B, EncT16, FlagCondT16},
	BT16:      {B, EncT16, FlagThumb16},
	BxT16:     {BX, EncT16, FlagThumb16},
	BlxRegT16: {BLX, EncT16, FlagThumb16},
	SvcT16:    {SVC, EncT16, FlagThumb16},
	NopT16:    {NOP, EncT16, FlagThumb16},
	UdfT16:    {UDF, EncT16, FlagThumb16},

	BlT32:     {BL, EncT32, FlagNone},
	BlxImmT32: {BLX, EncT32, FlagNone},
	UdfT32:    {UDF, EncT32, FlagNone},
}

// Classify returns the operand flags of an opcode class. Unknown classes have
// no operand roles.
func Classify(op Opcode) InstFlags {
	if op >= opcodeCount {
		return FlagNone
	}
	return opTable[op].Flags
}

// Info returns the classifier row for op; unknown classes report UDF.
func Info(op Opcode) OpInfo {
	if op >= opcodeCount {
		return OpInfo{Name: UDF, Encoding: EncA32}
	}
	return opTable[op]
}

// Opcodes lists every known class, in table order.
func Opcodes() []Opcode {
	ops := make([]Opcode, opcodeCount)
	for i := range ops {
		ops[i] = Opcode(i)
	}
	return ops
}
