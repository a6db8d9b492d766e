package vm

// ============================================================================
// Instruction encoding bit positions and masks shared by the wide decoder,
// the executors, and (where the families overlap) the narrow decoder.
// ============================================================================

const (
	// Condition code field (bits 31-28)
	ConditionShift = 28

	// Common instruction field positions
	OpcodeShift = 21 // Bits 24-21: opcode field
	SBitShift   = 20 // Bit 20: S bit (set flags)
	RnShift     = 16 // Bits 19-16: Rn (first operand register)
	RdShift     = 12 // Bits 15-12: Rd (destination register)
	RsShift     = 8  // Bits 11-8: Rs (shift register)

	// Memory instruction bit positions
	PBitShift = 24 // Bit 24: P (pre/post indexing)
	UBitShift = 23 // Bit 23: U (up/down - add/subtract offset)
	BBitShift = 22 // Bit 22: B (byte/word)
	WBitShift = 21 // Bit 21: W (writeback)
	LBitShift = 20 // Bit 20: L (load/store)

	// Branch instruction
	BranchLinkShift = 24 // Bit 24: L bit for BL

	ShiftAmountPos = 7  // Bits 11-7: shift amount
	ShiftTypePos   = 5  // Bits 6-5: shift type
	Bit4Pos        = 4  // Bit 4: various uses
	Bit7Pos        = 7  // Bit 7: various uses
	IBitShift      = 25 // Bit 25: I (immediate/register)

	MultiplyAShift = 21 // Bit 21: A bit (accumulate) / PSR direction bit

	Bits27_26Shift = 26 // Bits 27-26 starting position
	Bits27_25Shift = 25 // Bits 27-25 starting position
	Bits27_23Shift = 23 // Bits 27-23 starting position
)

// ARM register numbers
const (
	ARMRegisterPC = 15
	ARMRegisterLR = 14
	ARMRegisterSP = 13

	ARMInstructionSize = 4 // bytes, wide ISA
	WidePipelineOffset = 8 // PC reads as op_pc+8 in the wide ISA
	NarrowPipelineOffset = 4 // PC reads as op_pc+4 in the narrow ISA

	// CPSR flag bit positions
	CPSRBitN = 31
	CPSRBitZ = 30
	CPSRBitC = 29
	CPSRBitV = 28
	CPSRBitI = 7
	CPSRBitF = 6
	CPSRBitT = 5

	SignBitPos  = 31
	SignBitMask = 0x80000000

	Mask1Bit  = 0x1
	Mask2Bit  = 0x3
	Mask3Bit  = 0x7
	Mask4Bit  = 0xF
	Mask5Bit  = 0x1F
	Mask8Bit  = 0xFF
	Mask12Bit = 0xFFF
	Mask16Bit = 0xFFFF
	Mask24Bit = 0xFFFFFF
	Mask32Bit = 0xFFFFFFFF

	ByteShift8  = 8
	ByteShift16 = 16
	ByteShift24 = 24

	AlignmentWord     = 4
	AlignmentHalfword = 2
	AlignMaskWord      = AlignmentWord - 1
	AlignMaskHalfword  = AlignmentHalfword - 1

	BXPatternMask = 0x0FFFFFF0

	Offset12BitMask    = 0xFFF
	Offset24BitMask    = 0xFFFFFF
	Offset24BitSignBit = 0x800000
	Offset24BitSignExt = 0xFF000000

	HalfwordOffsetHighMask = 0xF
	HalfwordOffsetLowMask  = 0xF
	HalfwordHighShift      = 8
	HalfwordLowShift       = 4

	RegisterListMask = 0xFFFF

	ImmediateValueMask = 0xFF
	RotationMask       = 0xF
	RotationShift      = 8
	RotationMultiplier = 2

	ByteValueMask     = 0xFF
	HalfwordValueMask = 0xFFFF

	PCStoreOffset = 12 // not used: STM stores R15 as read (op_pc+8)
	PCBranchBase  = 8  // PC+8 base for wide branch calculations

	PCRegister = ARMRegisterPC
	SPRegister = ARMRegisterSP
	LRRegister = ARMRegisterLR

	WordToByteShift    = 2
	ThumbModeClearMask = 0xFFFFFFFE

	BitsInWord = 32

	// Instruction-detection patterns (bits [27:4] form a fixed pattern with the
	// register operand in the low nibble).
	BXEncodingBase  = 0x012FFF10
	BLXRegEncodingBase = 0x012FFF30

	MultiplyPattern     = 0x00000090
	MultiplyMask        = 0x0FC000F0
	LongMultiplyPattern = 0x00800090
	LongMultiplyMask    = 0x0F8000F0

	MRSPattern    = 0x010F0000
	MRSMask       = 0x0FBF0FFF
	MSRRegPattern = 0x01200000
	MSRRegMask    = 0x0FB000F0
	MSRImmPattern = 0x03200000
	MSRImmMask    = 0x0FB00000

	SWIDetectMask = 0x0F000000
	SWIPattern    = 0x0F000000

	// Architectural breakpoint encoding "E12xxx7x": cond=1110, bits[27:20]=00010010,
	// bits[7:4]=0111 (the instruction's own operand bits carry a comment field
	// the core ignores).
	ArchBreakpointMask    = 0xFFF000F0
	ArchBreakpointPattern = 0xE1200070

	// Fixed exception entry vectors (§4.3.7).
	VectorSWI           = 8
	VectorUndefined      = 4
	VectorArchBreakpoint = 12
)

// Unaligned halfword reads/writes round the address down to the containing
// halfword (address &^ 1); see DESIGN.md's Open Question disposition.
const UnalignedHalfwordMask = ^uint32(1)
