package asm

import (
	"encoding/binary"
	"fmt"
)

// FixupKind identifies what a pending relocation patches.
type FixupKind uint8

const (
	// FixupAddr loads the address of a label.
	FixupAddr FixupKind = iota
	// FixupBranch is a conditional relative branch.
	FixupBranch
	// FixupJump is an unconditional relative branch.
	FixupJump
	// FixupConst references an entry in the constant pool.
	FixupConst
)

func (k FixupKind) String() string {
	switch k {
	case FixupAddr:
		return "addr"
	case FixupBranch:
		return "branch"
	case FixupJump:
		return "jump"
	case FixupConst:
		return "const"
	default:
		return fmt.Sprintf("fixup(%d)", uint8(k))
	}
}

// Fixup is a location whose bytes depend on a label or constant position that
// is only known once the whole program has been emitted.
type Fixup struct {
	Kind FixupKind
	// Pos is the offset of the bytes to patch. Backends with fixed width
	// instructions point at the instruction, others at the displacement field.
	Pos int
	// End is the offset the displacement is measured from on architectures
	// that count from the end of the instruction.
	End   int
	Label Label
	Cond  Cond
	// Const is the offset of the referenced entry inside the constant pool.
	Const int
	// Index is the instruction that recorded the fixup.
	Index int
}

// State is the mutable context of one assembly: the code buffer, the label
// table, the constant pool and the pending fixups.
type State struct {
	arch   Arch
	level  CpuLevel
	code   []byte
	labels map[Label]int
	order  []Label
	pool   []byte
	consts map[string]int
	fixups []Fixup
	index  int
}

// NewState returns an empty State for arch limited to level.
func NewState(arch Arch, level CpuLevel) *State {
	if level == 0 {
		level = MaxCpuLevel
	}
	return &State{
		arch:   arch,
		level:  level,
		labels: make(map[Label]int),
		consts: make(map[string]int),
	}
}

func (s *State) Arch() Arch      { return s.arch }
func (s *State) Level() CpuLevel { return s.level }

// Len returns the number of code bytes emitted so far.
func (s *State) Len() int { return len(s.code) }

// Code returns the live code buffer.
func (s *State) Code() []byte { return s.code }

// SetIndex records which instruction is being encoded so fixups can name it.
func (s *State) SetIndex(idx int) { s.index = idx }

// Emit appends raw bytes.
func (s *State) Emit(b ...byte) {
	s.code = append(s.code, b...)
}

// Emit32 appends a little endian word and returns its offset.
func (s *State) Emit32(word uint32) int {
	pos := len(s.code)
	s.code = binary.LittleEndian.AppendUint32(s.code, word)
	return pos
}

// Emit64 appends a little endian double word.
func (s *State) Emit64(v uint64) {
	s.code = binary.LittleEndian.AppendUint64(s.code, v)
}

// DefineLabel binds l to the current offset.
func (s *State) DefineLabel(l Label) error {
	if _, exists := s.labels[l]; exists {
		return ErrDuplicateLabel
	}
	s.labels[l] = len(s.code)
	s.order = append(s.order, l)
	return nil
}

// LabelOffset returns the offset bound to l.
func (s *State) LabelOffset(l Label) (int, bool) {
	pos, ok := s.labels[l]
	return pos, ok
}

// Constant places data in the pool and returns its pool offset. Identical
// contents share one entry. Entries are aligned to their own size, capped at
// 16 bytes.
func (s *State) Constant(data []byte) int {
	key := string(data)
	if off, ok := s.consts[key]; ok {
		return off
	}
	align := 1
	for align < len(data) && align < 16 {
		align <<= 1
	}
	for len(s.pool)%align != 0 {
		s.pool = append(s.pool, 0)
	}
	off := len(s.pool)
	s.pool = append(s.pool, data...)
	s.consts[key] = off
	return off
}

// ReplicatedConstant fills a size byte pool entry with the low lane bytes of v
// repeated.
func (s *State) ReplicatedConstant(v uint64, lane int, size int) int {
	data := make([]byte, size)
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], v)
	for i := 0; i < size; i += lane {
		copy(data[i:i+lane], word[:lane])
	}
	return s.Constant(data)
}

// PoolLen returns the size of the constant pool.
func (s *State) PoolLen() int { return len(s.pool) }

// AddFixup records a pending relocation against the current instruction.
func (s *State) AddFixup(f Fixup) {
	f.Index = s.index
	s.fixups = append(s.fixups, f)
}

// Fixups returns the pending relocations in emission order.
func (s *State) Fixups() []Fixup { return s.fixups }

// CheckVector validates a vector element type and width against the
// capability ceiling and the widths the backend can encode.
func (s *State) CheckVector(t Type, size Vsize, maxBits int) error {
	if t > F256 {
		return ErrInvalidType
	}
	if size > V2048 {
		return ErrVectorSizeNotSupported
	}
	if t.Bits() > size.Bits() {
		return ErrInvalidType
	}
	if size.Bits() > s.level.MaxVectorBits() {
		return ErrCpuLevelTooLow
	}
	if size.Bits() > maxBits {
		return ErrVectorSizeNotSupported
	}
	return nil
}

// CheckShiftCount validates an immediate vector shift count. Left shifts take
// [0, lane bits), right shifts [0, lane bits].
func CheckShiftCount(op VBinOp, t Type, v int64) error {
	limit := int64(t.Bits())
	if op == OpVshl {
		limit--
	}
	if v < 0 || v > limit {
		return ErrInvalidImmediate
	}
	return nil
}

// EmitData appends v as a little endian value of type t. Values that do not
// fit t are rejected.
func (s *State) EmitData(t Type, v uint64) error {
	var bits int
	switch t {
	case U8, S8, U16, S16, U32, S32, F32:
		bits = t.Bits()
	case U64, S64, F64:
		s.Emit64(v)
		return nil
	default:
		return ErrInvalidDataType
	}
	if t.IsSigned() {
		x := int64(v)
		if x < -1<<(bits-1) || x >= 1<<(bits-1) {
			return ErrInvalidImmediate
		}
	} else if v>>bits != 0 {
		return ErrInvalidImmediate
	}
	for i := 0; i < bits/8; i++ {
		s.code = append(s.code, byte(v>>(8*i)))
	}
	return nil
}
