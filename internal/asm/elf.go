package asm

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

const (
	elfHeaderSize        = 64
	elfProgramHeaderSize = 56
)

var defaultELFConfig = ELFConfig{
	BaseAddress:      0x401000,
	SegmentOffset:    0x1000,
	SegmentAlignment: 0x1000,
	SegmentFlags:     elf.PF_R | elf.PF_X,
}

// ELFConfig controls how Program.StandaloneELF lays out the executable.
type ELFConfig struct {
	// BaseAddress is the virtual address of the first program byte.
	BaseAddress uint64
	// SegmentOffset is the file offset of the loadable segment. It must be
	// aligned to SegmentAlignment and leave room for the headers.
	SegmentOffset    uint64
	SegmentAlignment uint64
	SegmentFlags     elf.ProgFlag
	// Entry is the code offset execution starts at.
	Entry int
}

// DefaultELFConfig returns the layout used by StandaloneELF.
func DefaultELFConfig() ELFConfig {
	return defaultELFConfig
}

var elfMachines = map[Arch]elf.Machine{
	ArchAMD64: elf.EM_X86_64,
	ArchARM64: elf.EM_AARCH64,
}

// StandaloneELF wraps the program in a single segment ELF executable. The code
// is position independent so no relocation is applied.
func (p Program) StandaloneELF() ([]byte, error) {
	return p.StandaloneELFWithConfig(DefaultELFConfig())
}

// StandaloneELFWithConfig is StandaloneELF with a custom layout. Zero fields
// take their defaults.
func (p Program) StandaloneELFWithConfig(cfg ELFConfig) ([]byte, error) {
	machine, ok := elfMachines[p.arch]
	if !ok {
		return nil, fmt.Errorf("asm: no ELF machine for %q", p.arch)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Entry < 0 || (cfg.Entry >= p.textLen && p.textLen > 0) {
		return nil, fmt.Errorf("asm: entry offset %d outside text (%d bytes)", cfg.Entry, p.textLen)
	}

	out := make([]byte, int(cfg.SegmentOffset), int(cfg.SegmentOffset)+len(p.code))
	fillELFHeader(out[:elfHeaderSize], machine, cfg)
	fillProgramHeader(out[elfHeaderSize:elfHeaderSize+elfProgramHeaderSize], cfg, uint64(len(p.code)))
	return append(out, p.code...), nil
}

func (cfg ELFConfig) withDefaults() ELFConfig {
	if cfg.BaseAddress == 0 {
		cfg.BaseAddress = defaultELFConfig.BaseAddress
	}
	if cfg.SegmentOffset == 0 {
		cfg.SegmentOffset = defaultELFConfig.SegmentOffset
	}
	if cfg.SegmentAlignment == 0 {
		cfg.SegmentAlignment = defaultELFConfig.SegmentAlignment
	}
	if cfg.SegmentFlags == 0 {
		cfg.SegmentFlags = defaultELFConfig.SegmentFlags
	}
	return cfg
}

func (cfg ELFConfig) validate() error {
	headerSize := uint64(elfHeaderSize + elfProgramHeaderSize)
	if cfg.SegmentOffset < headerSize {
		return fmt.Errorf("asm: segment offset %#x too small for ELF headers (%#x)", cfg.SegmentOffset, headerSize)
	}
	if cfg.SegmentAlignment&(cfg.SegmentAlignment-1) != 0 {
		return fmt.Errorf("asm: segment alignment %#x is not a power of two", cfg.SegmentAlignment)
	}
	if cfg.SegmentOffset%cfg.SegmentAlignment != 0 {
		return fmt.Errorf("asm: segment offset %#x must be aligned to %#x", cfg.SegmentOffset, cfg.SegmentAlignment)
	}
	if cfg.BaseAddress < cfg.SegmentOffset {
		return fmt.Errorf("asm: base address %#x must be >= segment offset %#x", cfg.BaseAddress, cfg.SegmentOffset)
	}
	if (cfg.BaseAddress-cfg.SegmentOffset)%cfg.SegmentAlignment != 0 {
		return fmt.Errorf("asm: base address %#x not congruent to offset %#x modulo %#x", cfg.BaseAddress, cfg.SegmentOffset, cfg.SegmentAlignment)
	}
	if cfg.SegmentOffset > 1<<30 {
		return fmt.Errorf("asm: segment offset %#x too large", cfg.SegmentOffset)
	}
	return nil
}

func fillELFHeader(buf []byte, machine elf.Machine, cfg ELFConfig) {
	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	binary.LittleEndian.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	binary.LittleEndian.PutUint16(buf[18:], uint16(machine))
	binary.LittleEndian.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint64(buf[24:], cfg.BaseAddress+uint64(cfg.Entry))
	binary.LittleEndian.PutUint64(buf[32:], elfHeaderSize)
	binary.LittleEndian.PutUint16(buf[52:], elfHeaderSize)
	binary.LittleEndian.PutUint16(buf[54:], elfProgramHeaderSize)
	binary.LittleEndian.PutUint16(buf[56:], 1)
}

func fillProgramHeader(buf []byte, cfg ELFConfig, size uint64) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(buf[4:], uint32(cfg.SegmentFlags))
	binary.LittleEndian.PutUint64(buf[8:], cfg.SegmentOffset)
	binary.LittleEndian.PutUint64(buf[16:], cfg.BaseAddress)
	binary.LittleEndian.PutUint64(buf[24:], cfg.BaseAddress)
	binary.LittleEndian.PutUint64(buf[32:], size)
	binary.LittleEndian.PutUint64(buf[40:], size)
	binary.LittleEndian.PutUint64(buf[48:], cfg.SegmentAlignment)
}
