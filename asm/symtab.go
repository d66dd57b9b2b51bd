// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

// DelaySize is the hard ceiling on the FV-1's circular delay buffer,
// in samples.
const DelaySize = 32768

// A SymbolTable maps case-folded names to integer or real values (and,
// via suffix expansion at MEM-allocation time, to the derived integers
// of a delay region) and, in a logically separate but name-disjoint
// namespace, maps skip/jump target names to instruction addresses.
type SymbolTable struct {
	symbols map[string]Value
	targets map[string]int
	cursor  int64 // delay allocator, 0..DelaySize+1
}

// NewSymbolTable returns a table seeded with the fixed predefined
// constants of §6: DSP registers, LFO selectors, CHO type selectors,
// CHO flag bits, and SKP condition bits.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{
		symbols: make(map[string]Value),
		targets: make(map[string]int),
	}
	for name, v := range predefinedSymbols {
		t.symbols[name] = intValue(v)
	}
	return t
}

// predefinedSymbols binds the FV-1's fixed register names, LFO and CHO
// selectors, CHO flag bits, and SKP condition bits. SIN and RDA share
// 0x00; only COS takes 0x01 (see DESIGN.md for why).
var predefinedSymbols = map[string]int64{
	"SIN0_RATE": 0x00, "SIN0_RANGE": 0x01,
	"SIN1_RATE": 0x02, "SIN1_RANGE": 0x03,
	"RMP0_RATE": 0x04, "RMP0_RANGE": 0x05,
	"RMP1_RATE": 0x06, "RMP1_RANGE": 0x07,
	"POT0": 0x10, "POT1": 0x11, "POT2": 0x12,
	"ADCL": 0x14, "ADCR": 0x15, "DACL": 0x16, "DACR": 0x17, "ADDR_PTR": 0x18,
	"REG0": 0x20, "REG1": 0x21, "REG2": 0x22, "REG3": 0x23,
	"REG4": 0x24, "REG5": 0x25, "REG6": 0x26, "REG7": 0x27,
	"REG8": 0x28, "REG9": 0x29, "REG10": 0x2a, "REG11": 0x2b,
	"REG12": 0x2c, "REG13": 0x2d, "REG14": 0x2e, "REG15": 0x2f,
	"REG16": 0x30, "REG17": 0x31, "REG18": 0x32, "REG19": 0x33,
	"REG20": 0x34, "REG21": 0x35, "REG22": 0x36, "REG23": 0x37,
	"REG24": 0x38, "REG25": 0x39, "REG26": 0x3a, "REG27": 0x3b,
	"REG28": 0x3c, "REG29": 0x3d, "REG30": 0x3e, "REG31": 0x3f,
	"SIN0": 0x00, "SIN1": 0x01, "RMP0": 0x02, "RMP1": 0x03,
	"RDA": 0x00, "SOF": 0x02, "RDAL": 0x03,
	"SIN": 0x00, "COS": 0x01, "REG": 0x02,
	"COMPC": 0x04, "COMPA": 0x08, "RPTR2": 0x10, "NA": 0x20,
	"NEG": 0x01, "GEZ": 0x02, "ZRO": 0x04, "ZRC": 0x08, "RUN": 0x10,
}

// Lookup resolves a case-folded name to its bound value.
func (t *SymbolTable) Lookup(name string) (Value, bool) {
	v, ok := t.symbols[name]
	return v, ok
}

// IsTarget reports whether name is bound in the target namespace.
func (t *SymbolTable) IsTarget(name string) (int, bool) {
	addr, ok := t.targets[name]
	return addr, ok
}

// DefineSymbol binds name to v. Redefinition of an already-bound
// symbol succeeds but is reported to the caller so it can emit the
// "symbol redefinition" warning (§7); colliding with an existing
// target is always a hard error.
func (t *SymbolTable) DefineSymbol(name string, v Value) (redefined bool, targetCollision bool) {
	if _, isTarget := t.targets[name]; isTarget {
		return false, true
	}
	_, redefined = t.symbols[name]
	t.symbols[name] = v
	return redefined, false
}

// DefineTarget binds name to an instruction address in the target
// namespace. Colliding with an existing symbol, or redefining the
// target at a different address, is a hard error reported by the
// caller.
func (t *SymbolTable) DefineTarget(name string, addr int) (symbolCollision bool, redefinedElsewhere bool) {
	if _, isSymbol := t.symbols[name]; isSymbol {
		return true, false
	}
	if existing, ok := t.targets[name]; ok && existing != addr {
		return false, true
	}
	t.targets[name] = addr
	return false, false
}

// AllocateDelay advances the process-wide delay cursor by length+1
// samples and returns the region's start offset. It fails if a single
// region's length alone would reach DelaySize, or if the region's end
// (start+length) would lie past DelaySize; a region ending exactly at
// DelaySize succeeds and leaves the cursor at DelaySize+1.
func (t *SymbolTable) AllocateDelay(length int64) (start int64, ok bool) {
	if length < 0 || length >= DelaySize {
		return 0, false
	}
	top := t.cursor + length
	if top > DelaySize {
		return 0, false
	}
	start = t.cursor
	t.cursor = top + 1
	return start, true
}

// BindDelayRegion stores the three derived accessors for a MEM
// allocation: NAME -> start, NAME^ -> start+length/2, NAME# -> start+length.
func (t *SymbolTable) BindDelayRegion(name string, start, length int64) {
	t.symbols[name] = intValue(start)
	t.symbols[name+"^"] = intValue(start + length/2)
	t.symbols[name+"#"] = intValue(start + length)
}
