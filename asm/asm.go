// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ndf-zz/asfv1/isa"
)

// Options configures a single assembly run: a handful of
// independently-meaningful settings rather than a large set of
// combinable flags, so it's a plain struct rather than a bitmask.
type Options struct {
	// Clamp makes an out-of-range operand a warning-and-clamp instead
	// of a hard error.
	Clamp bool
	// ExplicitNOP fills unused program slots with a chain of SKP 0,0
	// instructions instead of one collapsed unconditional skip.
	ExplicitNOP bool
	// SpinReals makes the bare integer literals 1, -1, 2, and -2 carry
	// a real tag at the point they're lexed, before any arithmetic, so
	// that e.g. "rdax REG0, 1" fills a fixed-point field the same way
	// "rdax REG0, 1.0" would.
	SpinReals bool
	// ProgramSlot records which of the 8 EEPROM program banks (0-7)
	// the program is meant for. Assemble does not read it; the HEX
	// base address is set by the slot passed to output.WriteHex.
	ProgramSlot int
	// MaxErrors aborts assembly once this many errors have
	// accumulated. Zero means unlimited.
	MaxErrors int
	// Quiet suppresses warnings from the returned Diagnostics.
	Quiet bool
	// Verbose, if non-nil, receives a line-by-line log of every
	// encoded instruction as it is assembled.
	Verbose io.Writer
}

// A Result is the outcome of a successful or partially-successful
// assembly: the 128-word program buffer, its checksum, and every
// diagnostic raised along the way.
type Result struct {
	Words       [128]uint32
	Used        int // number of program slots actually written by source, before fill
	Checksum    uint32
	Diagnostics []Diagnostic
}

// Assemble tokenizes and assembles source, returning a Result even
// when assembly fails so that callers can report partial diagnostics;
// err is non-nil exactly when the returned Result has no usable Words.
func Assemble(source string, opts Options) (*Result, error) {
	diags := newDiagSink(opts.MaxErrors, opts.Quiet)
	toks := lex(source, diags)

	a := &assembler{
		opts:  opts,
		sym:   NewSymbolTable(),
		diags: diags,
		toks:  toks,
	}
	a.run()

	res := &Result{
		Words:       a.words,
		Used:        a.used,
		Diagnostics: diags.diags,
	}
	res.Checksum = checksum(a.words[:])
	if diags.hasErrors() {
		return res, fmt.Errorf("assembly failed with %d error(s)", diags.errors)
	}
	return res, nil
}

func checksum(words []uint32) uint32 {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		b[4*i] = byte(w >> 24)
		b[4*i+1] = byte(w >> 16)
		b[4*i+2] = byte(w >> 8)
		b[4*i+3] = byte(w)
	}
	return crc32.ChecksumIEEE(b)
}

// A skipFixup records a SKP or JMP instruction whose offset operand
// named a target that had not yet been defined when the instruction
// was assembled. It is resolved once the whole source has been read,
// mirroring the reference's end-of-parse SKP-patching pass.
type skipFixup struct {
	addr      int
	condition uint32
	target    string
	line      int
}

// assembler drives a single Assemble call: a statement-by-statement
// walk of the token stream, maintaining an instruction cursor, the
// symbol table, and a list of deferred skip/jump fixups. Parsing,
// fixup resolution, and slot filling run as one pass, since only
// skip/jump targets ever need forward resolution.
type assembler struct {
	opts   Options
	sym    *SymbolTable
	diags  *diagSink
	toks   []token
	pos    int
	pc     int
	used   int
	words  [128]uint32
	fixups []skipFixup
}

func (a *assembler) run() {
	for !a.atEnd() {
		if a.diags.aborted() {
			a.diags.error(a.curLine(), "too many errors, aborting")
			a.used = a.pc
			return
		}
		a.statement()
	}
	a.resolveFixups()
	a.used = a.pc
	a.fillRemaining()
}

func (a *assembler) atEnd() bool {
	return a.pos >= len(a.toks) || a.toks[a.pos].kind == tokEOF
}

func (a *assembler) curLine() int {
	if a.pos < len(a.toks) {
		return a.toks[a.pos].line
	}
	return 0
}

// log writes a line to the verbose instruction trace when enabled.
func (a *assembler) log(format string, args ...any) {
	if a.opts.Verbose != nil {
		fmt.Fprintf(a.opts.Verbose, format, args...)
		fmt.Fprintln(a.opts.Verbose)
	}
}

func (a *assembler) logWord(addr int, word uint32) {
	a.log("%03d | %s", addr, byteString(wordBytes(word)))
}

func (a *assembler) peek() token { return a.toks[a.pos] }

func (a *assembler) advance() token {
	t := a.toks[a.pos]
	a.pos++
	return t
}

// skipToEOL discards tokens through the next EOL/EOF, used to recover
// after a statement-level error.
func (a *assembler) skipToEOL() {
	for !a.atEnd() && a.peek().kind != tokEOL {
		a.pos++
	}
	if !a.atEnd() {
		a.pos++ // consume the EOL itself
	}
}

func (a *assembler) statement() {
	t := a.peek()
	switch t.kind {
	case tokEOL:
		a.pos++
		return
	case tokLabel:
		a.pos++
		a.defineTarget(t.text, t.line)
		if a.peek().kind == tokEOL {
			a.pos++
			return
		}
		a.statement() // label sharing a line with an instruction
		return
	case tokIdent:
		a.identStatement()
		return
	default:
		a.diags.error(t.line, "unexpected token at start of statement")
		a.skipToEOL()
	}
}

func (a *assembler) defineTarget(name string, line int) {
	symCollide, redefined := a.sym.DefineTarget(name, a.pc)
	if symCollide {
		a.diags.error(line, "%s is already defined as a symbol", name)
	} else if redefined {
		a.diags.error(line, "target %s redefined at a different address", name)
	}
}

// identStatement handles the statement shapes that begin with a bare
// identifier: "NAME EQU expr" / "EQU NAME expr", "NAME MEM expr" /
// "MEM NAME expr", and "MNEMONIC operands...". EQU/MEM can lead with
// either the symbol name or the keyword itself; both orders appear in
// real FV-1 source, so the keyword is recognized in either position.
func (a *assembler) identStatement() {
	t := a.advance()
	if t.text == "EQU" && a.peek().kind == tokIdent {
		name := a.advance()
		a.parseEqu(name)
		return
	}
	if t.text == "MEM" && a.peek().kind == tokIdent {
		name := a.advance()
		a.parseMem(name)
		return
	}
	if a.peek().kind == tokIdent && a.peek().text == "EQU" {
		a.pos++
		a.parseEqu(t)
		return
	}
	if a.peek().kind == tokIdent && a.peek().text == "MEM" {
		a.pos++
		a.parseMem(t)
		return
	}
	a.parseInstruction(t)
}

func (a *assembler) parseEqu(name token) {
	v, ok := a.evalExpr()
	if !ok {
		a.skipToEOL()
		return
	}
	redefined, collide := a.sym.DefineSymbol(name.text, v)
	if collide {
		a.diags.error(name.line, "%s is already defined as a target", name.text)
	} else if redefined {
		a.diags.warn(name.line, "symbol %s redefined", name.text)
	}
	a.expectEOL()
}

func (a *assembler) parseMem(name token) {
	v, ok := a.evalExpr()
	if !ok {
		a.skipToEOL()
		return
	}
	if v.isReal() {
		a.diags.error(name.line, "MEM length must be an integer")
		a.expectEOL()
		return
	}
	start, ok := a.sym.AllocateDelay(v.I)
	if !ok {
		a.diags.error(name.line, "delay memory exhausted allocating %s (%d samples)", name.text, v.I)
		a.expectEOL()
		return
	}
	a.sym.BindDelayRegion(name.text, start, v.I)
	a.expectEOL()
}

// parseInstruction handles a mnemonic statement. SKP and JMP get
// bespoke handling for their possibly-forward-referenced target
// operand; every other mnemonic's operands are ordinary expressions.
func (a *assembler) parseInstruction(mnem token) {
	name := mnem.text
	def, ok := isa.Lookup(name)
	if !ok {
		a.diags.error(mnem.line, "unknown mnemonic %s", name)
		a.skipToEOL()
		return
	}

	if a.pc >= 128 {
		a.diags.error(mnem.line, "program exceeds 128 instructions")
		a.skipToEOL()
		return
	}

	switch name {
	case "SKP":
		a.parseSkp(mnem, 0)
		return
	case "JMP":
		a.parseSkp(mnem, 1)
		return
	}

	minArity, maxArity := def.Arity, def.Arity
	if name == "CHO" {
		minArity = 2
	}
	args, ok := a.parseOperands(minArity, maxArity)
	if !ok {
		a.skipToEOL()
		return
	}
	word, warnings, err := def.Encode(args, a.opts.Clamp)
	if err != nil {
		a.diags.error(mnem.line, "%s", err)
		a.expectEOL()
		return
	}
	for _, w := range warnings {
		a.diags.warn(mnem.line, "%s", w)
	}
	a.logWord(a.pc, word)
	a.words[a.pc] = word
	a.pc++
	a.expectEOL()
}

// parseSkp handles SKP (two operands: condition, offset) and JMP (one
// operand: offset, with condition fixed at 0). The offset operand is
// deferred to the end-of-source fixup pass when it is a single bare
// identifier that names neither a known symbol nor an already-defined
// target; otherwise it is evaluated immediately, which also covers a
// backward reference to an already-defined target.
func (a *assembler) parseSkp(mnem token, offsetIndex int) {
	var condition uint32
	if offsetIndex == 0 {
		v, ok := a.evalExpr()
		if !ok {
			a.skipToEOL()
			return
		}
		if v.isReal() {
			a.diags.error(mnem.line, "SKP condition must be an integer")
			a.expectEOL()
			return
		}
		if v.I > 0x1f {
			if !a.opts.Clamp {
				a.diags.error(mnem.line, "CONDITION out of range: %d", v.I)
				a.skipToEOL()
				return
			}
			a.diags.warn(mnem.line, "CONDITION clamped to %#x", 0x1f)
			v.I = 0x1f
		}
		condition = uint32(v.I) & 0x1f
		if !a.expectArgSep() {
			return
		}
	}

	addr := a.pc
	a.words[a.pc] = 0 // placeholder until resolved below or in the fixup pass
	a.pc++

	if name, deferred := a.bareUndefinedTarget(); deferred {
		a.fixups = append(a.fixups, skipFixup{addr: addr, condition: condition, target: name, line: mnem.line})
		a.expectEOL()
		return
	}

	if name, addrOf, ok := a.bareDefinedTarget(); ok {
		offset := addrOf - addr - 1
		if !a.checkSkipOffset(mnem.line, name, offset) {
			a.expectEOL()
			return
		}
		word, _, err := isa.Mnemonics["SKP"].Encode([]isa.Operand{isa.Int(int64(condition)), isa.Int(int64(offset))}, a.opts.Clamp)
		if err != nil {
			a.diags.error(mnem.line, "%s", err)
		}
		a.logWord(addr, word)
		a.words[addr] = word
		a.expectEOL()
		return
	}

	v, ok := a.evalExpr()
	if !ok {
		a.skipToEOL()
		return
	}
	if v.isReal() {
		a.diags.error(mnem.line, "SKP offset must be an integer")
		a.expectEOL()
		return
	}
	word, warnings, err := isa.Mnemonics["SKP"].Encode([]isa.Operand{isa.Int(int64(condition)), isa.Int(v.I)}, a.opts.Clamp)
	if err != nil {
		a.diags.error(mnem.line, "%s", err)
		a.expectEOL()
		return
	}
	for _, w := range warnings {
		a.diags.warn(mnem.line, "%s", w)
	}
	a.logWord(addr, word)
	a.words[addr] = word
	a.expectEOL()
}

func (a *assembler) checkSkipOffset(line int, target string, offset int) bool {
	if offset <= 0 {
		a.diags.error(line, "%s does not follow this SKP", target)
		return false
	}
	if offset > 63 {
		a.diags.error(line, "skip to %s is too large (%d instructions)", target, offset)
		return false
	}
	return true
}

// bareUndefinedTarget reports and consumes a lone identifier operand
// that is not yet bound anywhere, treating it as a forward target
// reference.
func (a *assembler) bareUndefinedTarget() (name string, ok bool) {
	if a.peek().kind != tokIdent {
		return "", false
	}
	next := a.toks[a.pos+1]
	if next.kind != tokEOL && next.kind != tokEOF && next.kind != tokArgSep {
		return "", false
	}
	t := a.peek()
	if _, isSym := a.sym.Lookup(t.text); isSym {
		return "", false
	}
	if _, isTarget := a.sym.IsTarget(t.text); isTarget {
		return "", false
	}
	a.pos++
	return t.text, true
}

// bareDefinedTarget reports and consumes a lone identifier operand
// that already names a defined target (a backward reference).
func (a *assembler) bareDefinedTarget() (name string, addr int, ok bool) {
	if a.peek().kind != tokIdent {
		return "", 0, false
	}
	next := a.toks[a.pos+1]
	if next.kind != tokEOL && next.kind != tokEOF && next.kind != tokArgSep {
		return "", 0, false
	}
	t := a.peek()
	addr, isTarget := a.sym.IsTarget(t.text)
	if !isTarget {
		return "", 0, false
	}
	a.pos++
	return t.text, addr, true
}

// resolveFixups patches every deferred SKP/JMP offset now that the
// whole source has been scanned.
func (a *assembler) resolveFixups() {
	for _, f := range a.fixups {
		addr, ok := a.sym.IsTarget(f.target)
		if !ok {
			a.diags.error(f.line, "undefined target %s", f.target)
			continue
		}
		offset := addr - f.addr - 1
		if !a.checkSkipOffset(f.line, f.target, offset) {
			continue
		}
		word, _, err := isa.Mnemonics["SKP"].Encode([]isa.Operand{isa.Int(int64(f.condition)), isa.Int(int64(offset))}, a.opts.Clamp)
		if err != nil {
			a.diags.error(f.line, "%s", err)
			continue
		}
		a.logWord(f.addr, word)
		a.words[f.addr] = word
	}
}

// fillRemaining pads unused program slots. By default it collapses
// the remainder into a single unconditional SKP that jumps over
// whatever follows, falling back to an explicit NOP chain when the
// remainder would not fit in SKP's 6-bit offset, or when the caller
// asked for explicit NOPs outright.
func (a *assembler) fillRemaining() {
	if a.pc >= 128 {
		return
	}
	remaining := 128 - a.pc
	a.log("-- filling %d unused slot(s) --", remaining)
	if a.opts.ExplicitNOP || remaining-1 > 63 {
		for a.pc < 128 {
			a.words[a.pc] = nopWord()
			a.logWord(a.pc, a.words[a.pc])
			a.pc++
		}
		return
	}
	word, _, _ := isa.Mnemonics["SKP"].Encode([]isa.Operand{isa.Int(0), isa.Int(int64(remaining - 1))}, true)
	a.logWord(a.pc, word)
	a.words[a.pc] = word
	a.pc++
	for a.pc < 128 {
		a.words[a.pc] = nopWord()
		a.logWord(a.pc, a.words[a.pc])
		a.pc++
	}
}

func nopWord() uint32 {
	word, _, _ := isa.Mnemonics["NOP"].Encode(nil, true)
	return word
}

// parseOperands reads between min and max comma-separated expressions
// (inclusive), stopping naturally at EOL/EOF.
func (a *assembler) parseOperands(min, max int) ([]isa.Operand, bool) {
	var args []isa.Operand
	for {
		if len(args) >= max {
			break
		}
		t := a.peek()
		if t.kind == tokEOL || t.kind == tokEOF {
			break
		}
		v, ok := a.evalExpr()
		if !ok {
			return nil, false
		}
		if v.isReal() {
			args = append(args, isa.Real(v.R))
		} else {
			args = append(args, isa.Int(v.I))
		}
		if a.peek().kind == tokArgSep {
			a.pos++
			continue
		}
		break
	}
	if len(args) < min {
		a.diags.error(a.curLine(), "too few operands")
		return nil, false
	}
	return args, true
}

// evalExpr parses and evaluates one expression starting at the
// current position, reporting any failure. On failure the position is
// left at the offending token; callers skip to EOL themselves.
func (a *assembler) evalExpr() (Value, bool) {
	p := &exprParser{diags: a.diags, spinReals: a.opts.SpinReals}
	e, next, err := p.parse(a.toks, a.pos)
	a.pos = next
	if err != nil {
		return Value{}, false
	}
	v, err := e.eval(a.sym)
	if err != nil {
		a.diags.error(e.line, "%s", err)
		return Value{}, false
	}
	return v, true
}

func (a *assembler) expectArgSep() bool {
	if a.peek().kind != tokArgSep {
		a.diags.error(a.curLine(), "expected ,")
		a.skipToEOL()
		return false
	}
	a.pos++
	return true
}

func (a *assembler) expectEOL() {
	if a.peek().kind != tokEOL && a.peek().kind != tokEOF {
		a.diags.error(a.curLine(), "unexpected extra operand")
		a.skipToEOL()
		return
	}
	if a.peek().kind == tokEOL {
		a.pos++
	}
}
