// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "testing"

func assemble(t *testing.T, src string) *Result {
	t.Helper()
	res, err := Assemble(src, Options{MaxErrors: 10})
	if err != nil {
		t.Fatalf("assemble(%q): %v\ndiagnostics: %v", src, err, res.Diagnostics)
	}
	return res
}

func assembleError(t *testing.T, src string) error {
	t.Helper()
	_, err := Assemble(src, Options{MaxErrors: 10})
	if err == nil {
		t.Fatalf("assemble(%q): expected an error, got none", src)
	}
	return err
}

func TestSimpleInstruction(t *testing.T) {
	res := assemble(t, "sof 0.5, 0.0\n")
	// SOF opcode 0x0d, MULT=S1_14(0.5)=0x2000<<16, OFFSET=0
	want := uint32(0x0d) | uint32(0x2000)<<16
	if res.Words[0] != want {
		t.Errorf("got %#08x, want %#08x", res.Words[0], want)
	}
}

func TestExpressionPrecedence(t *testing.T) {
	res := assemble(t, "x EQU 2+3*4\nraw x\n")
	if res.Words[0] != 14 {
		t.Errorf("expected 2+3*4=14, got %d", res.Words[0])
	}
}

func TestExpressionPowerIsRightAssociative(t *testing.T) {
	res := assemble(t, "x EQU 2**3**2\nraw x\n")
	// right-associative: 2**(3**2) = 2**9 = 512, not (2**3)**2 = 64
	if res.Words[0] != 512 {
		t.Errorf("expected 2**3**2=512, got %d", res.Words[0])
	}
}

func TestExpressionShiftAndMask(t *testing.T) {
	res := assemble(t, "x EQU (1<<4) | 3\nraw x\n")
	if res.Words[0] != 19 {
		t.Errorf("expected (1<<4)|3=19, got %d", res.Words[0])
	}
}

func TestEquDefinesSymbol(t *testing.T) {
	res := assemble(t, "level EQU 0.5\nsof level, 0.0\n")
	want := uint32(0x0d) | uint32(0x2000)<<16
	if res.Words[0] != want {
		t.Errorf("got %#08x, want %#08x", res.Words[0], want)
	}
}

func TestMemDefinesDelayAccessors(t *testing.T) {
	res := assemble(t, "dly MEM 1000\nrda dly, 0.5\nrda dly^, 0.5\nrda dly#, 0.5\n")
	offset := (res.Words[0] >> 5) & 0x7fff
	if offset != 0 {
		t.Errorf("expected dly to start at offset 0, got %d", offset)
	}
}

func TestMemAcceptsKeywordFirstOrder(t *testing.T) {
	res := assemble(t, "MEM dly 1000\nrda dly, 0.5\n")
	offset := (res.Words[0] >> 5) & 0x7fff
	if offset != 0 {
		t.Errorf("expected dly to start at offset 0, got %d", offset)
	}
}

func TestEquAcceptsKeywordFirstOrder(t *testing.T) {
	res := assemble(t, "EQU level 0.5\nsof level, 0.0\n")
	want := uint32(0x0d) | uint32(0x2000)<<16
	if res.Words[0] != want {
		t.Errorf("got %#08x, want %#08x", res.Words[0], want)
	}
}

func TestDelayAllocationAtCeilingSucceeds(t *testing.T) {
	// a alone uses all 32768 samples; b then allocates 0 more at the
	// boundary the cursor lands on.
	assemble(t, "a MEM 32767\nb MEM 0\n")
}

func TestSingleDelayAllocationAtDelaySizeFails(t *testing.T) {
	assembleError(t, "a MEM 32768\n")
}

func TestDelayAllocationsSummingPastCeilingFail(t *testing.T) {
	assembleError(t, "a MEM 32767\nb MEM 1\n")
}

func TestFloorDivByZeroIsAnError(t *testing.T) {
	assembleError(t, "raw 5//0\n")
}

func TestBackwardSkipIsAnError(t *testing.T) {
	// SKP only ever moves forward over the instructions that follow
	// it; a target at or before the SKP itself can never produce a
	// positive offset.
	assembleError(t, "top:\n  sof 0.0,0.0\n  skp run, top\n")
}

func TestForwardSkip(t *testing.T) {
	res := assemble(t, "skp run, there\nsof 0.0,0.0\nthere:\nsof 0.0,0.0\n")
	offsetField := (res.Words[0] >> 21) & 0x3f
	if offsetField != 1 {
		t.Errorf("expected forward skip offset 1, got %d", offsetField)
	}
}

func TestJmpIsSkpWithConditionZero(t *testing.T) {
	res := assemble(t, "jmp there\nsof 0.0,0.0\nthere:\nsof 0.0,0.0\n")
	condition := (res.Words[0] >> 27) & 0x1f
	if condition != 0 {
		t.Errorf("expected JMP to carry condition 0, got %d", condition)
	}
}

func TestUndefinedSkipTargetIsAnError(t *testing.T) {
	assembleError(t, "skp run, nowhere\nsof 0.0,0.0\n")
}

func TestPseudoMnemonics(t *testing.T) {
	res := assemble(t, "clr\n")
	if res.Words[0] != 0x0e {
		t.Errorf("CLR should encode AND 0, got %#08x", res.Words[0])
	}
}

func TestRegisterNamesResolve(t *testing.T) {
	res := assemble(t, "rdax adcl, 0.5\n")
	reg := (res.Words[0] >> 5) & 0x3f
	if reg != 0x14 {
		t.Errorf("expected ADCL register 0x14, got %#x", reg)
	}
}

func TestProgramOverflowIsAnError(t *testing.T) {
	var src string
	for i := 0; i < 129; i++ {
		src += "nop\n"
	}
	assembleError(t, src)
}

func TestFillsRemainingSlotsWithCollapsedSkip(t *testing.T) {
	var src string
	for i := 0; i < 120; i++ {
		src += "sof 0.0,0.0\n"
	}
	res := assemble(t, src)
	condition := (res.Words[120] >> 27) & 0x1f
	offset := (res.Words[120] >> 21) & 0x3f
	if condition != 0 || offset != 7 {
		t.Errorf("expected a collapsed SKP 0,7 fill, got condition=%d offset=%d", condition, offset)
	}
	if res.Words[121] != 0x11 {
		t.Errorf("expected the skipped-over tail to be filled with NOP, got %#08x", res.Words[121])
	}
}

func TestSpinRealsTagsBareLiteralsAsReal(t *testing.T) {
	res, err := Assemble("rdax reg0, 1\n", Options{SpinReals: true, MaxErrors: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// spinreals on: bare "1" is Value{Real, 1.0}, fixed-point S1_14(1.0)=0x4000
	mult := (res.Words[0] >> 16) & 0xffff
	if mult != 0x4000 {
		t.Errorf("expected MULT 0x4000 under spinreals, got %#x", mult)
	}
}

func TestWithoutSpinRealsBareLiteralIsInteger(t *testing.T) {
	res := assemble(t, "rdax reg0, 1\n")
	// spinreals off: bare "1" is the plain integer 1 placed in the
	// 16-bit field, not scaled as a fixed-point value.
	mult := (res.Words[0] >> 16) & 0xffff
	if mult != 1 {
		t.Errorf("expected MULT 1, got %#x", mult)
	}
}

func TestExplicitNopFill(t *testing.T) {
	res, err := Assemble("sof 0.0,0.0\n", Options{ExplicitNOP: true, MaxErrors: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Words[1] != 0x11 {
		t.Errorf("expected an explicit NOP (SKP 0,0), got %#08x", res.Words[1])
	}
}
