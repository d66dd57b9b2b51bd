// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"unicode/utf16"

	"github.com/ndf-zz/asfv1/asm"
	"github.com/ndf-zz/asfv1/output"
)

var (
	quiet       bool
	verbose     bool
	clamp       bool
	explicitNop bool
	spinReals   bool
	binOut      bool
	jsonOut     bool
	slot        int
	maxErrors   int
)

func init() {
	flag.BoolVar(&quiet, "q", false, "suppress warnings")
	flag.BoolVar(&verbose, "v", false, "verbose output")
	flag.BoolVar(&clamp, "c", false, "clamp out-of-range operands instead of erroring")
	flag.BoolVar(&explicitNop, "n", false, "pad unused program slots with explicit NOPs")
	flag.BoolVar(&spinReals, "s", false, "treat bare literals 1, -1, 2, -2 as reals")
	flag.IntVar(&slot, "p", 0, "target program slot (0-7)")
	flag.BoolVar(&binOut, "b", false, "write raw binary instead of Intel HEX")
	flag.BoolVar(&jsonOut, "j", false, "emit diagnostics as JSON instead of text")
	flag.BoolVar(&jsonOut, "json", false, "same as -j")
	flag.IntVar(&maxErrors, "e", 10, "abort after this many errors (0: unlimited)")
	flag.CommandLine.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: asfv1 [options] input.spn [output]\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	if slot < 0 || slot > 7 {
		fmt.Fprintln(os.Stderr, "asfv1: program slot must be between 0 and 7")
		os.Exit(1)
	}

	source, err := readSource(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "asfv1: %v\n", err)
		os.Exit(1)
	}

	opts := asm.Options{
		Clamp:       clamp,
		ExplicitNOP: explicitNop,
		SpinReals:   spinReals,
		ProgramSlot: slot,
		MaxErrors:   maxErrors,
		Quiet:       quiet,
	}
	if verbose {
		opts.Verbose = os.Stderr
	}
	res, err := asm.Assemble(source, opts)

	reportDiagnostics(res.Diagnostics)
	if verbose {
		fmt.Fprintf(os.Stderr, "asfv1: %d of 128 instructions used, checksum %#08x\n", res.Used, res.Checksum)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "asfv1: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if len(args) >= 2 {
		f, ferr := os.Create(args[1])
		if ferr != nil {
			fmt.Fprintf(os.Stderr, "asfv1: %v\n", ferr)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if binOut {
		out.Write(output.WriteBinary(res.Words))
	} else {
		io.WriteString(out, output.WriteHex(res.Words, slot))
	}
}

func reportDiagnostics(diags []asm.Diagnostic) {
	if jsonOut {
		enc := json.NewEncoder(os.Stderr)
		for _, d := range diags {
			enc.Encode(struct {
				Line     int    `json:"line"`
				Severity string `json:"severity"`
				Message  string `json:"message"`
			}{d.Line, d.SeverityName(), d.Message})
		}
		return
	}
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

// readSource loads the input file and normalizes it to UTF-8,
// sniffing for a UTF-16 byte-order mark or, failing that, the
// alternating-zero-byte pattern typical of UTF-16 text saved without
// one — both common from Windows-only FV-1 development tools.
func readSource(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeSource(raw), nil
}

func decodeSource(raw []byte) string {
	switch {
	case len(raw) >= 2 && raw[0] == 0xff && raw[1] == 0xfe:
		return utf16Decode(raw[2:], false)
	case len(raw) >= 2 && raw[0] == 0xfe && raw[1] == 0xff:
		return utf16Decode(raw[2:], true)
	case len(raw) >= 3 && raw[0] == 0xef && raw[1] == 0xbb && raw[2] == 0xbf:
		return string(raw[3:])
	case looksLikeUTF16(raw):
		return utf16Decode(raw, false)
	}
	return string(raw)
}

// looksLikeUTF16 is a heuristic for BOM-less UTF-16LE text: ASCII
// source code alternates a printable low byte with a zero high byte.
func looksLikeUTF16(raw []byte) bool {
	if len(raw) < 4 || len(raw)%2 != 0 {
		return false
	}
	zeros := 0
	pairs := len(raw) / 2
	for i := 1; i < len(raw); i += 2 {
		if raw[i] == 0 {
			zeros++
		}
	}
	return zeros > pairs*3/4
}

func utf16Decode(raw []byte, bigEndian bool) string {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	u16 := make([]uint16, len(raw)/2)
	for i := range u16 {
		if bigEndian {
			u16[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
		} else {
			u16[i] = uint16(raw[2*i+1])<<8 | uint16(raw[2*i])
		}
	}
	return string(utf16.Decode(u16))
}
