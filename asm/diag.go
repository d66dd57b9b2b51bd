// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "fmt"

// Severity classifies a Diagnostic as recoverable or fatal.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// A Diagnostic reports a single warning or error produced while
// assembling a program, tagged with the 1-based source line on which
// the offending token was read.
type Diagnostic struct {
	Line     int      `json:"line"`
	Severity Severity `json:"-"`
	Message  string   `json:"message"`
}

// SeverityName returns the diagnostic's severity as a JSON-friendly string,
// used by the asfv1 command's JSON diagnostics output.
func (d Diagnostic) SeverityName() string {
	return d.Severity.String()
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Severity, d.Message)
}

// A diagSink accumulates diagnostics during lexing and assembly, and
// aborts parsing once too many errors have accumulated (MAXERR).
type diagSink struct {
	diags     []Diagnostic
	errors    int
	maxErrors int
	quiet     bool
}

func newDiagSink(maxErrors int, quiet bool) *diagSink {
	return &diagSink{maxErrors: maxErrors, quiet: quiet}
}

func (d *diagSink) warn(line int, format string, args ...any) {
	diag := Diagnostic{Line: line, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
	if !d.quiet {
		d.diags = append(d.diags, diag)
	}
}

func (d *diagSink) error(line int, format string, args ...any) {
	d.diags = append(d.diags, Diagnostic{Line: line, Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
	d.errors++
}

// aborted reports whether the error count has reached the configured
// threshold. A zero threshold means unlimited.
func (d *diagSink) aborted() bool {
	return d.maxErrors > 0 && d.errors >= d.maxErrors
}

func (d *diagSink) hasErrors() bool {
	return d.errors > 0
}

// errorStrings returns only the fatal diagnostics, formatted for display.
func (d *diagSink) errorStrings() []string {
	out := make([]string, 0, d.errors)
	for _, diag := range d.diags {
		if diag.Severity == SeverityError {
			out = append(out, diag.String())
		}
	}
	return out
}
