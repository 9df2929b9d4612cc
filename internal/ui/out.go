package ui

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Styled output goes to stderr so stdout stays clean for --json
// consumers and shell pipelines.

var styled = term.IsTerminal(int(os.Stderr.Fd())) &&
	termenv.NewOutput(os.Stderr).ColorProfile() != termenv.Ascii

// Verbose enables Debugf; set from the --verbose flag.
var Verbose bool

// Successf prints a green checkmarked line to stderr.
func Successf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if styled {
		fmt.Fprintln(os.Stderr, RenderPass(IconPass+" "+msg))
		return
	}
	fmt.Fprintln(os.Stderr, IconPass+" "+msg)
}

// Warnf prints a yellow warning line to stderr.
func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if styled {
		fmt.Fprintln(os.Stderr, RenderWarn(IconWarn+" "+msg))
		return
	}
	fmt.Fprintln(os.Stderr, IconWarn+" "+msg)
}

// Errorf prints a red error line to stderr.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if styled {
		fmt.Fprintln(os.Stderr, RenderFail(IconFail+" "+msg))
		return
	}
	fmt.Fprintln(os.Stderr, IconFail+" "+msg)
}

// Infof prints a muted informational line to stderr.
func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if styled {
		fmt.Fprintln(os.Stderr, RenderMuted(msg))
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}

// Debugf prints a muted diagnostic line to stderr when Verbose is set.
func Debugf(format string, args ...any) {
	if !Verbose {
		return
	}
	Infof(format, args...)
}
