package testrunner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"

	"github.com/tinyrange/jitasm/internal/asm"
)

var (
	styleTitle = ansi.Style{}.Bold().ForegroundColor(ansi.Cyan)
	stylePass  = ansi.Style{}.ForegroundColor(ansi.Green)
	styleFail  = ansi.Style{}.Bold().ForegroundColor(ansi.Red)
	styleWarn  = ansi.Style{}.ForegroundColor(ansi.Yellow)
	styleDim   = ansi.Style{}.Faint()
	styleBold  = ansi.Style{}.Bold()
)

const bannerWidth = 40

// Output prints progress, styled when writing to a terminal. A nil *Output
// discards everything.
type Output struct {
	w     io.Writer
	isTTY bool
	mu    sync.Mutex
}

// NewOutput writes to w. Styling is enabled when w is a terminal.
func NewOutput(w io.Writer) *Output {
	o := &Output{w: w}
	if f, ok := w.(*os.File); ok {
		o.isTTY = term.IsTerminal(int(f.Fd()))
	}
	return o
}

// IsTTY returns whether the output is a terminal.
func (o *Output) IsTTY() bool {
	return o != nil && o.isTTY
}

func (o *Output) style(s ansi.Style, text string) string {
	if !o.isTTY {
		return text
	}
	return s.Styled(text)
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

// padCenter centres text by display width, so styled or wide text lines up.
func padCenter(text string, width int) string {
	w := ansi.StringWidth(text)
	if w >= width {
		return text
	}
	left := (width - w) / 2
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", width-w-left)
}

// padRight pads text to width display columns.
func padRight(text string, width int) string {
	if w := ansi.StringWidth(text); w < width {
		return text + strings.Repeat(" ", width-w)
	}
	return text
}

// PrintBanner prints a styled banner at the start of the run.
func (o *Output) PrintBanner(programs, cases int) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("\n%s\n", o.style(styleTitle, "╭"+strings.Repeat("─", bannerWidth)+"╮"))
		o.printf("%s%s%s\n", o.style(styleTitle, "│"), o.style(styleBold, padCenter("jitasm program runner", bannerWidth)), o.style(styleTitle, "│"))
		o.printf("%s\n", o.style(styleTitle, "╰"+strings.Repeat("─", bannerWidth)+"╯"))
		o.printf("  %s %d programs, %d cases\n\n", o.style(styleDim, "Running"), programs, cases)
	} else {
		o.printf("=== PROGRAM RUNNER ===\n")
		o.printf("Running %d programs, %d cases\n\n", programs, cases)
	}
}

// PrintProgramHeader prints the header for a program.
func (o *Output) PrintProgramHeader(name string, arch asm.Arch) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("%s %s %s\n", o.style(styleTitle, "▶"), o.style(styleBold, name), o.style(styleDim, string(arch)))
	} else {
		o.printf("=== %s (%s) ===\n", name, arch)
	}
}

// PrintProgramError prints a failure that stopped a whole program.
func (o *Output) PrintProgramError(err string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("  %s %s\n", o.style(styleFail, "✗"), o.style(styleFail, err))
	} else {
		o.printf("    ERROR: %s\n", err)
	}
}

// PrintCasePass prints a passing case.
func (o *Output) PrintCasePass(name string, d time.Duration) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("  %s %s %s\n", o.style(stylePass, "✓"), name, o.style(styleDim, fmt.Sprintf("(%s)", d.Round(time.Microsecond))))
	} else {
		o.printf("    PASS  %s\n", name)
	}
}

// PrintCaseSkip prints a skipped case.
func (o *Output) PrintCaseSkip(name, reason string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("  %s %s %s\n", o.style(styleWarn, "-"), name, o.style(styleDim, reason))
	} else {
		o.printf("    SKIP  %s (%s)\n", name, reason)
	}
}

// PrintCaseFail prints a failing case with its arguments and results.
func (o *Output) PrintCaseFail(name, msg string, details *CaseDetails) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isTTY {
		o.printf("  %s %s\n", o.style(styleFail, "✗"), o.style(styleFail, name))
		o.printf("    %s %s\n", o.style(styleDim, "→"), o.style(styleWarn, msg))
	} else {
		o.printf("    FAIL  %s:\n", name)
		o.printf("      %s\n", msg)
	}
	if details == nil {
		return
	}
	for _, row := range detailRows(details) {
		o.printf("      %s %s\n", o.style(styleDim, padRight(row[0]+":", 6)), row[1])
	}
}

func detailRows(d *CaseDetails) [][2]string {
	hex := func(vs []uint64) string {
		parts := make([]string, len(vs))
		for i, v := range vs {
			parts[i] = fmt.Sprintf("0x%x", v)
		}
		return strings.Join(parts, " ")
	}
	return [][2]string{
		{"args", hex(d.Args)},
		{"got", hex(d.Got[:max(len(d.Want), 1)])},
		{"want", hex(d.Want)},
	}
}

// PrintResults prints the final summary.
func (o *Output) PrintResults(results *Results) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var line string
	if results.Failed > 0 {
		line = fmt.Sprintf("FAILED: %d/%d cases passed", results.Passed, results.Total)
	} else {
		line = fmt.Sprintf("PASSED: %d/%d cases", results.Passed, results.Total)
	}
	if results.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", results.Skipped)
	}

	o.printf("\n")
	if o.isTTY {
		s := stylePass
		if results.Failed > 0 {
			s = styleFail
		}
		o.printf("%s\n", o.style(s, "╭"+strings.Repeat("─", bannerWidth)+"╮"))
		o.printf("%s%s%s\n", o.style(s, "│"), o.style(s, padCenter(line, bannerWidth)), o.style(s, "│"))
		o.printf("%s\n", o.style(s, "╰"+strings.Repeat("─", bannerWidth)+"╯"))
		o.printf("  %s %d programs in %s\n\n", o.style(styleDim, "Completed"), len(results.Programs), results.Duration.Round(time.Millisecond))
	} else {
		o.printf("%s (%d programs, %s)\n", line, len(results.Programs), results.Duration.Round(time.Millisecond))
	}
}

// PrintListing prints a listing with each instruction's index, aligning the
// text column by display width.
func (o *Output) PrintListing(ins []asm.Ins) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	width := ansi.StringWidth(fmt.Sprint(len(ins)))
	for i, in := range ins {
		idx := padRight(fmt.Sprint(i), width)
		text := in.String()
		if _, ok := in.(asm.DefLabel); ok {
			text = o.style(styleTitle, text)
		} else {
			text = "  " + text
		}
		o.printf("%s  %s\n", o.style(styleDim, idx), text)
	}
}
