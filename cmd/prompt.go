package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"onedl/internal"
	"onedl/resolver"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// errInvalidChoice is returned when a menu answer is not one of the options
var errInvalidChoice = errors.New("invalid choice")

// prompter reads answers from the terminal
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints label and returns the trimmed answer. EOF on an empty line
// is an error so scripted input cannot loop forever.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// choose lists options numbered from 1 and returns the chosen index (0-based)
func (p *prompter) choose(title string, options []string) (int, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, cyan(title))
	for i, opt := range options {
		fmt.Fprintf(p.out, "%s. %s\n", yellow(i+1), opt)
	}

	answer, err := p.ask("Enter your choice: ")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(options) {
		return 0, fmt.Errorf("%w: %q", errInvalidChoice, answer)
	}
	return n - 1, nil
}

// lines reads one input per line until an empty line or EOF
func (p *prompter) lines(label string) []string {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, label)

	var text []string
	for {
		line, err := p.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		text = append(text, line)
		if err != nil {
			break
		}
	}
	return resolver.ReadInputs(strings.Join(text, "\n"))
}

// selectFiles shows the candidates and parses the answer; an empty answer
// selects everything
func (p *prompter) selectFiles(files []internal.RemoteFile) internal.SelectionSet {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, cyan("Select files:"))
	for i, f := range files {
		fmt.Fprintf(p.out, "%s. %s %s\n", yellow(i+1), f.Name, sizeLabel(f.Size))
	}

	answer, err := p.ask("Enter numbers separated by commas, ranges like 2-5, or 'all' (default all): ")
	if err != nil {
		answer = ""
	}
	set := resolver.ParseSelection(answer, len(files))
	if len(set) == 0 {
		fmt.Fprintln(p.out, red("Nothing selected."))
	}
	return set
}

func sizeLabel(size int64) string {
	if size <= 0 {
		return ""
	}
	return "(" + humanize.IBytes(uint64(size)) + ")"
}

func probeLabel(r internal.CacheProbeResult) string {
	switch r {
	case internal.ProbeCached:
		return green("Cached")
	case internal.ProbeNotCached:
		return yellow("Not Cached")
	case internal.ProbeNotSupported:
		return red("Not Supported")
	default:
		return "Unknown"
	}
}

// status helpers write to stderr-like outputs and honor quiet mode
type console struct {
	out   io.Writer
	quiet bool
}

func (c console) info(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintln(c.out, cyan(fmt.Sprintf(format, args...)))
	}
}

func (c console) success(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintln(c.out, green(fmt.Sprintf(format, args...)))
	}
}

func (c console) warn(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintln(c.out, yellow(fmt.Sprintf(format, args...)))
	}
}

// fail is printed even in quiet mode
func (c console) fail(format string, args ...interface{}) {
	fmt.Fprintln(c.out, red(fmt.Sprintf(format, args...)))
}
