package console

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// errAborted is returned by Prompt when the user presses Ctrl-C.
var errAborted = errors.New("input aborted")

// lineReader prompts for and returns one line of input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// scanReader reads plain lines, for pipes and tests.
type scanReader struct {
	scanner *bufio.Scanner
	out     *syncWriter
}

func newScanReader(in io.Reader, out *syncWriter) *scanReader {
	return &scanReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *scanReader) Prompt(prompt string) (string, error) {
	r.out.printf("%s", prompt)
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error {
	return nil
}

// linerReader adds line editing, completion and history on a terminal.
type linerReader struct {
	line        *liner.State
	historyPath string
}

func newLinerReader(historyPath string, names []string) *linerReader {
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	l.SetCompleter(func(line string) []string {
		var out []string
		for _, n := range names {
			if strings.HasPrefix(n, strings.ToLower(line)) {
				out = append(out, n)
			}
		}
		return out
	})

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = l.ReadHistory(f)
			_ = f.Close()
		}
	}
	return &linerReader{line: l, historyPath: historyPath}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	s, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errAborted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) != "" {
		r.line.AppendHistory(s)
	}
	return s, nil
}

func (r *linerReader) Close() error {
	if r.historyPath != "" {
		if f, err := os.Create(r.historyPath); err == nil {
			_, _ = r.line.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.line.Close()
}
