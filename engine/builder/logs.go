package builder

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// go vet and the compiler report as file.go:line:col: message
var goDiagnostic = regexp.MustCompile(`^\S+\.go:\d+(:\d+)?: `)

// ClassifyLine picks the log severity of one line of toolchain output.
func ClassifyLine(line string) Severity {
	if goDiagnostic.MatchString(strings.TrimSpace(line)) {
		return SeverityError
	}
	lower := " " + strings.ToLower(line) + " "
	switch {
	case strings.Contains(lower, " error ") || strings.Contains(lower, "error:"):
		return SeverityError
	case strings.Contains(lower, " warning"):
		return SeverityWarning
	}
	return SeverityInfo
}

// logOutput writes every non-empty line of output at its severity and
// returns how many errors and warnings it saw. Output after a line longer
// than the scanner buffer is not classified; the scanner error is logged
// and returned.
func logOutput(logger *core.Logger, output []byte) (errs, warnings int, err error) {
	sc := bufio.NewScanner(bytes.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch ClassifyLine(line) {
		case SeverityError:
			errs++
			logger.Error(line)
		case SeverityWarning:
			warnings++
			logger.Warn(line)
		default:
			logger.Info(line)
		}
	}
	if err := sc.Err(); err != nil {
		logger.Warnf("toolchain output truncated: %s", err)
		return errs, warnings, err
	}
	return errs, warnings, nil
}
