// Package classifier runs the external diff classifier that scores how much
// a package changed between two source snapshots.
package classifier

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/stagectl/internal/logging"
)

// Input names the snapshot pair to classify.
type Input struct {
	// Dir is the working directory of the classifier run.
	Dir    string
	OldDir string
	NewDir string
	// NewVersion is passed as NEW_VERSION when set.
	NewVersion string
}

// Result is the outcome of a classifier run that started.
type Result struct {
	ExitCode int
	// Lines is the merged output, escape bytes removed and the DIFFCOUNT
	// marker stripped.
	Lines []string
	// Magnitude is only meaningful when HasMarker is set.
	Magnitude int
	HasMarker bool
}

// Succeeded reports whether the classifier exited zero.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Output joins Lines for display.
func (r Result) Output() string { return strings.Join(r.Lines, "\n") }

// Classifier scores the difference between two snapshots. An error means
// the classifier could not run at all; a non-zero exit is reported through
// Result.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Result, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, in Input) (Result, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, in Input) (Result, error) { return f(ctx, in) }

const markerPrefix = "DIFFCOUNT"

// Wrapper for exec to allow testing
var execCommandContext = exec.CommandContext

// ExecClassifier runs an external command as
// "<command...> <old dir> <new dir>" with LC_ALL=C.
type ExecClassifier struct {
	command []string
	timeout time.Duration
	logger  *logging.Logger
}

// NewExecClassifier returns a classifier running command. A zero timeout
// means no limit. logger may be nil.
func NewExecClassifier(command []string, timeout time.Duration, logger *logging.Logger) *ExecClassifier {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ExecClassifier{command: command, timeout: timeout, logger: logger}
}

// Classify runs the command and parses its output.
func (c *ExecClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	if len(c.command) == 0 {
		return Result{}, fmt.Errorf("classifier command is not configured")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.command[1:]...), in.OldDir, in.NewDir)
	cmd := execCommandContext(ctx, c.command[0], args...)
	cmd.Dir = in.Dir
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	if in.NewVersion != "" {
		cmd.Env = append(cmd.Env, "NEW_VERSION="+in.NewVersion)
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok || ctx.Err() != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return Result{}, fmt.Errorf("run classifier %s: %w", c.command[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	lines, magnitude, hasMarker := ParseOutput(out)
	c.logger.Debug("classifier finished",
		"exit_code", exitCode,
		"lines", len(lines),
		"has_marker", hasMarker,
		"magnitude", magnitude,
		"duration", time.Since(start).String(),
	)
	return Result{ExitCode: exitCode, Lines: lines, Magnitude: magnitude, HasMarker: hasMarker}, nil
}

// ParseOutput strips terminal escape sequences from out, splits it into
// lines and removes a trailing "DIFFCOUNT <n>" marker, returning its value.
func ParseOutput(out []byte) (lines []string, magnitude int, hasMarker bool) {
	text := strings.ReplaceAll(string(out), "\r\n", "\n")
	text = strings.ReplaceAll(ansi.Strip(text), "\x1b", "")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, 0, false
	}
	lines = strings.Split(text, "\n")

	last := lines[len(lines)-1]
	if strings.HasPrefix(last, markerPrefix) {
		fields := strings.Fields(last)
		if len(fields) >= 2 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n >= 0 {
				return lines[:len(lines)-1], n, true
			}
		}
	}
	return lines, 0, false
}
