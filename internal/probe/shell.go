// Package probe implements the two primitive probes monitors use to obtain
// a raw Value: an external shell command and an SNMP GET.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nkazuki-labs/monitor-agent/internal/value"
)

// ProbeError reports a shell or SNMP probe failure. The monitor evaluates
// to absent; the pass continues.
type ProbeError struct {
	Kind   string // "shell" or "snmp"
	Arg    string
	Reason string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe: %s %q: %s", e.Kind, e.Arg, e.Reason)
}

// Shell runs command through a shell, reads the first line of stdout, trims
// trailing whitespace, and parses it via value.String: output that parses
// entirely as a finite double becomes a Number, anything else stays a
// String (the engine may still split it into a Vector). It returns absent
// (nil, nil) when the spawn fails or no bytes are read; neither is fatal to
// the pass. The child's exit status is intentionally not checked.
func Shell(ctx context.Context, command string, logger *slog.Logger) (*value.Value, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopDiscard{}, nil))
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProbeError{Kind: "shell", Arg: command, Reason: err.Error()}
	}
	if startErr := cmd.Start(); startErr != nil {
		logger.Error("probe: shell spawn failed", "command", command, "error", startErr.Error())
		return nil, nil
	}

	scanner := bufio.NewScanner(out)
	var line string
	var ok bool
	if scanner.Scan() {
		line = scanner.Text()
		ok = true
	}
	_ = cmd.Wait() // exit status intentionally unchecked

	if !ok {
		logger.Error("probe: shell produced no output", "command", command)
		return nil, nil
	}

	trimmed := strings.TrimRight(line, " \t\r\n")
	logger.Debug("probe: shell response", "command", command, "output", trimmed)
	return value.String(trimmed), nil
}

type noopDiscard struct{}

func (noopDiscard) Write(p []byte) (int, error) { return len(p), nil }
