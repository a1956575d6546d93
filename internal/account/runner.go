// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package account

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/toeirei/keysync/internal/logging"
)

// Runner executes account management commands such as useradd.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands on the host. Each command is bounded by Timeout
// when it is positive.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes name with args and returns an error carrying the command line
// and its combined output when it fails. When ctx ends first its error is
// wrapped instead.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmdCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	logging.Debugf("exec: %s", cmdline)

	output, err := exec.CommandContext(cmdCtx, name, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", cmdline, ctx.Err())
		}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: timed out after %s: %w", cmdline, r.Timeout, cmdCtx.Err())
		}
		return fmt.Errorf("%s: %w: %s", cmdline, err, strings.TrimSpace(string(output)))
	}
	return nil
}
