package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// commandWaitDelay bounds how long a killed command may hold its output pipes open.
const commandWaitDelay = 5 * time.Second

// RunCommand runs argv with extra environment variables and returns its exit code and
// combined output. A non-zero exit is not an error; failing to start or being killed
// by ctx is.
func RunCommand(ctx context.Context, argv []string, env []string, dir string) (int, string, error) {
	if len(argv) == 0 {
		return -1, "", errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Dir = dir
	cmd.WaitDelay = commandWaitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, out.String(), fmt.Errorf("%s: %w", argv[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), out.String(), nil
	}
	if err != nil {
		return -1, out.String(), fmt.Errorf("run %s: %w", argv[0], err)
	}
	return 0, out.String(), nil
}
