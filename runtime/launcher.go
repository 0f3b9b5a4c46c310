package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"lobby-lab/contract"
	"lobby-lab/errors"
)

// ExecLauncher starts game servers as child processes of the lobby. The
// children are tied to the lobby's lifetime through platform attributes,
// preventing orphans when the lobby itself dies.
type ExecLauncher struct {
	log *slog.Logger
}

func NewExecLauncher(log *slog.Logger) *ExecLauncher {
	return &ExecLauncher{log: log}
}

func (l *ExecLauncher) Launch(ctx context.Context, spec contract.LaunchSpec) (contract.ProcessHandle, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrSpawnFailed, ctx.Err())
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setPlatformSpecificAttrs(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrSpawnFailed, err)
	}

	l.log.Info("Game server process started",
		"command", spec.Command, "dir", spec.Dir, "pid", cmd.Process.Pid)
	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Wait() error {
	return h.cmd.Wait()
}

func (h *execHandle) Kill() error {
	return h.cmd.Process.Kill()
}
