package verscepter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout is the time an execution of a single version may take if no timeout is configured
	DefaultTimeout = time.Minute

	// GracePeriod is the duration output pipes of a killed script are kept open.
	// The whole process group is killed, so this only matters if the script handed its pipes to another group.
	GracePeriod = 3 * time.Second
)

// A ScriptExecutor runs a shell script on the local machine for every version.
// The script receives the version under test through the environment variables VERSION, VERSION_SOURCE and VERSION_STATE
// and is expected to use the matching runtime, e.g. through a version manager.
type ScriptExecutor struct {
	Script string // The script to be run using sh -c. Exiting with 0 means the version is good

	// The path to a directory holding the snippet under test. It is copied into a fresh working directory for every run.
	// If empty, the script runs in an empty working directory.
	SnippetPath string

	Env map[string]string // Additional environment variables for the script

	Timeout time.Duration // How long a single run may take. Defaults to DefaultTimeout

	Log *logrus.Entry
}

// Run runs the executor's script against the passed version
func (e *ScriptExecutor) Run(ctx context.Context, version VersionRecord) (RunResult, error) {
	log := e.Log
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}

	timeout := e.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dir, err := os.MkdirTemp("", "verscepter-")
	if err != nil {
		return Invalid, err
	}
	defer os.RemoveAll(dir)

	if e.SnippetPath != "" {
		if err := copy.Copy(e.SnippetPath, dir, copy.Options{Specials: true}); err != nil {
			return Invalid, errors.Join(fmt.Errorf("failed to copy snippet %s to %s", e.SnippetPath, dir), err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", e.Script)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), versionEnv(version, e.Env)...)
	killGroupOnCancel(cmd)

	out, err := cmd.CombinedOutput()
	log.Tracef("Output of script for version %s:\n%s", version, out)

	// Parent context was cancelled
	if ctx.Err() != nil {
		return Invalid, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Warnf("Script for version %s timed out after %s", version, timeout)
		return Timeout, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debugf("Script for version %s exited with code %d", version, exitErr.ExitCode())
		return Failure, nil
	} else if err != nil {
		return Invalid, errors.Join(fmt.Errorf("failed to run script for version %s", version), err)
	}

	return Success, nil
}

// killGroupOnCancel starts cmd in its own process group and kills the whole group once cmd's context is done,
// so processes spawned by the script don't outlive the run
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid targets the group
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = GracePeriod
}

// versionEnv returns the environment variables describing the passed version, followed by the passed extra variables
func versionEnv(version VersionRecord, extra map[string]string) []string {
	env := []string{
		"VERSION=" + version.Version,
		"VERSION_SOURCE=" + version.Source.String(),
		"VERSION_STATE=" + version.State.String(),
	}
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
