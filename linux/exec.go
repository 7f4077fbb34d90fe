//go:build linux

package linux

import (
	"bytes"
	"os/exec"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"machinerun.io/diskprov"
)

// noExecRC is the exit status reported when a binary could not be started.
const noExecRC = 127

type linuxExecutor struct {
	log logrus.FieldLogger
}

// Executor returns a diskprov.Executor that runs commands on this host. A
// nil logger means the logrus standard logger.
func Executor(log logrus.FieldLogger) diskprov.Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &linuxExecutor{log: log}
}

func (le *linuxExecutor) Run(args []string, opts ...diskprov.RunOption) *diskprov.CmdResult {
	ro := diskprov.NewRunOptions(opts...)
	cmdline := strings.Join(args, " ")

	if !ro.HideFromLog {
		le.log.WithField("cmd", cmdline).Debug("running")
	}

	out, rc := runCommandWithCombinedOutputRc(args...)

	if rc != 0 && !ro.SuppressErrors {
		le.log.WithFields(logrus.Fields{
			"cmd": cmdline,
			"rc":  rc,
		}).Warnf("command failed: %s", bytes.TrimSpace(out))
	}

	return &diskprov.CmdResult{Args: args, Output: out, ExitCode: rc}
}

func getCommandErrorRCDefault(err error, rcError int) int {
	if err == nil {
		return 0
	}

	exitError, ok := err.(*exec.ExitError)
	if ok {
		if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
	}

	return rcError
}

func getCommandErrorRC(err error) int {
	return getCommandErrorRCDefault(err, noExecRC)
}

func runCommandWithCombinedOutputRc(args ...string) ([]byte, int) {
	var buf bytes.Buffer

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if err != nil && getCommandErrorRC(err) == noExecRC {
		// the process never started; make that visible in the output.
		if _, ok := err.(*exec.ExitError); !ok {
			buf.WriteString(err.Error())
		}
	}

	return buf.Bytes(), getCommandErrorRC(err)
}

// IsBlockDevice reports whether fpath is a block device node.
func IsBlockDevice(fpath string) (bool, error) {
	var st unix.Stat_t

	if err := unix.Stat(fpath, &st); err != nil {
		return false, err
	}

	return st.Mode&unix.S_IFMT == unix.S_IFBLK, nil
}
