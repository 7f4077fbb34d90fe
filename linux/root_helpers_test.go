//go:build linux

// nolint:errcheck
package linux_test

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"machinerun.io/diskprov"
	"machinerun.io/diskprov/linux"
)

func runCommand(args ...string) ([]byte, error) {
	res := linux.Executor(nil).Run(args, diskprov.HideFromLog())
	if !res.Success() {
		return res.Output, &diskprov.SysCallError{Args: args, ExitCode: res.ExitCode, Output: res.Output}
	}

	return res.Output, nil
}

// connectLoop - connect fname to a loop device.
//   return cleanup, devicePath, error
func connectLoop(fname string) (func() error, string, error) {
	out, err := runCommand("losetup", "--find", "--show", "--partscan", fname)
	if err != nil {
		return func() error { return nil }, "", err
	}

	devPath := strings.TrimSpace(string(out))

	cleanup := func() error {
		_, err := runCommand("losetup", "--detach="+devPath)
		return err
	}

	return cleanup, devPath, waitForFileSize(devPath)
}

func waitForFileSize(devPath string) error {
	fp, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	defer fp.Close()

	diskLen := int64(0)
	napLen := time.Millisecond * 10 //nolint: gomnd
	startTime := time.Now()
	endTime := startTime.Add(30 * time.Second) // nolint: gomnd

	for {
		if diskLen, err = fp.Seek(0, io.SeekEnd); err != nil {
			return err
		} else if diskLen != 0 {
			return nil
		}

		time.Sleep(napLen)

		if time.Now().After(endTime) {
			break
		}
	}

	return fmt.Errorf("gave up waiting after %v for non-zero length in %s",
		time.Since(startTime), devPath)
}

func getTempFile(t *testing.T, size int64) string {
	fp, err := os.CreateTemp(t.TempDir(), "diskprov_test")
	if err != nil {
		t.Fatal(err)
	}

	name := fp.Name()
	fp.Close()

	if err := os.Truncate(name, size); err != nil {
		t.Fatal(err)
	}

	return name
}

func isRoot() error {
	uid := os.Geteuid()
	if uid == 0 {
		return nil
	}

	return fmt.Errorf("not root (euid=%d)", uid)
}

func writableCharDev(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: did not exist", path)
		}

		return fmt.Errorf("%s: %s", path, err)
	}

	if fi.Mode()&os.ModeCharDevice != os.ModeCharDevice {
		return fmt.Errorf("%s: not a character device", path)
	}

	if err := unix.Access(path, unix.W_OK); err != nil {
		return fmt.Errorf("%s: not writable", path)
	}

	return nil
}

func which(name string) string {
	return whichSearch(name, strings.Split(os.Getenv("PATH")+":/sbin:/usr/sbin", ":"))
}

func whichSearch(name string, paths []string) string {
	var search []string

	if strings.ContainsRune(name, os.PathSeparator) {
		if path.IsAbs(name) {
			search = []string{name}
		} else {
			search = []string{"./" + name}
		}
	} else {
		search = []string{}
		for _, p := range paths {
			search = append(search, path.Join(p, name))
		}
	}

	for _, fPath := range search {
		if err := unix.Access(fPath, unix.X_OK); err == nil {
			return fPath
		}
	}

	return ""
}

// hostTools resolves every tool on PATH, or reports the first one missing.
func hostTools() (diskprov.Tools, error) {
	tools := diskprov.Tools{}
	fields := []struct {
		name string
		dest *string
	}{
		{"parted", &tools.Parted},
		{"mkfs.vfat", &tools.MkfsVfat},
		{"mkfs.ext4", &tools.MkfsExt4},
		{"mount", &tools.Mount},
		{"umount", &tools.Umount},
		{"partprobe", &tools.Partprobe},
		{"lsblk", &tools.Lsblk},
		{"losetup", &tools.Losetup},
		{"sync", &tools.Sync},
	}

	for _, f := range fields {
		if *f.dest = which(f.name); *f.dest == "" {
			return tools, fmt.Errorf("%s: command not present", f.name)
		}
	}

	return tools, nil
}

func canUseLoop() error {
	if err := isRoot(); err != nil {
		return err
	}

	if err := writableCharDev("/dev/loop-control"); err != nil {
		return err
	}

	if which("losetup") == "" {
		return fmt.Errorf("losetup: command not present")
	}

	return nil
}

func skipIfNoLoop(t *testing.T) {
	if err := canUseLoop(); err != nil {
		t.Skip(err)
	}
}

func skipIfNoTools(t *testing.T) diskprov.Tools {
	tools, err := hostTools()
	if err != nil {
		t.Skip(err)
	}

	return tools
}
