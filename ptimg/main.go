//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"machinerun.io/diskprov"
	"machinerun.io/diskprov/linux"
)

var version string

const defaultImageSize = 1024

func msgf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
}

func pathExists(d string) bool {
	_, err := os.Stat(d)
	return err == nil
}

func runCommand(ex diskprov.Executor, args ...string) (*diskprov.CmdResult, error) {
	res := ex.Run(args)
	if !res.Success() {
		return res, &diskprov.SysCallError{Args: args, ExitCode: res.ExitCode, Output: res.Output}
	}

	return res, nil
}

func waitForFileSize(devPath string) error {
	fp, err := os.OpenFile(devPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	defer fp.Close()

	const waitTime, napLen = 30 * time.Second, 10 * time.Millisecond

	diskLen := int64(0)
	startTime := time.Now()
	endTime := startTime.Add(waitTime)

	for {
		if diskLen, err = fp.Seek(0, io.SeekEnd); err != nil {
			return err
		} else if diskLen != 0 {
			msgf("found %s length %d after %v\n", devPath, diskLen, time.Since(startTime))
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

// connectLoop attaches fname to a free loop device with partition scanning.
func connectLoop(ex diskprov.Executor, tools diskprov.Tools, fname string) (func() error, string, error) {
	nilFunc := func() error { return nil }

	res, err := runCommand(ex, tools.Losetup, "--find", "--show", "--partscan", fname)
	if err != nil {
		return nilFunc, "", err
	}

	devPath := strings.TrimSpace(string(res.Output))

	cleanup := func() error {
		_, err := runCommand(ex, tools.Losetup, "--detach="+devPath)
		return err
	}

	if err := waitForFileSize(devPath); err != nil {
		if errC := cleanup(); errC != nil {
			msgf("%s\n", errC)
		}

		return nilFunc, devPath, err
	}

	return cleanup, devPath, nil
}

func handleCommand(exCmd []string, subs map[string]string) error {
	if len(exCmd) == 0 {
		return nil
	}

	modCmd := []string{}
	modEnv := os.Environ()

	for _, i := range exCmd {
		for k, v := range subs {
			i = strings.ReplaceAll(i, "@"+k+"@", v)
		}

		modCmd = append(modCmd, i)
	}

	for k, v := range subs {
		modEnv = append(modEnv, k+"="+v)
	}

	cmd := exec.Command(modCmd[0], modCmd[1:]...) //nolint:gosec
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	cmd.Env = modEnv

	msgf("Executing %v\n", modCmd)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("cmd %v failed: %w", modCmd, err)
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:      "ptimg",
		Usage:     "Lay out a raw disk image as EFI + ext4 root, then optionally use it.",
		ArgsUsage: "image [command...]",
		Version:   version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "diskprov yaml config",
			},
			&cli.IntFlag{
				Name:  "size",
				Value: defaultImageSize,
				Usage: "Size in Mebibytes of a newly created image",
			},
			&cli.BoolFlag{
				Name:  "execute",
				Usage: "Execute remaining arguments with the image mounted",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every command that is run",
			},
		},
		Action: imgProvision,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

//nolint:funlen
func imgProvision(c *cli.Context) error {
	fname := c.Args().First()
	exCmd := []string{}

	if c.Bool("execute") {
		exCmd = c.Args().Slice()[1:]
	} else if c.Args().Len() != 1 {
		return fmt.Errorf("got %d arguments.  Did you mean --execute?", c.Args().Len())
	}

	cfg := diskprov.DefaultConfig()

	if c.String("config") != "" {
		var err error
		if cfg, err = diskprov.LoadConfig(c.String("config")); err != nil {
			return err
		}
	}

	log := logrus.StandardLogger()
	log.SetLevel(cfg.Level())

	if c.Bool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}

	if !pathExists(fname) {
		msgf("Creating %s as raw size %dMiB\n", fname, c.Int("size"))

		fp, err := os.Create(fname)
		if err != nil {
			return err
		}

		err = fp.Truncate(int64(c.Int("size")) * diskprov.Mebibyte)
		fp.Close()

		if err != nil {
			return err
		}
	}

	ex := linux.Executor(log)

	devCleanup, devPath, err := connectLoop(ex, cfg.Tools, fname)

	defer func() {
		if err := devCleanup(); err != nil {
			msgf("Error: %s\n", err)
		}
	}()

	if err != nil {
		return err
	}

	reg := diskprov.NewRegistry(diskprov.Options{
		Exec:        ex,
		Tools:       cfg.Tools,
		Logger:      log,
		VerifyTable: cfg.VerifyTable,
	})

	dev, err := reg.Device(devPath)
	if err != nil {
		return err
	}

	layout, err := diskprov.ProvisionDisk(dev)
	if err != nil {
		return err
	}

	if info, err := diskprov.ReadTable(fname); err == nil {
		msgf("%s: %s\n", fname, info)
	}

	subs := map[string]string{
		"BLOCK_DEV": devPath,
		"BOOT_DEV":  layout.Boot.Path,
		"ROOT_DEV":  layout.Root.Path,
	}

	if len(exCmd) == 0 {
		return nil
	}

	mountPoint, err := os.MkdirTemp("", "ptimg.")
	if err != nil {
		return err
	}

	defer os.RemoveAll(mountPoint)

	if err := layout.Mount(mountPoint, cfg.BootDir); err != nil {
		reg.UnmountTree(mountPoint)
		return err
	}

	defer func() {
		if err := layout.Unmount(); err != nil {
			msgf("Error: %s\n", err)
		}
	}()

	subs["MOUNT_POINT"] = mountPoint

	return handleCommand(exCmd, subs)
}
