package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"machinerun.io/diskprov"
)

//nolint:gochecknoglobals
var partCommands = cli.Command{
	Name:  "part",
	Usage: "partition commands",
	Subcommands: []*cli.Command{
		{
			Name:      "format",
			Usage:     "Create a filesystem (fat32 or ext4) on a partition",
			ArgsUsage: "<device> <suffix> <filesystem>",
			Action:    partFormat,
		},
		{
			Name:      "mount",
			Usage:     "Mount a partition",
			ArgsUsage: "<device> <suffix> <target>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "fs",
					Usage: "filesystem of the partition",
					Value: "ext4",
				},
				&cli.StringFlag{
					Name:  "options",
					Usage: "mount options",
				},
			},
			Action: partMount,
		},
		{
			Name:      "umount",
			Usage:     "Unmount a partition",
			ArgsUsage: "<device> <suffix>",
			Action:    partUmount,
		},
	},
}

// getPartition finds partition <suffix> of <device> from the first two args.
func getPartition(c *cli.Context, nargs int) (*diskprov.Partition, error) {
	if c.Args().Len() != nargs {
		return nil, fmt.Errorf("expected %d arguments, got %d", nargs, c.Args().Len())
	}

	reg, _, err := getRegistry(c)
	if err != nil {
		return nil, err
	}

	dev, err := reg.Device(c.Args().Get(0))
	if err != nil {
		return nil, err
	}

	if _, err := dev.DiscoverPartitions(); err != nil {
		return nil, err
	}

	p, ok := dev.Partition(c.Args().Get(1))
	if !ok {
		return nil, fmt.Errorf("%s has no partition with suffix %q", dev.Path, c.Args().Get(1))
	}

	return p, nil
}

func partFormat(c *cli.Context) error {
	p, err := getPartition(c, 3) //nolint:gomnd
	if err != nil {
		return err
	}

	kind, err := diskprov.ParseFilesystemKind(c.Args().Get(2))
	if err != nil {
		return err
	}

	if err := p.Format(kind); err != nil {
		return err
	}

	fmt.Printf("%s\n", p)

	return nil
}

func partMount(c *cli.Context) error {
	p, err := getPartition(c, 3) //nolint:gomnd
	if err != nil {
		return err
	}

	kind, err := diskprov.ParseFilesystemKind(c.String("fs"))
	if err != nil {
		return err
	}

	res, err := p.Mount(c.Args().Get(2), diskprov.MountOptions{Filesystem: kind, Options: c.String("options")})
	if err != nil {
		return err
	}

	if !res.Success() {
		return fmt.Errorf("mount of %s at %s failed", p.Path, c.Args().Get(2))
	}

	fmt.Printf("%s: %s\n", p.Path, res)

	return nil
}

func partUmount(c *cli.Context) error {
	p, err := getPartition(c, 2) //nolint:gomnd
	if err != nil {
		return err
	}

	// a fresh Partition knows nothing of earlier mounts; take lsblk's word.
	res := p.Unmount()
	if res == diskprov.AlreadyDone {
		reg, _, err := getRegistry(c)
		if err != nil {
			return err
		}

		devs, err := reg.ListDevices(true)
		if err != nil {
			return err
		}

		if d, ok := devs[p.Path]; ok && d.Mountpoint != "" {
			reg.UnmountTree(d.Mountpoint)
			fmt.Printf("%s: unmounted %s\n", p.Path, d.Mountpoint)

			return nil
		}
	}

	fmt.Printf("%s: %s\n", p.Path, res)

	return nil
}
