package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"machinerun.io/diskprov"
	"machinerun.io/diskprov/linux"
)

//nolint:gochecknoglobals
var diskCommands = cli.Command{
	Name:  "disk",
	Usage: "block device commands",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List the block devices of the system",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "partitions",
					Usage: "include partitions",
				},
				&cli.BoolFlag{
					Name:  "json",
					Usage: "dump as json",
				},
			},
			Action: diskList,
		},
		{
			Name:   "select",
			Usage:  "Pick a device interactively and print its path",
			Action: diskSelect,
		},
		{
			Name:      "show",
			Usage:     "Show a device, its partitions and its partition table",
			ArgsUsage: "<device>",
			Action:    diskShow,
		},
		{
			Name:      "provision",
			Usage:     "Wipe a device and lay it out as EFI + ext4 root",
			ArgsUsage: "[<device>]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "yes",
					Usage: "do not count down before wiping",
				},
				&cli.IntFlag{
					Name:  "countdown",
					Value: 5, //nolint:gomnd
					Usage: "seconds to wait before wiping",
				},
				&cli.BoolFlag{
					Name:  "mount",
					Usage: "mount the result at the configured target",
				},
			},
			Action: diskProvision,
		},
	},
}

func humanSize(size uint64) string {
	return fmt.Sprintf("%d MiB", size/diskprov.Mebibyte)
}

func diskList(c *cli.Context) error {
	reg, _, err := getRegistry(c)
	if err != nil {
		return err
	}

	devs, err := reg.ListDevices(c.Bool("partitions"))
	if err != nil {
		return err
	}

	if c.Bool("json") {
		jbytes, err := json.MarshalIndent(devs.Devices(), "", "  ")
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", string(jbytes))

		return nil
	}

	if len(devs) == 0 {
		fmt.Println("no block devices found")
		return nil
	}

	data := [][]string{{"Path", "Type", "Size", "Label", "Mountpoint"}}
	for _, d := range devs.Devices() {
		data = append(data, []string{d.Path, d.RawType, humanSize(d.Size), d.Label, d.Mountpoint})
	}

	printTextTable(data)

	return nil
}

// selectDevice prints devs with their index to out and resolves the answer
// read from in.
func selectDevice(devs diskprov.DeviceSet, in io.Reader, out io.Writer) (*diskprov.BlockDevice, error) {
	for i, d := range devs.Devices() {
		fmt.Fprintf(out, "%d: %s (%s, %s)\n", i, d.Path, d.RawType, humanSize(d.Size))
	}

	fmt.Fprint(out, "Select one of the above disks (by number or path): ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		return nil, errors.Wrap(err, "failed to read selection")
	}

	return devs.Select(answer)
}

func diskSelect(c *cli.Context) error {
	reg, _, err := getRegistry(c)
	if err != nil {
		return err
	}

	devs, err := reg.ListDevices(false)
	if err != nil {
		return err
	}

	dev, err := selectDevice(devs, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Println(dev.Path)

	return nil
}

func diskShow(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("show takes exactly one device, got %d", c.Args().Len())
	}

	reg, _, err := getRegistry(c)
	if err != nil {
		return err
	}

	dev, err := reg.Device(c.Args().First())
	if err != nil {
		return err
	}

	fmt.Printf("%s size=%s label=%q mounted=%q\n", dev, humanSize(dev.Size), dev.Label, dev.Mountpoint)

	if backing, err := dev.ResolveBackingPath(); err == nil {
		fmt.Printf("backing: %s\n", backing)
	} else {
		fmt.Printf("backing: %s\n", err)
	}

	parts, err := dev.DiscoverPartitions()
	if err != nil {
		return err
	}

	if len(parts) != 0 {
		data := [][]string{{"Path", "Suffix", "Size"}}
		for _, p := range parts {
			data = append(data, []string{p.Path, p.Suffix, humanSize(p.Size)})
		}

		printTextTable(data)
	}

	info, err := dev.ReadTable()
	if err != nil {
		fmt.Printf("table: %s\n", err)
		return nil
	}

	fmt.Printf("table: %s\n", info)

	if len(info.Entries) != 0 {
		data := [][]string{{"Number", "Name", "Type", "Start", "Last", "Size"}}
		for _, e := range info.Entries {
			data = append(data, []string{
				fmt.Sprintf("%d", e.Number), e.Name, e.TypeName(),
				fmt.Sprintf("%d", e.Start), fmt.Sprintf("%d", e.Last), humanSize(e.Size())})
		}

		printTextTable(data)
	}

	for _, fs := range info.FreeSpaces(diskprov.Mebibyte) {
		fmt.Printf("free: %d-%d (%s)\n", fs.Start, fs.End, humanSize(fs.Size()))
	}

	return nil
}

func countdown(out io.Writer, dev string, secs int) {
	fmt.Fprintf(out, "Formatting %s in ", dev)

	for i := secs; i > 0; i-- {
		fmt.Fprintf(out, "%d..", i)
		time.Sleep(time.Second)
	}

	fmt.Fprintln(out)
}

func diskProvision(c *cli.Context) error {
	reg, cfg, err := getRegistry(c)
	if err != nil {
		return err
	}

	devs, err := reg.ListDevices(false)
	if err != nil {
		return err
	}

	var dev *diskprov.BlockDevice

	switch c.Args().Len() {
	case 0:
		dev, err = selectDevice(devs, os.Stdin, os.Stderr)
	case 1:
		dev, err = devs.Select(c.Args().First())
	default:
		err = fmt.Errorf("provision takes at most one device, got %d", c.Args().Len())
	}

	if err != nil {
		return err
	}

	if c.String("mock") == "" {
		if isBlk, err := linux.IsBlockDevice(dev.Path); err != nil || !isBlk {
			return fmt.Errorf("%s is not a block device: %v", dev.Path, err)
		}
	}

	// leftovers of an earlier run.
	reg.UnmountTree(cfg.Target)

	if !c.Bool("yes") {
		countdown(os.Stderr, dev.Path, c.Int("countdown"))
	}

	layout, err := diskprov.ProvisionDisk(dev)
	if err != nil {
		return err
	}

	fmt.Printf("boot: %s (%s)\nroot: %s (%s)\n",
		layout.Boot.Path, layout.Boot.Filesystem(), layout.Root.Path, layout.Root.Filesystem())

	if !c.Bool("mount") {
		return nil
	}

	if err := layout.Mount(cfg.Target, cfg.BootDir); err != nil {
		return err
	}

	root, boot, err := layout.Targets()
	if err != nil {
		return err
	}

	fmt.Printf("mounted root at %s and boot at %s\n", root, boot)

	return nil
}
