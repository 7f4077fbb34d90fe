package mockos_test

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"machinerun.io/diskprov"
	"machinerun.io/diskprov/mockos"
)

func run(h *mockos.Host, args ...string) *diskprov.CmdResult {
	return h.Run(args)
}

//nolint: funlen, gomnd
func TestHost(t *testing.T) {
	Convey("testing the mock host", t, func() {
		So(func() { mockos.Executor("unknown") }, ShouldPanic)

		h := mockos.Executor("testdata/model_sys.json")
		So(h, ShouldNotBeNil)

		Convey("the device list reports disks and their partitions", func() {
			res := run(h, "/usr/bin/lsblk", "--json", "--list", "--output", "path,size,type")
			So(res.Success(), ShouldBeTrue)
			So(res.Contains(`"path": "/dev/sda1"`), ShouldBeTrue)
			So(res.Contains(`"type": "crypt"`), ShouldBeTrue)
		})

		Convey("the tree of something that is not a device is an error", func() {
			res := run(h, "/usr/bin/lsblk", "--json", "--output", "name,size", "/etc/passwd")
			So(res.ExitCode, ShouldEqual, 32)
			So(res.Contains("not a block device"), ShouldBeTrue)
		})

		Convey("losetup reports the back-file of loop devices", func() {
			res := run(h, "/usr/bin/losetup", "--list", "--json")
			So(res.Success(), ShouldBeTrue)

			loops, err := diskprov.ParseLoopDevices(res.Output)
			So(err, ShouldBeNil)
			So(loops, ShouldResemble, []diskprov.LoopDevice{
				{Name: "/dev/loop0", BackFile: "/var/lib/images/install.img"},
			})
		})

		Convey("parted writes to a loop device's back-file", func() {
			So(run(h, "/usr/bin/parted", "-s", "/var/lib/images/install.img", "mklabel", "gpt").Success(), ShouldBeTrue)
			So(run(h, "/usr/bin/parted", "-s", "/var/lib/images/install.img",
				"mkpart", "primary", "fat32", "1MiB", "513MiB").Success(), ShouldBeTrue)

			d, ok := h.Device("/dev/loop0")
			So(ok, ShouldBeTrue)
			So(d.Partitions, ShouldHaveLength, 1)
			So(d.Partitions[0].Name, ShouldEqual, "loop0p1")
			So(d.Partitions[0].Size, ShouldEqual, uint64(512*1024*1024))
		})

		Convey("mklabel clears the partitions", func() {
			So(run(h, "/usr/bin/parted", "-s", "/dev/sda", "mklabel", "gpt").Success(), ShouldBeTrue)

			d, _ := h.Device("/dev/sda")
			So(d.Partitions, ShouldBeEmpty)

			Convey("and an out of range name fails", func() {
				res := run(h, "/usr/bin/parted", "-s", "/dev/sda", "name", "1", "EFI")
				So(res.Success(), ShouldBeFalse)
			})
		})

		Convey("mount needs the matching filesystem type", func() {
			So(run(h, "/usr/bin/mount", "-t", "ext4", "/dev/sda1", "/mnt").ExitCode, ShouldEqual, 32)
			So(run(h, "/usr/bin/mount", "-t", "vfat", "/dev/sda1", "/mnt/boot").Success(), ShouldBeTrue)
			So(run(h, "/usr/bin/mount", "-t", "ext4", "/dev/sda2", "/mnt").Success(), ShouldBeTrue)

			Convey("and umount -R clears the whole tree", func() {
				So(run(h, "/usr/bin/umount", "-R", "/mnt").Success(), ShouldBeTrue)
				So(run(h, "/usr/bin/umount", "/dev/sda1").ExitCode, ShouldEqual, 32)
			})
		})

		Convey("injected failures win over the model", func() {
			h.Fail("sync", 1, "sync: error syncing\n")
			res := run(h, "/usr/bin/sync")
			So(res.ExitCode, ShouldEqual, 1)
			So(strings.TrimSpace(string(res.Output)), ShouldEqual, "sync: error syncing")
		})

		Convey("unknown tools are not found", func() {
			So(run(h, "/usr/bin/mkfs.btrfs", "/dev/sda1").ExitCode, ShouldEqual, 127)
		})

		Convey("every call is recorded", func() {
			h.ResetCalls()
			run(h, "/usr/bin/sync")
			run(h, "/usr/bin/partprobe", "/dev/sda")
			So(h.Calls(), ShouldHaveLength, 2)
			So(h.CallsTo("partprobe"), ShouldResemble, [][]string{{"/usr/bin/partprobe", "/dev/sda"}})
		})
	})
}
