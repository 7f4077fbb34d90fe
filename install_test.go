package diskprov_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"machinerun.io/diskprov"
)

//nolint: funlen
func TestProvisionDisk(t *testing.T) {
	Convey("provisioning a whole disk", t, func() {
		h, dev := mockDevice(t, "/dev/nvme0n1")

		layout, err := diskprov.ProvisionDisk(dev)
		So(err, ShouldBeNil)
		So(layout.Boot.Path, ShouldEqual, "/dev/nvme0n1p1")
		So(layout.Root.Path, ShouldEqual, "/dev/nvme0n1p2")
		So(layout.Boot.Filesystem(), ShouldEqual, diskprov.FAT32)
		So(layout.Root.Filesystem(), ShouldEqual, diskprov.Ext4)

		So(h.CallsTo("mkfs.vfat"), ShouldResemble, [][]string{{"/usr/bin/mkfs.vfat", "-F32", "/dev/nvme0n1p1"}})
		So(h.CallsTo("mkfs.ext4"), ShouldResemble, [][]string{{"/usr/bin/mkfs.ext4", "-F", "/dev/nvme0n1p2"}})

		Convey("targets need a mounted layout", func() {
			_, _, err := layout.Targets()
			var re *diskprov.RequirementError
			So(errors.As(err, &re), ShouldBeTrue)
		})

		Convey("mounting puts boot below root", func() {
			target := t.TempDir()

			So(layout.Mount(target, "boot"), ShouldBeNil)

			root, boot, err := layout.Targets()
			So(err, ShouldBeNil)
			So(root, ShouldEqual, target)
			So(boot, ShouldEqual, filepath.Join(target, "boot"))

			st, err := os.Stat(boot)
			So(err, ShouldBeNil)
			So(st.IsDir(), ShouldBeTrue)

			So(h.CallsTo("mount"), ShouldResemble, [][]string{
				{"/usr/bin/mount", "-t", "ext4", "/dev/nvme0n1p2", target},
				{"/usr/bin/mount", "-t", "vfat", "/dev/nvme0n1p1", boot},
			})

			Convey("and unmounting takes boot off first", func() {
				So(layout.Unmount(), ShouldBeNil)
				So(h.CallsTo("umount"), ShouldResemble, [][]string{
					{"/usr/bin/umount", "/dev/nvme0n1p1"},
					{"/usr/bin/umount", "/dev/nvme0n1p2"},
				})
			})
		})

		Convey("a failing mount is an error at this level", func() {
			h.Fail("mount -t vfat", 32, "mount: wrong fs type")

			err := layout.Mount(t.TempDir(), "boot")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "/dev/nvme0n1p1")
		})

		Convey("UnmountTree ignores nothing being mounted", func() {
			reg := diskprov.NewRegistry(diskprov.Options{Exec: h})
			reg.UnmountTree("/mnt")
			So(h.CallsTo("umount"), ShouldResemble, [][]string{{"/usr/bin/umount", "-R", "/mnt"}})
		})
	})
}

func TestProvisionDiskFailures(t *testing.T) {
	Convey("provisioning stops at the first failure", t, func() {
		h, dev := mockDevice(t, "/dev/nvme0n1")

		Convey("a failing table write formats nothing", func() {
			h.Fail("parted -s /dev/nvme0n1 mkpart primary ext4", 1, "Error: Can't have overlapping partitions.")

			_, err := diskprov.ProvisionDisk(dev)
			So(err, ShouldNotBeNil)
			So(h.CallsTo("sync"), ShouldHaveLength, 1)
			So(h.CallsTo("mkfs.vfat"), ShouldBeEmpty)
		})

		Convey("missing partitions after the layout is a RequirementError", func() {
			h.Fail("lsblk --json --bytes", 0, `{"blockdevices": [{"name": "nvme0n1", "size": 1}]}`)

			_, err := diskprov.ProvisionDisk(dev)
			var re *diskprov.RequirementError
			So(errors.As(err, &re), ShouldBeTrue)
		})

		Convey("a failing format is returned", func() {
			h.Fail("mkfs.ext4", 1, "mke2fs: No space left on device")

			_, err := diskprov.ProvisionDisk(dev)
			So(errors.Is(err, diskprov.ErrFormat), ShouldBeTrue)
		})
	})
}

func TestLayoutIncomplete(t *testing.T) {
	Convey("a layout without partitions cannot be mounted", t, func() {
		err := diskprov.Layout{}.Mount("/mnt", "boot")
		var re *diskprov.RequirementError
		So(errors.As(err, &re), ShouldBeTrue)
		So(diskprov.Layout{}.Unmount(), ShouldBeNil)
	})
}
