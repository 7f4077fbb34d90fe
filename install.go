package diskprov

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Layout is what the disk subsystem hands to the installation steps: the
// root partition and the EFI boot partition of a provisioned disk.
type Layout struct {
	Root *Partition
	Boot *Partition
}

// ProvisionDisk wipes dev and lays it out as a whole disk EFI + data disk.
// The first partition is formatted fat32 and the second ext4. The returned
// Layout is not mounted.
func ProvisionDisk(dev *BlockDevice) (Layout, error) {
	log := dev.logger()

	if err := WithTable(dev, GPT, (*TableSession).ProvisionWholeDisk); err != nil {
		return Layout{}, err
	}

	parts, err := dev.DiscoverPartitions()
	if err != nil {
		return Layout{}, err
	}

	if len(parts) < 2 {
		return Layout{}, &RequirementError{
			What: fmt.Sprintf("expected 2 partitions on %s after provisioning, found %d", dev.Path, len(parts)),
		}
	}

	boot, root := parts[0], parts[1]

	if err := boot.Format(FAT32); err != nil {
		return Layout{}, err
	}

	if err := root.Format(Ext4); err != nil {
		return Layout{}, err
	}

	log.Infof("provisioned boot=%s root=%s", boot.Path, root.Path)

	return Layout{Root: root, Boot: boot}, nil
}

// Mount mounts the root partition at target and the boot partition at
// target/bootDir, creating that directory. At this level a mount that does
// not succeed is an error.
func (l Layout) Mount(target string, bootDir string) error {
	if l.Root == nil || l.Boot == nil {
		return &RequirementError{What: "layout needs both a root and a boot partition"}
	}

	res, err := l.Root.Mount(target, MountOptions{})
	if err != nil {
		return err
	}

	if !res.Success() {
		return errors.Errorf("failed to mount %s at %s", l.Root.Path, target)
	}

	bootTarget := filepath.Join(l.Root.Mountpoint(), bootDir)
	if err := os.MkdirAll(bootTarget, 0755); err != nil { //nolint:gomnd
		return &RequirementError{What: fmt.Sprintf("boot mount target %s: %s", bootTarget, err)}
	}

	res, err = l.Boot.Mount(bootTarget, MountOptions{})
	if err != nil {
		return err
	}

	if !res.Success() {
		return errors.Errorf("failed to mount %s at %s", l.Boot.Path, bootTarget)
	}

	return nil
}

// Unmount unmounts boot, then root.
func (l Layout) Unmount() error {
	for _, p := range []*Partition{l.Boot, l.Root} {
		if p == nil {
			continue
		}

		if res := p.Unmount(); !res.Success() {
			return errors.Errorf("failed to unmount %s", p.Path)
		}
	}

	return nil
}

// Targets returns the mountpoints of the root and boot partitions. Both must
// be mounted.
func (l Layout) Targets() (string, string, error) {
	if l.Root == nil || !l.Root.Mounted() {
		return "", "", &RequirementError{What: "root partition is not mounted"}
	}

	if l.Boot == nil || !l.Boot.Mounted() {
		return "", "", &RequirementError{What: "boot partition is not mounted"}
	}

	return l.Root.Mountpoint(), l.Boot.Mountpoint(), nil
}

// UnmountTree recursively unmounts whatever is mounted below target, for
// example what a previous run left behind. Failures are ignored.
func (r *Registry) UnmountTree(target string) {
	r.h.run([]string{r.h.tools.Umount, "-R", target}, SuppressErrors(), HideFromLog())
}
