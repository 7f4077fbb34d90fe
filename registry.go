package diskprov

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DeviceSet is a map of device path to the device.
type DeviceSet map[string]*BlockDevice

// Paths returns the device paths in sorted order. Index based selection uses
// this order.
func (ds DeviceSet) Paths() []string {
	paths := make([]string, 0, len(ds))

	for p := range ds {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	return paths
}

// Devices returns the devices ordered by path.
func (ds DeviceSet) Devices() []*BlockDevice {
	devs := make([]*BlockDevice, 0, len(ds))

	for _, p := range ds.Paths() {
		devs = append(devs, ds[p])
	}

	return devs
}

// Select resolves a user's choice to a device. The choice is either an index
// into Paths() or an exact device path.
func (ds DeviceSet) Select(choice string) (*BlockDevice, error) {
	if len(ds) == 0 {
		return nil, &DiskError{
			Kind: ErrNoDevices,
			Msg:  "selection requires a non-empty set of devices",
		}
	}

	choice = strings.TrimSpace(choice)

	if idx, err := strconv.Atoi(choice); err == nil {
		paths := ds.Paths()
		if idx >= 0 && idx < len(paths) {
			return ds[paths[idx]], nil
		}
	} else if d, ok := ds[choice]; ok {
		return d, nil
	}

	return nil, &DiskError{
		Kind: ErrDeviceNotFound,
		Msg:  fmt.Sprintf("selected device does not exist: %q", choice),
	}
}

// Registry enumerates the block devices of the system.
type Registry struct {
	h *host
}

// NewRegistry returns a Registry that talks to the system through opts.Exec.
func NewRegistry(opts Options) *Registry {
	return &Registry{h: newHost(opts)}
}

// ListDevices lists the system's block devices in a single query. Partitions
// are left out unless includePartitions is set. An empty system is an empty
// DeviceSet; an unavailable tool or unparseable output is an ErrDiscovery.
func (r *Registry) ListDevices(includePartitions bool) (DeviceSet, error) {
	res := r.h.run(listDevicesArgs(r.h.tools), HideFromLog())
	if !res.Success() {
		return nil, &DiskError{Kind: ErrDiscovery, Output: res.Output, Err: cmdError(res)}
	}

	recs, err := parseDeviceList(res.Output)
	if err != nil {
		return nil, &DiskError{Kind: ErrDiscovery, Output: res.Output, Err: err}
	}

	devs := DeviceSet{}

	for _, rec := range recs {
		if rec.Path == "" {
			return nil, &DiskError{
				Kind:   ErrDiscovery,
				Msg:    "device record without a path",
				Output: res.Output,
				Err:    ErrMalformedOutput,
			}
		}

		if !includePartitions && ParseDeviceKind(rec.Type) == KindPart {
			continue
		}

		devs[rec.Path] = newBlockDevice(r.h, rec)
	}

	r.h.log.Debugf("found %d devices", len(devs))

	return devs, nil
}

// Device lists the devices and returns the one at devPath.
func (r *Registry) Device(devPath string) (*BlockDevice, error) {
	devs, err := r.ListDevices(true)
	if err != nil {
		return nil, err
	}

	d, ok := devs[devPath]
	if !ok {
		return nil, &DiskError{Kind: ErrDeviceNotFound, Device: devPath}
	}

	return d, nil
}
