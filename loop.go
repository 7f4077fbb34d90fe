package diskprov

type execLoopLister struct {
	h *host
}

// NewLoopLister returns a LoopLister that runs losetup on every call.
func NewLoopLister(exec Executor, tools Tools) LoopLister {
	return &execLoopLister{h: newHost(Options{Exec: exec, Tools: tools})}
}

func (l *execLoopLister) LoopDevices() ([]LoopDevice, error) {
	res := l.h.run(
		[]string{l.h.tools.Losetup, "--list", "--json", "--output", "NAME,BACK-FILE"},
		HideFromLog())

	// losetup prints nothing and exits zero when no loop device is set up.
	if !res.Success() {
		return nil, cmdError(res)
	}

	devs, err := ParseLoopDevices(res.Output)
	if err != nil {
		return nil, &DiskError{Kind: ErrMalformedOutput, Output: res.Output, Err: err}
	}

	return devs, nil
}
