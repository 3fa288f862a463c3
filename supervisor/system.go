package supervisor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// osSystem is the gopsutil-backed System implementation.
type osSystem struct{}

// NewOSSystem returns the real process enumeration and signaling backend.
func NewOSSystem() System {
	return osSystem{}
}

func (osSystem) Processes() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			// Processes we cannot name cannot match the pattern.
			continue
		}
		infos = append(infos, ProcessInfo{Pid: p.Pid, Name: name})
	}
	return infos, nil
}

func (osSystem) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		// Unknown pid means the process is already gone.
		return nil
	}
	return p.Terminate()
}

func (osSystem) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func (osSystem) Alive(pid int32) (bool, error) {
	return process.PidExists(pid)
}
