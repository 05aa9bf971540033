package runner

import (
	"context"
	"sort"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/hang-sentinel/internal/logger"
)

// pidSnapshot returns the set of currently live process ids.
func pidSnapshot() (map[int]struct{}, error) {
	processes, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	pids := make(map[int]struct{}, len(processes))
	for _, process := range processes {
		pids[process.Pid()] = struct{}{}
	}

	return pids, nil
}

// strayProcesses returns processes that are not part of the before
// snapshot and are still alive, ordered by pid. After a timed-out unit's
// process group has been killed, survivors here are candidates the unit
// leaked, such as daemons that detached into their own session.
func strayProcesses(before map[int]struct{}) ([]ps.Process, error) {
	processes, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	var strays []ps.Process

	for _, process := range processes {
		if _, ok := before[process.Pid()]; ok {
			continue
		}

		strays = append(strays, process)
	}

	sort.Slice(strays, func(i, j int) bool {
		return strays[i].Pid() < strays[j].Pid()
	})

	return strays, nil
}

// reportStrays logs every process that appeared while the unit ran and
// outlived its termination.
func reportStrays(ctx context.Context, before map[int]struct{}) {
	strays, err := strayProcesses(before)
	if err != nil {
		logger.WarnKV(ctx, "Stray process check failed", "error", err)

		return
	}

	for _, process := range strays {
		logger.WarnKV(ctx, "Process outlived the timed-out unit",
			"pid", process.Pid(),
			"parent_pid", process.PPid(),
			"executable", process.Executable())
	}
}
