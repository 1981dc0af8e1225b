package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"constellation/internal/logging"
)

const stampLayout = "20060102T150405Z"

// ErrNoRunLogs reports an empty or missing run log directory.
var ErrNoRunLogs = errors.New("no run logs found")

// RunLog describes one run's log file.
type RunLog struct {
	RunID     string
	Path      string
	StartedAt time.Time
	SizeBytes int64
}

// List returns run logs newest first. Files that do not follow the run log
// naming scheme are ignored.
func List(logDir string) ([]RunLog, error) {
	dir := logging.RunLogDir(logDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run log directory: %w", err)
	}
	runs := make([]RunLog, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		run, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		run.Path = filepath.Join(dir, entry.Name())
		run.SizeBytes = info.Size()
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Find resolves ref to a run log. An empty ref or "latest" selects the most
// recent run; anything else is matched as a run ID prefix.
func Find(logDir, ref string) (RunLog, error) {
	runs, err := List(logDir)
	if err != nil {
		return RunLog{}, err
	}
	if len(runs) == 0 {
		return RunLog{}, ErrNoRunLogs
	}
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" || ref == "latest" {
		return runs[0], nil
	}
	var matches []RunLog
	for _, run := range runs {
		if strings.HasPrefix(run.RunID, ref) {
			matches = append(matches, run)
		}
	}
	switch len(matches) {
	case 0:
		return RunLog{}, fmt.Errorf("no run log matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return RunLog{}, fmt.Errorf("run id %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func parseName(name string) (RunLog, bool) {
	base, ok := strings.CutSuffix(name, ".log")
	if !ok {
		return RunLog{}, false
	}
	stamp, runID, ok := strings.Cut(base, "-")
	if !ok || runID == "" {
		return RunLog{}, false
	}
	started, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return RunLog{}, false
	}
	return RunLog{RunID: runID, StartedAt: started}, true
}
