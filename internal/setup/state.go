package setup

import (
	"encoding/json"
	"os"
	"path/filepath"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// setupState is the on-disk checkpoint shape (spec.md §6 "setup_state.json
// — bulk-setup checkpoint").
type setupState struct {
	ProcessedPaths []string `json:"processed_paths"`
	TimedOutPaths  []string `json:"timed_out_paths"`
	FailedPaths    []string `json:"failed_paths"`
}

func loadState(path string) (setupState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return setupState{}, nil
	}
	if err != nil {
		return setupState{}, sessionerrors.Wrap(sessionerrors.KindIOError, "read setup state", err)
	}
	var s setupState
	if err := json.Unmarshal(data, &s); err != nil {
		return setupState{}, nil // corrupt checkpoint costs a fresh run, not a boot failure
	}
	return s, nil
}

// persistState writes result as setupState, atomically (spec.md §4.11
// "atomic rename pattern").
func persistState(path string, result Result) error {
	s := setupState{
		ProcessedPaths: result.Processed,
		TimedOutPaths:  result.TimedOut,
		FailedPaths:    result.Failed,
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "encode setup state", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sessionerrors.Wrap(sessionerrors.KindIOError, "create setup state dir", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write setup state", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename setup state", err)
	}
	return nil
}
