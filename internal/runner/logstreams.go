package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogStreams owns the two per-session log files spec.md §4.4 requires: a
// machine-readable JSONL event log and a human-readable transcript. Both
// are rotated to a new file once the runner session id is assigned,
// since the initial file is opened under a placeholder name.
type LogStreams struct {
	mu          sync.Mutex
	dir         string
	externalID  string
	runnerType  Type
	jsonlFile   *os.File
	transcriptF *os.File
}

// NewLogStreams opens the initial pair of log files under a
// "pending"-named session id; externalSessionID is the tracker-assigned
// id, always known up front, used as the filename prefix until the
// runner assigns its own id.
func NewLogStreams(dir string, externalSessionID string, runnerType Type) (*LogStreams, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir %s: %w", dir, err)
	}
	ls := &LogStreams{dir: dir, externalID: externalSessionID, runnerType: runnerType}
	if err := ls.open("pending"); err != nil {
		return nil, err
	}
	return ls, nil
}

func (ls *LogStreams) open(runnerSessionID string) error {
	base := fmt.Sprintf("session-%s-%s-%s", ls.externalID, ls.runnerType, runnerSessionID)
	jsonlPath := filepath.Join(ls.dir, base+".jsonl")
	transcriptPath := filepath.Join(ls.dir, base+".md")

	jsonlFile, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening jsonl log %s: %w", jsonlPath, err)
	}
	transcriptFile, err := os.OpenFile(transcriptPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		jsonlFile.Close()
		return fmt.Errorf("opening transcript log %s: %w", transcriptPath, err)
	}
	ls.jsonlFile = jsonlFile
	ls.transcriptF = transcriptFile
	return nil
}

// Rotate closes the current pair and opens a new one named after the
// now-known runner session id.
func (ls *LogStreams) Rotate(runnerSessionID string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.jsonlFile != nil {
		ls.jsonlFile.Close()
	}
	if ls.transcriptF != nil {
		ls.transcriptF.Close()
	}
	return ls.open(runnerSessionID)
}

// Write appends ev to both log streams.
func (ls *LogStreams) Write(ev Event) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.jsonlFile != nil {
		if line, err := json.Marshal(ev); err == nil {
			ls.jsonlFile.Write(append(line, '\n'))
		}
	}
	if ls.transcriptF != nil {
		ts := ev.Emitted
		if ts.IsZero() {
			ts = time.Now()
		}
		fmt.Fprintf(ls.transcriptF, "### [%s] %s\n\n%s\n\n", ts.Format(time.RFC3339), ev.Kind, ev.Text)
	}
}

// Close releases both file handles.
func (ls *LogStreams) Close() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	var err error
	if ls.jsonlFile != nil {
		err = ls.jsonlFile.Close()
	}
	if ls.transcriptF != nil {
		if e := ls.transcriptF.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
