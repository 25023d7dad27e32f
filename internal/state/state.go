package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sokinpui/envboot/internal/fs"
)

const (
	stateDirName  = ".envboot"
	stateFileName = "state.envboot"
	lockFileName  = "lock"

	// MaxHistory is the number of runs kept in the state file.
	MaxHistory = 20

	ActionPatch = "patch"

	emptyField = "-"
)

// Operation represents a single file operation.
type Operation struct {
	Path        string
	Action      string
	ContentHash string // SHA256 hash of the file content after operation
}

// HistoryEntry represents one complete run of the tool.
type HistoryEntry struct {
	Timestamp  int64
	SDKPath    string
	Operations []Operation
}

// Time returns the entry timestamp as local time.
func (e HistoryEntry) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// State represents the entire state file.
type State struct {
	History []HistoryEntry
}

// Manager handles the lifecycle of the state file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string
	now       func() time.Time
}

// Dir returns the state directory for a project root.
func Dir(rootDir string) string {
	return filepath.Join(rootDir, stateDirName)
}

// LockPath returns the single-instance lock file for a project root.
func LockPath(rootDir string) string {
	return filepath.Join(Dir(rootDir), lockFileName)
}

// New creates and loads a state manager for the project at rootDir.
func New(rootDir string) (*Manager, error) {
	stateDir := Dir(rootDir)
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
		now:       time.Now,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{History: []HistoryEntry{}}
			return nil
		}
		return err
	}

	content := string(data)
	// Normalize line endings to LF
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")

	m.state = &State{History: []HistoryEntry{}}
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return fmt.Errorf("invalid state file %s: incomplete run record", m.statePath)
		}

		ts, err := strconv.ParseInt(lines[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid state file %s: could not parse timestamp from '%s': %w", m.statePath, lines[0], err)
		}

		entry := HistoryEntry{Timestamp: ts, SDKPath: decodeField(lines[1])}
		opLines := lines[2:]
		if len(opLines)%3 != 0 {
			return fmt.Errorf("invalid state file %s: incomplete operation record", m.statePath)
		}
		for i := 0; i < len(opLines); i += 3 {
			entry.Operations = append(entry.Operations, Operation{
				Action:      opLines[i],
				Path:        opLines[i+1],
				ContentHash: decodeField(opLines[i+2]),
			})
		}
		m.state.History = append(m.state.History, entry)
	}

	return nil
}

func (m *Manager) save() error {
	var blocks []string
	for _, entry := range m.state.History {
		var entryBuilder strings.Builder
		entryBuilder.WriteString(fmt.Sprintf("%d\n%s", entry.Timestamp, encodeField(entry.SDKPath)))
		for _, op := range entry.Operations {
			entryBuilder.WriteString("\n" + op.Action)
			entryBuilder.WriteString("\n" + op.Path)
			entryBuilder.WriteString("\n" + encodeField(op.ContentHash))
		}
		blocks = append(blocks, entryBuilder.String())
	}
	content := strings.Join(blocks, "\n\n") + "\n"

	if err := os.MkdirAll(m.StateDir, 0755); err != nil {
		return fmt.Errorf("could not create state directory: %w", err)
	}
	if err := fs.WriteFileAtomic(m.statePath, []byte(content)); err != nil {
		return fmt.Errorf("could not write state file: %w", err)
	}
	return nil
}

// Write records a run and persists the state file.
func (m *Manager) Write(sdkPath string, operations []Operation) error {
	newEntry := HistoryEntry{
		Timestamp:  m.now().UTC().Unix(),
		SDKPath:    sdkPath,
		Operations: operations,
	}
	m.state.History = append(m.state.History, newEntry)
	if extra := len(m.state.History) - MaxHistory; extra > 0 {
		m.state.History = m.state.History[extra:]
	}
	return m.save()
}

// Last returns the most recent run.
func (m *Manager) Last() (HistoryEntry, bool) {
	if len(m.state.History) == 0 {
		return HistoryEntry{}, false
	}
	return m.state.History[len(m.state.History)-1], true
}

// History returns all recorded runs, oldest first.
func (m *Manager) History() []HistoryEntry {
	return m.state.History
}

// CreateOperations prepares patch operations for the given files.
func CreateOperations(updatedFiles []string) []Operation {
	ops := make([]Operation, 0, len(updatedFiles))
	for _, f := range updatedFiles {
		hash, err := fs.GetFileSHA256(f)
		if err != nil {
			// An empty hash always reports drift.
			hash = ""
		}
		ops = append(ops, Operation{Path: f, Action: ActionPatch, ContentHash: hash})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})
	return ops
}

// Drifted reports whether the file changed since the operation was recorded.
func Drifted(op Operation) bool {
	hash, err := fs.GetFileSHA256(op.Path)
	if err != nil {
		return true
	}
	return op.ContentHash == "" || hash != op.ContentHash
}

func encodeField(s string) string {
	if s == "" {
		return emptyField
	}
	return s
}

func decodeField(s string) string {
	if s == emptyField {
		return ""
	}
	return s
}
