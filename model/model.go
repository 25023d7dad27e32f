package model

// StepStatus is the outcome of a single setup step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepWarning StepStatus = "warning"
	StepFailed  StepStatus = "failed"
)

// StepResult records what one setup step did.
type StepResult struct {
	Name   string
	Status StepStatus
	Detail string
}

// PatchResult describes a single run of the config path patcher.
type PatchResult struct {
	Path string
	// Line is the instantiated replacement line, without terminator.
	Line     string
	Replaced int
	Changed  bool
	Written  bool
}

// Summary holds the results of an operation for display.
type Summary struct {
	Steps    []StepResult
	Modified []string
	Failed   []string
	Message  string
}

// Add appends a step result to the summary.
func (s *Summary) Add(name string, status StepStatus, detail string) {
	s.Steps = append(s.Steps, StepResult{Name: name, Status: status, Detail: detail})
}
