package models

import (
	"sort"
	"strings"
	"time"
)

// OutputLine is a single log line of a step, keyed by position.
type OutputLine struct {
	Time int64  `json:"time"`
	Pos  int    `json:"pos"`
	Out  string `json:"out"`
}

// Output is the log of a step.
type Output struct {
	Lines   []OutputLine `json:"lines"`
	Message string       `json:"message,omitempty"`
}

// LineTexts returns the raw text of every line, sorted ascending by Pos.
func (o *Output) LineTexts() []string {
	if o == nil || len(o.Lines) == 0 {
		return nil
	}
	lines := make([]OutputLine, len(o.Lines))
	copy(lines, o.Lines)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Pos < lines[j].Pos })

	texts := make([]string, len(lines))
	for i, line := range lines {
		texts[i] = line.Out
	}
	return texts
}

// Text is the canonical rendering: lines sorted ascending by Pos, joined with newlines.
func (o *Output) Text() string {
	return strings.Join(o.LineTexts(), "\n")
}

// Step is a single command within a stage.
type Step struct {
	ID       int     `json:"id,omitempty"`
	StepID   int     `json:"step_id,omitempty"`
	Number   int     `json:"number"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	ExitCode int     `json:"exit_code"`
	Started  int64   `json:"started,omitempty"`
	Stopped  int64   `json:"stopped,omitempty"`
	Version  int     `json:"version,omitempty"`
	Output   *Output `json:"output,omitempty"`
}

// Failed reports whether the step ended with a nonzero exit code.
func (s *Step) Failed() bool {
	return s.ExitCode != 0
}

// StartedAt converts the epoch Started timestamp; zero time when unset.
func (s *Step) StartedAt() time.Time {
	return epochTime(s.Started)
}

// StoppedAt converts the epoch Stopped timestamp; zero time when unset.
func (s *Step) StoppedAt() time.Time {
	return epochTime(s.Stopped)
}

// Stage is an execution phase within a build.
type Stage struct {
	ID        int     `json:"id,omitempty"`
	RepoID    int     `json:"repo_id,omitempty"`
	BuildID   int     `json:"build_id,omitempty"`
	Number    int     `json:"number"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind,omitempty"`
	Type      string  `json:"type,omitempty"`
	Status    string  `json:"status"`
	ExitCode  int     `json:"exit_code"`
	Machine   string  `json:"machine,omitempty"`
	OS        string  `json:"os,omitempty"`
	Arch      string  `json:"arch,omitempty"`
	Started   int64   `json:"started,omitempty"`
	Stopped   int64   `json:"stopped,omitempty"`
	Created   int64   `json:"created,omitempty"`
	Updated   int64   `json:"updated,omitempty"`
	Version   int     `json:"version,omitempty"`
	OnSuccess bool    `json:"on_success,omitempty"`
	OnFailure bool    `json:"on_failure,omitempty"`
	Steps     []*Step `json:"steps,omitempty"`
}

// Failed reports whether the stage failed or is still running.
// A stage is considered failed when its exit code is nonzero or its
// status is "failure" or "running".
func (s *Stage) Failed() bool {
	return s.ExitCode != 0 || s.Status == StatusFailure || s.Status == StatusRunning
}

// FailedSteps returns the steps with a nonzero exit code, in order.
func (s *Stage) FailedSteps() []*Step {
	var failed []*Step
	for _, step := range s.Steps {
		if step.Failed() {
			failed = append(failed, step)
		}
	}
	return failed
}

// Build statuses reported by the Drone API.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusRunning = "running"
	StatusPending = "pending"
	StatusKilled  = "killed"
	StatusSkipped = "skipped"
)

// Build is one execution of a CI pipeline.
type Build struct {
	ID          int      `json:"id,omitempty"`
	RepoID      int      `json:"repo_id,omitempty"`
	Number      int      `json:"number"`
	Status      string   `json:"status"`
	Event       string   `json:"event,omitempty"`
	Action      string   `json:"action,omitempty"`
	Link        string   `json:"link"`
	Message     string   `json:"message,omitempty"`
	Before      string   `json:"before,omitempty"`
	After       string   `json:"after,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	SourceRepo  string   `json:"source_repo,omitempty"`
	Source      string   `json:"source,omitempty"`
	Target      string   `json:"target,omitempty"`
	AuthorLogin string   `json:"author_login"`
	AuthorName  string   `json:"author_name,omitempty"`
	AuthorEmail string   `json:"author_email,omitempty"`
	Sender      string   `json:"sender,omitempty"`
	Started     int64    `json:"started,omitempty"`
	Finished    int64    `json:"finished,omitempty"`
	Created     int64    `json:"created,omitempty"`
	Updated     int64    `json:"updated,omitempty"`
	Version     int      `json:"version,omitempty"`
	Stages      []*Stage `json:"stages,omitempty"`
}

// FailedStages returns the stages considered failed (nonzero exit code or
// status failure/running), in order.
func (b *Build) FailedStages() []*Stage {
	var failed []*Stage
	for _, stage := range b.Stages {
		if stage.Failed() {
			failed = append(failed, stage)
		}
	}
	return failed
}

// LastActivity is the later of the finished and updated timestamps.
// GetBuilds sorts descending on this value.
func (b *Build) LastActivity() int64 {
	if b.Finished > b.Updated {
		return b.Finished
	}
	return b.Updated
}

// CreatedAt converts the epoch Created timestamp; zero time when unset.
func (b *Build) CreatedAt() time.Time { return epochTime(b.Created) }

// StartedAt converts the epoch Started timestamp; zero time when unset.
func (b *Build) StartedAt() time.Time { return epochTime(b.Started) }

// FinishedAt converts the epoch Finished timestamp; zero time when unset.
func (b *Build) FinishedAt() time.Time { return epochTime(b.Finished) }

// UpdatedAt converts the epoch Updated timestamp; zero time when unset.
func (b *Build) UpdatedAt() time.Time { return epochTime(b.Updated) }

func epochTime(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// AnalysisContext is the (build, stage, step) triple evaluated by a rule.
// It holds non-owning references valid for a single rule-engine invocation;
// the stage must belong to the build and the step to the stage.
type AnalysisContext struct {
	Build *Build
	Stage *Stage
	Step  *Step
}
