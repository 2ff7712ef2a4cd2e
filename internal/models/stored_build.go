package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoredBuild is the persistence projection of a Build.
// Identity is (owner, repo, number); created on first observation,
// mutated on each refetch, never deleted.
type StoredBuild struct {
	Key         string `badgerhold:"key"`
	BuildID     int    `json:"build_id"`
	Number      int    `badgerholdIndex:"Number" json:"number"`
	Status      string `json:"status"`
	Link        string `badgerholdIndex:"Link" json:"link"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	AuthorLogin string `json:"author_login"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`

	// DroneAPIData is the full Build snapshot as returned by the API.
	DroneAPIData []byte `json:"drone_api_data,omitempty"`

	CreatedAt  time.Time `json:"created_at,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`

	OutputRetrievedAt      *time.Time `json:"output_retrieved_at,omitempty"`
	LastRulesetProcessedAt *time.Time `json:"last_ruleset_processed_at,omitempty"`
	ErrorType              string     `json:"error_type,omitempty"`
	MatchesJSON            []byte     `json:"matches_json,omitempty"`
}

// StoredBuildKey builds the natural key for a StoredBuild.
func StoredBuildKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, number)
}

// UpdateFromAPI refreshes the row from a Build snapshot. A non-nil
// outputRetrievedAt marks the build's step outputs as fetched.
func (s *StoredBuild) UpdateFromAPI(owner, repo string, build *Build, outputRetrievedAt *time.Time) error {
	data, err := json.Marshal(build)
	if err != nil {
		return fmt.Errorf("failed to serialize build %d: %w", build.Number, err)
	}

	s.Owner = owner
	s.Repo = repo
	s.BuildID = build.ID
	s.Number = build.Number
	s.Status = build.Status
	s.Link = build.Link
	s.AuthorLogin = build.AuthorLogin
	s.AuthorName = build.AuthorName
	s.AuthorEmail = build.AuthorEmail
	s.DroneAPIData = data
	s.CreatedAt = build.CreatedAt()
	s.StartedAt = build.StartedAt()
	s.FinishedAt = build.FinishedAt()
	s.UpdatedAt = build.UpdatedAt()
	if outputRetrievedAt != nil {
		s.OutputRetrievedAt = outputRetrievedAt
	}
	return nil
}

// ToBuild decodes the stored Build snapshot.
func (s *StoredBuild) ToBuild() (*Build, error) {
	if len(s.DroneAPIData) == 0 {
		return nil, fmt.Errorf("stored build %s has no API snapshot", s.Key)
	}
	var build Build
	if err := json.Unmarshal(s.DroneAPIData, &build); err != nil {
		return nil, fmt.Errorf("failed to decode stored build %s: %w", s.Key, err)
	}
	return &build, nil
}

// Terminal reports whether the build finished and its outputs were fetched.
// Terminal processed builds are skipped unless filters are ignored.
func (s *StoredBuild) Terminal() bool {
	return s.Status != StatusRunning && s.OutputRetrievedAt != nil
}

// BuildDocument is the search-index projection of a StoredBuild:
// the base row plus the decoded build, stage, step and matches.
type BuildDocument struct {
	Owner                  string          `json:"owner"`
	Repo                   string          `json:"repo"`
	Number                 int             `json:"number"`
	Status                 string          `json:"status"`
	Link                   string          `json:"link"`
	AuthorLogin            string          `json:"author_login"`
	AuthorName             string          `json:"author_name,omitempty"`
	AuthorEmail            string          `json:"author_email,omitempty"`
	CreatedAt              time.Time       `json:"created_at,omitempty"`
	StartedAt              time.Time       `json:"started_at,omitempty"`
	FinishedAt             time.Time       `json:"finished_at,omitempty"`
	UpdatedAt              time.Time       `json:"updated_at,omitempty"`
	OutputRetrievedAt      *time.Time      `json:"output_retrieved_at,omitempty"`
	LastRulesetProcessedAt *time.Time      `json:"last_ruleset_processed_at,omitempty"`
	Build                  *Build          `json:"build,omitempty"`
	Stage                  *Stage          `json:"stage,omitempty"`
	Step                   *Step           `json:"step,omitempty"`
	Matches                json.RawMessage `json:"matches,omitempty"`
}

// ToDocument projects the row for indexed search. Stage and step identify
// the analysis context that produced the stored matches, when known.
func (s *StoredBuild) ToDocument(stage *Stage, step *Step) (*BuildDocument, error) {
	build, err := s.ToBuild()
	if err != nil {
		return nil, err
	}
	doc := &BuildDocument{
		Owner:                  s.Owner,
		Repo:                   s.Repo,
		Number:                 s.Number,
		Status:                 s.Status,
		Link:                   s.Link,
		AuthorLogin:            s.AuthorLogin,
		AuthorName:             s.AuthorName,
		AuthorEmail:            s.AuthorEmail,
		CreatedAt:              s.CreatedAt,
		StartedAt:              s.StartedAt,
		FinishedAt:             s.FinishedAt,
		UpdatedAt:              s.UpdatedAt,
		OutputRetrievedAt:      s.OutputRetrievedAt,
		LastRulesetProcessedAt: s.LastRulesetProcessedAt,
		Build:                  build,
		Stage:                  stage,
		Step:                   step,
	}
	if len(s.MatchesJSON) > 0 {
		doc.Matches = json.RawMessage(s.MatchesJSON)
	}
	return doc, nil
}

// StoredStep is the persistence projection of a Step's output, located by
// (stage_number, step_number) within a stored build.
type StoredStep struct {
	Key                string `badgerhold:"key"`
	StoredBuildKey     string `badgerholdIndex:"StoredBuildKey" json:"stored_build_key"`
	BuildNumber        int    `json:"build_number"`
	StageNumber        int    `json:"stage_number"`
	Number             int    `json:"number"`
	Status             string `json:"status,omitempty"`
	ExitCode           int    `json:"exit_code,omitempty"`
	OutputDroneAPIData []byte `json:"output_drone_api_data,omitempty"`

	StartedAt      time.Time  `json:"started_at,omitempty"`
	StoppedAt      time.Time  `json:"stopped_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at,omitempty"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
}

// StoredStepKey builds the natural key for a StoredStep.
func StoredStepKey(buildKey string, stageNumber, stepNumber int) string {
	return fmt.Sprintf("%s/%d/%d", buildKey, stageNumber, stepNumber)
}
