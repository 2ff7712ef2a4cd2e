package models

import "time"

// User is an opted-in notification recipient keyed by GitHub username.
type User struct {
	ID             string `badgerhold:"key"`
	GithubUsername string `badgerholdIndex:"GithubUsername" json:"github_username"`
	SlackUsername  string `json:"slack_username,omitempty"`
	SlackUserID    string `json:"slack_user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	OptedIn        bool   `json:"opted_in"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
