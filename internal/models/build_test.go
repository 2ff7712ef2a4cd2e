package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputTextSortsByPosition(t *testing.T) {
	output := &Output{Lines: []OutputLine{
		{Pos: 2, Out: "third"},
		{Pos: 0, Out: "first"},
		{Pos: 1, Out: "second"},
	}}

	assert.Equal(t, []string{"first", "second", "third"}, output.LineTexts())
	assert.Equal(t, "first\nsecond\nthird", output.Text())
}

func TestOutputTextNilSafe(t *testing.T) {
	var output *Output
	assert.Empty(t, output.LineTexts())
	assert.Equal(t, "", output.Text())
}

func TestFailedStagesIncludesRunning(t *testing.T) {
	build := &Build{Stages: []*Stage{
		{Number: 1, Status: StatusSuccess, ExitCode: 0},
		{Number: 2, Status: StatusRunning, ExitCode: 0},
		{Number: 3, Status: StatusFailure, ExitCode: 1},
		{Number: 4, Status: StatusSuccess, ExitCode: 2},
	}}

	failed := build.FailedStages()
	require.Len(t, failed, 3)
	assert.Equal(t, 2, failed[0].Number)
	assert.Equal(t, 3, failed[1].Number)
	assert.Equal(t, 4, failed[2].Number)
}

func TestFailedStepsByExitCodeOnly(t *testing.T) {
	stage := &Stage{Steps: []*Step{
		{Number: 1, Status: StatusFailure, ExitCode: 0},
		{Number: 2, Status: StatusSuccess, ExitCode: 1},
	}}

	failed := stage.FailedSteps()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Number)
}

func TestLastActivityPicksLaterTimestamp(t *testing.T) {
	assert.Equal(t, int64(20), (&Build{Finished: 20, Updated: 10}).LastActivity())
	assert.Equal(t, int64(30), (&Build{Finished: 20, Updated: 30}).LastActivity())
}

func TestParseJobEnvelope(t *testing.T) {
	envelope, err := ParseJobEnvelope([]byte(`{"build_id":42,"ignore_filters":true}`))
	require.NoError(t, err)
	assert.Equal(t, 42, envelope.BuildID)
	assert.True(t, envelope.IgnoreFilters)
}

func TestParseJobEnvelopeRejectsMalformed(t *testing.T) {
	_, err := ParseJobEnvelope([]byte(`{`))
	assert.Error(t, err)

	_, err = ParseJobEnvelope([]byte(`{"ignore_filters":true}`))
	assert.Error(t, err)
}

func TestJobEnvelopeRoundTrip(t *testing.T) {
	data, err := (&JobEnvelope{BuildID: 7}).ToJSON()
	require.NoError(t, err)

	envelope, err := ParseJobEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, 7, envelope.BuildID)
	assert.False(t, envelope.IgnoreFilters)
}
