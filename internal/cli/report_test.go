package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cvdsim/internal/store"
	"github.com/roach88/cvdsim/internal/testutil"
)

// storeAcuteRun runs the acute_event model into dbPath under runID.
func storeAcuteRun(t *testing.T, dbPath, runID string, extraArgs ...string) {
	t.Helper()
	args := append([]string{acuteModelsDir, "--config", writeRunConfig(t, acuteRunYAML), "--db", dbPath}, extraArgs...)
	_, err := executeRun(t, &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		IDGenerator: testutil.NewFixedIDGenerator(runID),
	}, args...)
	require.NoError(t, err)
}

func executeReport(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewReportCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

type reportResponse struct {
	Status string       `json:"status"`
	Data   ReportResult `json:"data"`
	Error  *CLIError    `json:"error"`
}

func decodeReport(t *testing.T, buf *bytes.Buffer) reportResponse {
	t.Helper()
	var resp reportResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestReportLatestRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")

	buf, err := executeReport(t, "text", "--db", dbPath)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Run run-1 (seed 7, 4 steps, model ")
	assert.Contains(t, output, "KEY")
	assert.Contains(t, output, "acute_person_time")
	assert.Contains(t, output, "at_risk_to_acute_event_count")
}

func TestReportSelectsRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")
	storeAcuteRun(t, dbPath, "run-2", "--steps", "2")

	buf, err := executeReport(t, "json", "--db", dbPath)
	require.NoError(t, err)
	resp := decodeReport(t, buf)
	assert.Equal(t, "run-2", resp.Data.Run.ID)
	assert.Equal(t, 2, resp.Data.Run.Steps)
	assert.Equal(t, int64(2), resp.Data.Run.Seq)

	buf, err = executeReport(t, "json", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)
	resp = decodeReport(t, buf)
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	assert.Equal(t, 4, resp.Data.Run.Steps)
	assert.Len(t, resp.Data.Entries, 5)
}

func TestReportFilters(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "measure",
			args: []string{"--measure", "event_count"},
			want: []string{"acute_to_post_acute_event_count", "at_risk_to_acute_event_count"},
		},
		{
			name: "match",
			args: []string{"--match", "acute_person_time"},
			want: []string{"acute_person_time", "post_acute_person_time"},
		},
		{
			name: "disease and measure",
			args: []string{"--disease", "acute_event", "--measure", "person_time"},
			want: []string{"acute_person_time", "at_risk_person_time", "post_acute_person_time"},
		},
		{
			name: "unknown disease",
			args: []string{"--disease", "ischemic_stroke"},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := executeReport(t, "json", append([]string{"--db", dbPath}, tt.args...)...)
			require.NoError(t, err)
			resp := decodeReport(t, buf)

			keys := make([]string, 0, len(resp.Data.Entries))
			for _, e := range resp.Data.Entries {
				keys = append(keys, e.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestReportNoMatches(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")

	buf, err := executeReport(t, "text", "--db", dbPath, "--stratum", "SBP_high")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No matching report values.")
}

func TestReportUnknownMeasure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")

	_, err := executeReport(t, "text", "--db", dbPath, "--measure", "prevalence")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown measure "prevalence"`)
}

func TestReportUnknownRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	storeAcuteRun(t, dbPath, "run-1")

	buf, err := executeReport(t, "json", "--db", dbPath, "--run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeReport(t, buf)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "run not found: nope")
}

func TestReportEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = executeReport(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database has no runs")
}

func TestReportMissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing.db")

	_, err := executeReport(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
	assert.NoFileExists(t, dbPath)
}
