package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hotAnswers = `{
  "email": "sam@example.com",
  "start_timing": "This Week",
  "monthly_investment": "£600+",
  "time_commitment_weekly": "5+ hours",
  "training_days_current": "6+ days",
  "coaching_preference": "Online"
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreFromStdinAsJSON(t *testing.T) {
	out, err := execute(t, hotAnswers, "score", "-", "--output", "json")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "HOT", got["segment"])
	assert.Contains(t, got, "score")
	assert.Contains(t, got, "bottleneck")
	assert.Contains(t, got, "breakdown")
}

func TestScoreFromFileAsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(hotAnswers), 0o600))

	out, err := execute(t, "", "score", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Segment:    HOT")
	assert.Contains(t, out, "Bottleneck: ")
}

func TestWantsUploadFlagMatchesAnswer(t *testing.T) {
	body := `{"email":"a@b.co","biggest_blocker":"Results Not Happening"}`
	withFlag, err := execute(t, body, "score", "-o", "json", "--wants-upload")
	require.NoError(t, err)

	withAnswer, err := execute(t, `{"email":"a@b.co","biggest_blocker":"Results Not Happening","wants_upload":"Yes"}`, "score", "-o", "json")
	require.NoError(t, err)

	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(withFlag), &a))
	require.NoError(t, json.Unmarshal([]byte(withAnswer), &b))
	assert.Equal(t, b["bottleneck"], a["bottleneck"])
	assert.Equal(t, b["breakdown"], a["breakdown"])
}

func TestScoreRejectsBadInput(t *testing.T) {
	_, err := execute(t, "not json", "score")
	require.ErrorContains(t, err, "decode answers")

	_, err = execute(t, hotAnswers, "score", "--output", "yaml")
	require.ErrorContains(t, err, "unknown output")

	_, err = execute(t, "", "score", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
