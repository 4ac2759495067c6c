package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dockerTranscript = "Task: add a docker healthcheck\n" +
	"I decided to use curl inside the container image.\n" +
	"Successfully built the image with the new probe.\n" +
	"Modified `healthcheck.sh` for the stack.\n"

func execute(t *testing.T, root, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--root", root}, args...),
		strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func writeTranscript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestExtract(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, "session.txt", dockerTranscript)

	out, err := execute(t, root, "", "extract", path, "--project", "shop")
	require.NoError(t, err)

	res := decode(t, out)
	assert.NotEmpty(t, res["episode_id"])
	assert.Equal(t, "add a docker healthcheck", res["task"])
	assert.Equal(t, true, res["success"])
	assert.Contains(t, res["tags"], "docker")
}

func TestExtract_MissingTranscriptStillWritesEpisode(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "extract", filepath.Join(t.TempDir(), "gone.jsonl"))
	require.NoError(t, err)
	assert.NotEmpty(t, decode(t, out)["episode_id"])
}

func TestExtract_RequiresPath(t *testing.T) {
	_, err := execute(t, t.TempDir(), "", "extract")
	require.Error(t, err)
}

func TestPatterns_AfterThreeDockerSessions(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		path := writeTranscript(t, fmt.Sprintf("s%d.txt", i), dockerTranscript)
		_, err := execute(t, root, "", "extract", path, "--project", "shop")
		require.NoError(t, err)
	}

	out, err := execute(t, root, "", "patterns")
	require.NoError(t, err)
	res := decode(t, out)
	assert.GreaterOrEqual(t, res["rules_saved"], float64(1))

	out, err = execute(t, root, "", "status")
	require.NoError(t, err)
	st := decode(t, out)
	assert.EqualValues(t, 3, st["episode_count"])
	assert.GreaterOrEqual(t, st["procedural_rules"], float64(1))
	assert.Equal(t, true, st["cold_path_enabled"])
}

func TestPatterns_NothingDetected(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "patterns")
	require.NoError(t, err)
	res := decode(t, out)
	assert.EqualValues(t, 0, res["rules_detected"])
	assert.EqualValues(t, 0, res["rules_saved"])
}

func TestCleanup_EmptyStore(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "cleanup")
	require.NoError(t, err)
	res := decode(t, out)
	assert.EqualValues(t, 0, res["episodes_removed"])
	assert.EqualValues(t, 0, res["facts_expired"])
}

func TestDecay_EmptyStore(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "decay")
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, out)["rules_decayed"])
}

func TestStatus_ReportsLogActivity(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, "session.txt", dockerTranscript)
	_, err := execute(t, root, "", "extract", path, "--project", "shop")
	require.NoError(t, err)

	out, err := execute(t, root, "", "status", "--lines", "5")
	require.NoError(t, err)
	st := decode(t, out)
	activity, ok := st["recent_activity"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, activity)
	assert.Contains(t, fmt.Sprint(activity...), "episode extracted")
}

func TestHook_SessionEndExtracts(t *testing.T) {
	root := t.TempDir()
	path := writeTranscript(t, "session.txt", dockerTranscript)
	event := fmt.Sprintf(`{"hook_event_name":"SessionEnd","session_id":"sess-1","transcript_path":%q,"cwd":"/work/shop"}`, path)

	out, err := execute(t, root, event, "hook")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = execute(t, root, "", "status")
	require.NoError(t, err)
	assert.EqualValues(t, 1, decode(t, out)["episode_count"])
}

func TestHook_SessionStartInjectsRulePrompts(t *testing.T) {
	root := t.TempDir()
	rules := `{"rules":[{"rule_id":"proc-1","trigger":"docker","behavior":"Add a healthcheck",` +
		`"confidence":0.9,"active":true,"injection_point":"SessionStart",` +
		`"prompt_template":"Remember: add a healthcheck to every docker service."}]}`
	require.NoError(t, os.MkdirAll(filepath.Join(root, "procedural"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "procedural", "rules.json"), []byte(rules), 0600))

	out, err := execute(t, root, "", "hook", "session-start")
	require.NoError(t, err)

	var resp struct {
		HookSpecificOutput struct {
			HookEventName     string `json:"hookEventName"`
			AdditionalContext string `json:"additionalContext"`
		} `json:"hookSpecificOutput"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "SessionStart", resp.HookSpecificOutput.HookEventName)
	assert.Contains(t, resp.HookSpecificOutput.AdditionalContext, "add a healthcheck")
}

func TestHook_UnknownEvent(t *testing.T) {
	_, err := execute(t, t.TempDir(), "", "hook", "lunch-break")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown hook type")
}

func TestHook_MissingEventName(t *testing.T) {
	_, err := execute(t, t.TempDir(), "{}", "hook")
	require.Error(t, err)
}
