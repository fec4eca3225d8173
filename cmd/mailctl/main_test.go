package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_MEMORY", "true")
	t.Setenv("TRACKING_SECRET", "cli-test-secret")
	t.Setenv("TRACKING_BASE_URL", "https://t.example.com")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", t.TempDir() + "/missing.yaml"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSegmentValidate(t *testing.T) {
	rules := `{"logic":"AND","conditions":[{"type":"profile","field":"email","operator":"contains","value":"@acme.test"}]}`
	out, err := execute(t, rules, "segment", "validate", "--sql", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "ok (hash ")
	assert.Contains(t, out, "WHERE s.brand_id = $1")
	assert.Contains(t, out, "$1 = <brand>")
}

func TestSegmentValidateRejects(t *testing.T) {
	_, err := execute(t, `{"logic":"XOR"}`, "segment", "validate", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rules")

	_, err = execute(t, `not json`, "segment", "validate", "-")
	require.Error(t, err)
}

func TestTokenPrintsLinks(t *testing.T) {
	out, err := execute(t, "", "token", "seq-1", "enr-1", "ada@example.com", "--target", "https://acme.test/")
	require.NoError(t, err)
	assert.Contains(t, out, "open:        https://t.example.com/t/o/")
	assert.Contains(t, out, "click:       https://t.example.com/t/c/")
	assert.Contains(t, out, "unsubscribe: https://t.example.com/t/u/")

	_, err = execute(t, "", "token", "--scope", "newsletter", "a", "b", "c@example.com")
	assert.ErrorContains(t, err, "unknown scope")
}

func TestExportNeedsOneSource(t *testing.T) {
	_, err := execute(t, "", "export", "--brand", "b1")
	assert.ErrorContains(t, err, "exactly one of --list or --segment")
}
