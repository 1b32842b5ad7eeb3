package main

import (
	"bytes"
	"strings"
	"testing"

	"ai-video-cutter/internal/deps"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: "+version)
	assert.Contains(t, out, "commit: "+commit)
}

func TestProbeRequiresFile(t *testing.T) {
	_, err := runRoot(t, "probe")
	assert.Error(t, err)
}

func TestUnknownCommandFails(t *testing.T) {
	_, err := runRoot(t, "transcode")
	assert.Error(t, err)
}

func TestPrintDiagnoseIncludesDependencyReport(t *testing.T) {
	states := []deps.DependencyState{{
		DependencySpec: deps.DependencySpec{ID: "ffmpeg", Name: "FFmpeg", Tier: deps.DependencyTierMust},
		Status:         deps.DependencyStatusMissing,
		Error:          "not found",
	}}
	var out bytes.Buffer
	printDiagnose(&out, states)

	text := out.String()
	assert.Contains(t, text, "runtime: ")
	assert.Contains(t, text, "Dependency status")
	assert.True(t, strings.Contains(text, "FFmpeg [MUST]: missing"), text)
}
