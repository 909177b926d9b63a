package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/certimport/internal/credential"
	"github.com/JonMunkholm/certimport/internal/ingest"
	"github.com/JonMunkholm/certimport/internal/store"
)

const sampleCSV = `certificateID,firstName,middleName,lastName,department,college,gender,cgpa,program,programType,gstatus,startDate,endDate
CS-501,Meron,Tadesse,Bekele,Computer Science,Engineering and Technology,female,3.7,BSc,regular,verified,2019-09-15,2023-07-01
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grads.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunImport(t *testing.T) {
	mem := store.NewMemory()
	p := ingest.NewPipeline(mem, credential.DefaultCatalog(), nil)
	tempDir := t.TempDir()
	path := writeSample(t, sampleCSV)

	var out bytes.Buffer
	require.NoError(t, runImport(context.Background(), p, tempDir, path, importOptions{}, &out))

	var resp ingest.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, mem.Count())

	// The caller's file survives; the staged copy does not.
	assert.FileExists(t, path)
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunImport_RejectedExitCode(t *testing.T) {
	p := ingest.NewPipeline(store.NewMemory(), credential.DefaultCatalog(), nil)
	path := writeSample(t, strings.Replace(sampleCSV, "3.7", "5.0", 1))

	var out bytes.Buffer
	err := runImport(context.Background(), p, t.TempDir(), path, importOptions{}, &out)

	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitRejected, ee.code)
	assert.Contains(t, out.String(), `"type": "validation"`)
}

func TestRunImport_MissingFile(t *testing.T) {
	p := ingest.NewPipeline(store.NewMemory(), credential.DefaultCatalog(), nil)

	err := runImport(context.Background(), p, t.TempDir(), "/does/not/exist.csv", importOptions{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	cmd := newMigrateDownCmd()
	cmd.SetArgs([]string{"--steps", "0"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, cmd.Execute(), "--steps must be positive")
}

func TestRootCmd(t *testing.T) {
	cmd := rootCmd()
	assert.Equal(t, "certctl", cmd.Use)
	assert.True(t, cmd.SilenceUsage)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"import", "migrate"})
}
