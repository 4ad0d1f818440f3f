package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/domain"
)

const chestPainYAML = `
patientId: patient-a
demographics:
  age: 70
symptoms:
  - chest pain
medications:
  - name: warfarin
  - name: aspirin
labResults:
  - testName: Troponin I
    value: 0.5
    abnormal: true
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEvaluate_YAML(t *testing.T) {
	path := writeFile(t, "context.yaml", chestPainYAML)

	out, err := execute(t, "evaluate", "--file", path, "--tenant", "t-1")
	require.NoError(t, err)

	var result domain.CDSResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.SessionID)
	require.NotEmpty(t, result.Recommendations)
	assert.Equal(t, domain.PriorityCritical, result.Recommendations[0].Priority)
	require.Len(t, result.Alerts, 2)
	assert.Equal(t, "t-1", result.Alerts[0].TenantID)
	assert.Equal(t, "patient-a", result.Alerts[0].PatientID)
}

func TestEvaluate_JSONMatchesYAML(t *testing.T) {
	yamlPath := writeFile(t, "context.yml", chestPainYAML)
	jsonPath := writeFile(t, "context.json", `{
  "patientId": "patient-a",
  "demographics": {"age": 70},
  "symptoms": ["chest pain"],
  "medications": [{"name": "warfarin"}, {"name": "aspirin"}],
  "labResults": [{"testName": "Troponin I", "value": 0.5, "abnormal": true}]
}`)

	fromYAML, err := readClinicalContext(yamlPath)
	require.NoError(t, err)
	fromJSON, err := readClinicalContext(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := execute(t, "evaluate")
	assert.Error(t, err, "--file is required")

	_, err = execute(t, "evaluate", "--file", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read context file")

	bad := writeFile(t, "bad.json", `{"demographics": {"age": -3}}`)
	_, err = execute(t, "evaluate", "--file", bad)
	assert.ErrorContains(t, err, "age must be between 0 and 150")
}

func TestEvaluate_MaxRecommendations(t *testing.T) {
	path := writeFile(t, "context.json", `{"symptoms": ["fever", "cough", "shortness of breath"]}`)

	out, err := execute(t, "evaluate", "-f", path, "--max", "1")
	require.NoError(t, err)

	var result domain.CDSResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.LessOrEqual(t, len(result.Recommendations), 1)
}

func TestCatalogShow(t *testing.T) {
	out, err := execute(t, "catalog", "show")
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "2024.1", summary["version"])
}

func TestCatalogValidate(t *testing.T) {
	out, err := execute(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog 2024.1 is valid")

	bad := writeFile(t, "catalog.yaml", "version: broken\nrisk_rules: [")
	_, err = execute(t, "catalog", "validate", "--file", bad)
	assert.ErrorContains(t, err, "catalog is invalid")
}

func TestMigrate_InvalidURL(t *testing.T) {
	_, err := execute(t, "migrate", "version", "--database-url", "not-a-url", "--dir", t.TempDir())
	assert.Error(t, err)
}
