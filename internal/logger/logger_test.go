package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig("JobManager", Config{AppEnv: "production", Out: &buf})

	log.ForJob("job-1").LogInfof("created %s", "job-1")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "JobManager", line["component"])
	assert.Equal(t, "job-1", line["job_id"])
	assert.Equal(t, "created job-1", line["message"])
}

func TestProductionLoggerSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig("Worker", Config{AppEnv: "production", Out: &buf})

	log.LogDebugf("noisy")
	assert.Zero(t, buf.Len())
}

func TestConsoleLoggerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig("Executor", Config{AppEnv: "development", Out: &buf})

	log.LogWarnf("slow generation")
	assert.Contains(t, buf.String(), "[Executor] slow generation")
	assert.Equal(t, "Executor", log.Component())
}
