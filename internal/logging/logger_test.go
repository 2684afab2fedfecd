package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToInfoJSONAndDevelopment(t *testing.T) {
	log := New("pipeline")
	require.NotNil(t, log)
	assert.Equal(t, "pipeline", log.serviceName)
}

func TestNew_HonorsEnvironmentVariableOverride(t *testing.T) {
	t.Setenv("IAROS_ENV", "staging")
	log := New("pipeline")
	require.NotNil(t, log)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	assert.NotPanics(t, func() {
		New("pipeline", Config{Level: "not-a-level"})
	})
}

func TestNew_ConsoleFormatDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New("pipeline", Config{Format: "console"})
	})
}

func TestWithTenant_PreservesServiceNameAndDoesNotMutateParent(t *testing.T) {
	base := New("pipeline")
	scoped := base.WithTenant(7)
	require.NotNil(t, scoped)
	assert.Equal(t, "pipeline", scoped.serviceName)
	assert.NotSame(t, base, scoped)
}

func TestWithRun_PreservesServiceName(t *testing.T) {
	base := New("pipeline")
	scoped := base.WithRun("run-123")
	assert.Equal(t, "pipeline", scoped.serviceName)
}

func TestPipelineStageLogger_DoesNotPanic(t *testing.T) {
	log := New("pipeline")
	assert.NotPanics(t, func() {
		log.PipelineStageLogger("ingest", 0, 10)
	})
}

func TestRuleViolationLogger_DoesNotPanicForEitherSeverity(t *testing.T) {
	log := New("pipeline")
	assert.NotPanics(t, func() {
		log.RuleViolationLogger("MISSING_EMAIL", "ERROR", "C-001")
		log.RuleViolationLogger("LOW_DIVERSITY", "WARN", "C-002")
	})
}

func TestStorageQueryLogger_DoesNotPanic(t *testing.T) {
	log := New("pipeline")
	assert.NotPanics(t, func() {
		log.StorageQueryLogger("UpsertClients", 0, 3)
	})
}
