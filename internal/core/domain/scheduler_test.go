package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.Len(t, config.TaskConfigs, 2)

	// Mail sync waits for an account
	mailCfg := config.TaskConfigs[TaskIDMailSync]
	assert.False(t, mailCfg.Enabled)
	assert.Equal(t, 30*time.Minute, mailCfg.Interval)

	reconcileCfg := config.TaskConfigs[TaskIDReconcile]
	assert.True(t, reconcileCfg.Enabled)
	assert.Equal(t, 6*time.Hour, reconcileCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	cfg := config.GetTaskConfig(TaskIDReconcile)
	assert.True(t, cfg.Enabled)

	unknownCfg := config.GetTaskConfig("unknown-task")
	assert.False(t, unknownCfg.Enabled)
	assert.Equal(t, time.Duration(0), unknownCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{Enabled: true}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Interval)
}
