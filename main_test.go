package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic/config"
	"traffic/pipeline"
)

func execute(t *testing.T, args ...string) (*pipeline.Options, string, error) {
	t.Helper()
	var got *pipeline.Options
	cmd := newRootCmd(func(opts pipeline.Options) error {
		got = &opts
		return nil
	})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return got, out.String(), err
}

func TestUsageOnWrongArgCount(t *testing.T) {
	for _, args := range [][]string{{}, {"data", "model.gob", "extra"}} {
		opts, out, err := execute(t, args...)
		require.Error(t, err, "args %v", args)
		assert.Nil(t, opts, "nothing should run for args %v", args)
		assert.Contains(t, out, "Usage:")
		assert.Contains(t, out, "traffic data_directory [model_file]")
		assert.Contains(t, out, "TRAFFIC_EPOCHS")
	}
}

func TestDataDirectoryOnly(t *testing.T) {
	opts, _, err := execute(t, "gtsrb")
	require.NoError(t, err)
	require.NotNil(t, opts)
	assert.Equal(t, "gtsrb", opts.DataDir)
	assert.Empty(t, opts.OutputPath)
	assert.Equal(t, config.Default().NumCategories, opts.Config.NumCategories)
}

func TestDataDirectoryAndModelFile(t *testing.T) {
	opts, _, err := execute(t, "gtsrb", "model.gob")
	require.NoError(t, err)
	require.NotNil(t, opts)
	assert.Equal(t, "gtsrb", opts.DataDir)
	assert.Equal(t, "model.gob", opts.OutputPath)
}

func TestRunErrorSkipsUsage(t *testing.T) {
	cmd := newRootCmd(func(pipeline.Options) error { return errors.New("boom") })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"gtsrb"})

	err := cmd.Execute()
	assert.EqualError(t, err, "boom")
	assert.NotContains(t, out.String(), "Usage:")
}

func TestInvalidEnvironmentFailsBeforeRun(t *testing.T) {
	t.Setenv("TRAFFIC_TEST_SIZE", "2")
	opts, _, err := execute(t, "gtsrb")
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Nil(t, opts)
}
