package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLambdaDefaultArgs(t *testing.T) {
	t.Run("outside lambda", func(t *testing.T) {
		t.Setenv(lambdaRuntimeAPIEnv, "")
		args, err := lambdaDefaultArgs(nil)
		require.NoError(t, err)
		assert.Nil(t, args)
	})

	t.Run("explicit args win", func(t *testing.T) {
		t.Setenv(lambdaRuntimeAPIEnv, "127.0.0.1:9001")
		t.Setenv(handlerSelectorEnv, "query")
		args, err := lambdaDefaultArgs([]string{"search", "-q", "cat"})
		require.NoError(t, err)
		assert.Nil(t, args)
	})

	t.Run("selects handler", func(t *testing.T) {
		t.Setenv(lambdaRuntimeAPIEnv, "127.0.0.1:9001")
		for _, handler := range []string{"ingest", "query"} {
			t.Setenv(handlerSelectorEnv, handler)
			args, err := lambdaDefaultArgs(nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"lambda", handler}, args)
		}
	})

	t.Run("unknown handler", func(t *testing.T) {
		t.Setenv(lambdaRuntimeAPIEnv, "127.0.0.1:9001")
		t.Setenv(handlerSelectorEnv, "")
		_, err := lambdaDefaultArgs(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), handlerSelectorEnv)
	})
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"lambda", "ingest", "search", "reindex", "recreate-index", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestLambdaCommandRejectsUnknownHandler(t *testing.T) {
	err := lambdaCmd.Args(lambdaCmd, []string{"resize"})
	require.Error(t, err)
	require.NoError(t, lambdaCmd.Args(lambdaCmd, []string{"query"}))
}
