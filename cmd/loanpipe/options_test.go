package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindOptions_Defaults(t *testing.T) {
	var (
		addr    string
		buffer  int
		timeout time.Duration
	)
	cmd := &cobra.Command{Use: "test"}
	BindOptions(newViper(), cmd, []Opt{
		NewOpt(&addr, "listen-addr", "127.0.0.1:7000", ""),
		NewOpt(&buffer, "buffer", 16, ""),
		NewOpt(&timeout, "reply-timeout", 10*time.Second, ""),
	})

	assert.Equal(t, "127.0.0.1:7000", addr)
	assert.Equal(t, 16, buffer)
	assert.Equal(t, 10*time.Second, timeout)
}

func TestBindOptions_EnvThenFlag(t *testing.T) {
	t.Setenv("LOANPIPE_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("LOANPIPE_REPLY_TIMEOUT", "3s")

	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	BindOptions(newViper(), cmd, []Opt{
		NewOpt(&addr, "listen-addr", "127.0.0.1:7000", ""),
		NewOpt(&timeout, "reply-timeout", 10*time.Second, ""),
	})
	assert.Equal(t, "0.0.0.0:9000", addr)
	assert.Equal(t, 3*time.Second, timeout)

	cmd.SetArgs([]string{"--listen-addr", "127.0.0.1:7100"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "127.0.0.1:7100", addr)
	assert.Equal(t, 3*time.Second, timeout)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"store", "dispatcher", "worker", "submit"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestWorkerCommand_RejectsUnknownTopic(t *testing.T) {
	cmd := newWorkerCommand()
	cmd.SetArgs([]string{"--topics", "LEND"})
	assert.Error(t, cmd.Execute())
}
