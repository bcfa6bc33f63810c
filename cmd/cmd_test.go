package cmd_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/USA-RedDragon/rosbridge-client/cmd"
	"github.com/USA-RedDragon/rosbridge-client/internal/config"
)

func TestHelp(t *testing.T) {
	t.Parallel()
	baseCmd := cmd.NewCommand("testing", "deadbeef")
	out := new(bytes.Buffer)
	baseCmd.SetOut(out)
	baseCmd.SetArgs([]string{"--help"})
	if err := baseCmd.Execute(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, sub := range []string{"topic", "service", "param", "relay"} {
		if !strings.Contains(out.String(), sub) {
			t.Errorf("help output is missing the %q subcommand", sub)
		}
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()
	baseCmd := cmd.NewCommand("testing", "deadbeef")
	out := new(bytes.Buffer)
	baseCmd.SetOut(out)
	baseCmd.SetArgs([]string{"--version"})
	if err := baseCmd.Execute(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "testing - deadbeef") {
		t.Errorf("unexpected version output: %q", out.String())
	}
}

func TestInvalidLogLevelFails(t *testing.T) {
	t.Parallel()
	baseCmd := cmd.NewCommand("testing", "deadbeef")
	baseCmd.SetArgs([]string{"topic", "list", "--log_level", "verbose"})
	if err := baseCmd.Execute(); !errors.Is(err, config.ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestRelayRequiresTopics(t *testing.T) {
	t.Parallel()
	baseCmd := cmd.NewCommand("testing", "deadbeef")
	baseCmd.SetArgs([]string{"relay"})
	err := baseCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no relay topics") {
		t.Errorf("expected a missing-topics error, got %v", err)
	}
}
