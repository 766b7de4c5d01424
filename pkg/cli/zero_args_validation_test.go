package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZeroArgCommandsRejectUnexpectedPositionalArgs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runRoot(t, "config", "set-profile", "--name", "default", "--host", "http://127.0.0.1:65535")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{name: "version", args: []string{"version", "extra"}},
		{name: "config show", args: []string{"config", "show", "extra"}},
		{name: "config set-profile", args: []string{"config", "set-profile", "--name", "p", "extra"}},
		{name: "tables list", args: []string{"tables", "list", "extra"}},
		{name: "auth login", args: []string{"auth", "login", "extra"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runRoot(t, tc.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), "unknown command \"extra\"")
		})
	}
}
