package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const configFile = `
platforms:
  - name: ple
    type: memory
    config:
      announcement: |
        class node {
            unsigned node_id;
            string   hostname;
            string   arch;
            KEY(node_id);
            CAPABILITY(retrieve, join, selection, projection);
        };
      records:
        node:
          - {node_id: 1, hostname: planetlab1.inria.fr, arch: x86}
          - {node_id: 2, hostname: planetlab2.inria.fr, arch: arm}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configFile), 0o600))

	root := NewRootCommand("manifold")
	RegisterRootFlags(root)
	root.AddCommand(NewQueryCommand(root.Use), NewExplainCommand(), NewMetadataCommand(), NewPlatformsCommand(), NewManCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", path))
	err := root.Execute()
	return out.String(), err
}

func TestQueryCommand(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "query", "get", "node", "--select", "hostname", "--where", "arch == x86")
	require.NoError(err)
	require.Equal("hostname=planetlab1.inria.fr\n", out)

	out, err = run(t, "query", "get", "node", "--select", "node_id", "-o", "yaml")
	require.NoError(err)
	require.Equal("- node_id: 1\n- node_id: 2\n", out)

	_, err = run(t, "query", "get", "site")
	require.ErrorContains(err, "site")

	_, err = run(t, "query", "get")
	require.Error(err)
}

func TestLocalCommands(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "platforms")
	require.NoError(err)
	require.Contains(out, "platform=ple")
	require.Contains(out, "enabled=true")

	out, err = run(t, "metadata", "-o", "yaml")
	require.NoError(err)
	require.Contains(out, "table: node")

	out, err = run(t, "explain", "node", "--select", "hostname")
	require.NoError(err)
	require.Contains(out, "From(ple")
}

func TestManCommand(t *testing.T) {
	require := require.New(t)

	out, err := run(t, "man")
	require.NoError(err)
	require.Contains(out, ".TH")
	require.Contains(out, "query")
}
