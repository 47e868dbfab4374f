// internal/nodeid/parser_test.go
package nodeid

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		rawID        string
		expectErr    bool
		expectedAddr Address
	}{
		{
			name:         "block address",
			rawID:        "base.devel",
			expectedAddr: Address{Kind: KindBase, Name: "devel"},
		},
		{
			name:         "artifact address",
			rawID:        "stage.worker.launcher",
			expectedAddr: Address{Kind: KindStage, Name: "worker", Attr: "launcher"},
		},
		{
			name:         "hyphenated name",
			rawID:        "compose.gpu-node",
			expectedAddr: Address{Kind: KindCompose, Name: "gpu-node"},
		},
		{
			name:      "error - empty string",
			rawID:     "",
			expectErr: true,
		},
		{
			name:      "error - single segment",
			rawID:     "stage",
			expectErr: true,
		},
		{
			name:      "error - empty path segment",
			rawID:     "stage..env",
			expectErr: true,
		},
		{
			name:      "error - too many segments",
			rawID:     "stage.host.env.extra",
			expectErr: true,
		},
		{
			name:      "error - just hyphen",
			rawID:     "stage.-",
			expectErr: true,
		},
		{
			name:      "error - index syntax",
			rawID:     "stage.host[0]",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := Parse(tc.rawID)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAddr, addr)
			assert.Equal(t, tc.rawID, addr.String())
		})
	}
}

func TestFromTraversal(t *testing.T) {
	parse := func(t *testing.T, src string) hcl.Traversal {
		t.Helper()
		traversal, diags := hclsyntax.ParseTraversalAbs([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
		require.False(t, diags.HasErrors(), diags.Error())
		return traversal
	}

	t.Run("artifact reference", func(t *testing.T) {
		addr, err := FromTraversal(parse(t, "stage.host.env"))
		require.NoError(t, err)
		assert.Equal(t, Artifact("host", "env"), addr)
		assert.True(t, addr.IsArtifact())
		assert.Equal(t, New(KindStage, "host"), addr.Block())
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		_, err := FromTraversal(parse(t, "var.python"))
		assert.ErrorContains(t, err, "unknown reference kind")
	})

	t.Run("index is rejected", func(t *testing.T) {
		_, err := FromTraversal(parse(t, "stage.host[0]"))
		assert.ErrorContains(t, err, "not allowed")
	})
}
