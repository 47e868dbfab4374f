// internal/nodeid/address_test.go
package nodeid

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress_String(t *testing.T) {
	testCases := []struct {
		name        string
		addr        Address
		expectedStr string
	}{
		{name: "block", addr: New(KindToolchain, "rust"), expectedStr: "toolchain.rust"},
		{name: "artifact", addr: Artifact("ui", "bundle"), expectedStr: "stage.ui.bundle"},
		{name: "node", addr: New(KindRelease, "gpu-node"), expectedStr: "release.gpu-node"},
		{name: "zero", addr: Address{}, expectedStr: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedStr, tc.addr.String())
		})
	}
}

func TestAddress_Ordering(t *testing.T) {
	addrs := []Address{Artifact("worker", "env"), New(KindBase, "runtime"), Artifact("host", "env")}
	sort.Slice(addrs, func(i, j int) bool { return Less(addrs[i], addrs[j]) })

	assert.Equal(t, []Address{New(KindBase, "runtime"), Artifact("host", "env"), Artifact("worker", "env")}, addrs)
	assert.True(t, Address{}.IsZero())
}
