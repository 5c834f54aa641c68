package netscan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshnet-io/meshconn/internal/pkg/meshnet"
)

func rec(ip string) meshnet.NetworkInterfaceRecord {
	return meshnet.NetworkInterfaceRecord{LocalIP: ip}
}

func TestDiffAddedAndRemoved(t *testing.T) {
	prev := []meshnet.NetworkInterfaceRecord{rec("10.0.0.1"), rec("10.0.0.2")}
	curr := []meshnet.NetworkInterfaceRecord{rec("10.0.0.2"), rec("10.0.0.3")}

	added, removed := Diff(prev, curr)
	require.Len(t, added, 1)
	require.Equal(t, "10.0.0.3", added[0].LocalIP)
	require.Len(t, removed, 1)
	require.Equal(t, "10.0.0.1", removed[0].LocalIP)
}

func TestDiffEmptyWhenUnchanged(t *testing.T) {
	set := []meshnet.NetworkInterfaceRecord{rec("10.0.0.1")}
	added, removed := Diff(set, set)
	require.Empty(t, added)
	require.Empty(t, removed)
}
