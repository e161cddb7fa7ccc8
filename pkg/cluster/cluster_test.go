package cluster_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/cluster"
)

func TestStatic(t *testing.T) {
	require.True(t, cluster.Static(true).AmILeader())
	require.False(t, cluster.Static(false).AmILeader())
}

func TestFlagToggle(t *testing.T) {
	f := cluster.NewFlag(false)
	require.False(t, f.AmILeader())

	f.SetLeader(true)
	require.True(t, f.AmILeader())
}

func TestFlagConcurrentAccess(t *testing.T) {
	f := cluster.NewFlag(true)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); f.SetLeader(i%2 == 0) }()
		go func() { defer wg.Done(); _ = f.AmILeader() }()
	}
	wg.Wait()
}
