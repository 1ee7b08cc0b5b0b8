package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.InitSchema(ctx))

	s.RecordConnect("alice", "127.0.0.1:5000")
	s.RecordDuplicate("alice", "127.0.0.1:5001")
	s.RecordDisconnect("alice")

	events, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "disconnect", events[0].Kind)
	require.Equal(t, "duplicate", events[1].Kind)
	require.Equal(t, "connect", events[2].Kind)
	require.Equal(t, "127.0.0.1:5000", events[2].RemoteAddr)
}

func TestRecentRespectsLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.InitSchema(ctx))

	for i := 0; i < 5; i++ {
		s.RecordConnect("bob", "")
	}

	events, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
}
