// Package storetest holds behaviour tests shared by every LogStore.
package storetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Zone is the fixed offset the suite writes timestamps in.
var Zone = time.FixedZone("UTC-8", -8*3600)

// Records returns n deterministic tag records one second apart.
func Records(n int) []types.Record {
	base := time.Date(2026, 2, 15, 9, 30, 0, 0, Zone)
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.Record{
			ID:        "rec-" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			UID:       "A1745C3EB7",
			Label:     "Tool 1",
			Outcome:   types.OutcomeGranted,
			State:     policyState(i + 1),
		}
	}
	return out
}

func policyState(n int) string {
	if n%2 == 1 {
		return types.StateCheckedOut
	}
	return types.StateCheckedIn
}

// Run exercises a toggle-format store (state column present). newStore
// must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.LogStore) {
	t.Run("InitIdempotent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Init(ctx))
		require.NoError(t, s.Append(ctx, Records(1)[0]))
		require.NoError(t, s.Init(ctx))

		recs, err := s.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 1, "Init must not truncate")
	})

	t.Run("AppendReadAllOrder", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Init(ctx))

		in := Records(3)
		for _, r := range in {
			require.NoError(t, s.Append(ctx, r))
		}

		out, err := s.ReadAll(ctx)
		require.NoError(t, err)
		require.Len(t, out, 3)
		for i := range in {
			assert.True(t, in[i].Timestamp.Equal(out[i].Timestamp), "row %d timestamp", i)
			assert.Equal(t, in[i].UID, out[i].UID)
			assert.Equal(t, in[i].Label, out[i].Label)
			assert.Equal(t, in[i].State, out[i].State)
			assert.Equal(t, types.OutcomeGranted, out[i].Outcome)
		}
	})

	t.Run("Export", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Init(ctx))
		for _, r := range Records(2) {
			require.NoError(t, s.Append(ctx, r))
		}

		var buf bytes.Buffer
		require.NoError(t, s.Export(ctx, &buf))
		assert.Equal(t,
			"timestamp,uid,username,state\n"+
				"2026-02-15 09:30:00,A1745C3EB7,Tool 1,Checked Out\n"+
				"2026-02-15 09:30:01,A1745C3EB7,Tool 1,Checked In\n",
			buf.String())
	})

	t.Run("ClearLeavesHeaderOnly", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Init(ctx))
		for _, r := range Records(4) {
			require.NoError(t, s.Append(ctx, r))
		}

		require.NoError(t, s.Clear(ctx))

		var buf bytes.Buffer
		require.NoError(t, s.Export(ctx, &buf))
		assert.Equal(t, "timestamp,uid,username,state\n", buf.String())

		recs, err := s.ReadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}
