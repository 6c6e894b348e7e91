package checkpoint

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"civicrun/ledger"
	"civicrun/state"
)

func buildSampleLedgerAndState(t *testing.T) (*state.State, *ledger.Ledger) {
	t.Helper()
	st := state.New()
	l := ledger.New()

	_, err := st.ApplyCCChange("alice", 500, "SEED", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	meta := l.NextMeta()
	id, err := ledger.DeriveEventID(meta, "", "MINT", "alice")
	require.NoError(t, err)
	_, err = l.Append(ledger.Event{
		ID:        id,
		Sequence:  meta.Sequence,
		Timestamp: "2026-01-01T00:00:00Z",
		Type:      ledger.EventMint,
		ActorID:   "alice",
		PrevHash:  meta.PrevHash,
	})
	require.NoError(t, err)

	return st, l
}

func TestSaveLoadRoundTrips(t *testing.T) {
	st, l := buildSampleLedgerAndState(t)
	snaps := []*state.Snapshot{st.Snapshot()}
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Save(path, st, l, snaps, now))
	require.True(t, Exists(path))

	restoredState, restoredLedger, restoredSnaps, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, l.Len(), restoredLedger.Len())

	acct, err := restoredState.GetAccount("alice")
	require.NoError(t, err)
	require.Equal(t, int64(500), acct.CCBalance)

	ok, problems := restoredLedger.VerifyIntegrity()
	require.True(t, ok, problems)

	require.Len(t, restoredSnaps, 1)
	restoredAcct, err := func() (*state.Account, error) {
		tmp := state.New()
		tmp.Restore(restoredSnaps[0])
		return tmp.GetAccount("alice")
	}()
	require.NoError(t, err)
	require.Equal(t, int64(500), restoredAcct.CCBalance)
}

func TestLoadRejectsTamperedLedger(t *testing.T) {
	st, l := buildSampleLedgerAndState(t)
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, st, l, nil, now))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte(`"actor_id": "alice"`), []byte(`"actor_id": "mallory"`), 1)
	require.NotEqual(t, data, tampered, "expected tamper target to be present in saved checkpoint")
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, _, _, err = Load(path)
	require.Error(t, err)
}

func TestLoadRejectsWrongFormatVersion(t *testing.T) {
	st, l := buildSampleLedgerAndState(t)
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, st, l, nil, now))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte(`"format_version": 1`), []byte(`"format_version": 99`), 1)
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	_, _, _, err = Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, _, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
