package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"otcdesk/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestEmitPersistsEvents(t *testing.T) {
	journal := openTestJournal(t)
	now := time.Unix(1_700_000_000, 0)
	journal.nowFn = func() time.Time { return now }

	journal.Emit(stubEvent{evt: &types.Event{
		Type:       "otc.offer.created",
		Attributes: map[string]string{"id": "1", "asset": "aa"},
	}})
	journal.Emit(stubEvent{evt: &types.Event{
		Type:       "otc.offer.paid",
		Attributes: map[string]string{"id": "1", "amountPaid": "1900000"},
	}})

	records, err := journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	require.Equal(t, "otc.offer.paid", records[0].Type)
	require.Equal(t, "1900000", records[0].Attributes["amountPaid"])
	require.Equal(t, "otc.offer.created", records[1].Type)
	require.EqualValues(t, now.Unix(), records[0].CreatedAt)
}

func TestRecentHonorsLimit(t *testing.T) {
	journal := openTestJournal(t)
	for i := 0; i < 5; i++ {
		journal.Emit(stubEvent{evt: &types.Event{Type: "otc.paused", Attributes: map[string]string{}}})
	}
	records, err := journal.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// A non-positive limit falls back to the default window.
	records, err = journal.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 5)
}

func TestEmitToleratesBareEvents(t *testing.T) {
	journal := openTestJournal(t)
	// An emitter without a payload carrier still records the type.
	journal.Emit(stubEvent{evt: &types.Event{Type: "otc.limits.updated"}})
	records, err := journal.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "otc.limits.updated", records[0].Type)
}
