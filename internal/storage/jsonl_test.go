package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammcore/internal/model"
)

func TestJSONLJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	journal := NewJSONLJournal(path)
	pair := common.HexToHash("0xabc")

	require.NoError(t, journal.PutEvents(ctx, []model.Event{
		{Kind: model.EventSwap, Pool: pair, Side: model.SideBuy, AmountIn: 1000, AmountOut: 493, Fee: 3, Timestamp: 100},
	}))
	require.NoError(t, journal.PutEvents(ctx, []model.Event{
		{Kind: model.EventLimitFilled, Pool: pair, Order: "o-1", Timestamp: 101},
	}))
	require.NoError(t, journal.PutEvents(ctx, nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.Event
	require.NoError(t, ScanEvents(file, func(e model.Event) error {
		got = append(got, e)
		return nil
	}, nil))

	require.Len(t, got, 2)
	require.Equal(t, model.EventSwap, got[0].Kind)
	require.Equal(t, uint64(493), got[0].AmountOut)
	require.Equal(t, model.SideBuy, got[0].Side)
	require.Equal(t, "o-1", got[1].Order)
}

func TestScanEventsBadLine(t *testing.T) {
	input := "{\"kind\":\"swap\",\"timestamp\":1}\nnot json\n\n{\"kind\":\"swap\",\"timestamp\":2}\n"

	var bad int
	var count int
	err := ScanEvents(strings.NewReader(input), func(model.Event) error {
		count++
		return nil
	}, func(error) { bad++ })
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, 1, bad)

	err = ScanEvents(strings.NewReader(input), func(model.Event) error { return nil }, nil)
	require.Error(t, err)
}
