package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBridgeResolvesOnce(t *testing.T) {
	rec := NewRecorder(10)
	b := NewBridge(rec)
	fixed := time.Unix(1_700_000_000, 0)
	b.Now = func() time.Time { return fixed }

	h := b.Loading("bets", "Placing your bet...", "0.10 USDC on YES")
	require.NotEmpty(t, h)
	require.Equal(t, 1, b.Pending())

	require.NoError(t, b.Succeed(h, "Bet placed!", "0.10 USDC on YES confirmed.", ""))
	require.ErrorIs(t, b.Succeed(h, "Bet placed!", "again", ""), ErrAlreadyResolved)
	require.ErrorIs(t, b.Fail(h, "Unable to place bet", "late"), ErrAlreadyResolved)
	require.Zero(t, b.Pending())

	notices := rec.Notices()
	require.Len(t, notices, 2)
	require.Equal(t, KindLoading, notices[0].Kind)
	require.Equal(t, KindSuccess, notices[1].Kind)
	require.Equal(t, h, notices[1].Handle)
	require.Equal(t, "bets", notices[1].Surface)
	require.Equal(t, fixed, notices[1].At)
}

func TestBridgeUnknownHandle(t *testing.T) {
	rec := NewRecorder(10)
	b := NewBridge(rec)

	require.ErrorIs(t, b.Fail("missing", "x", "y"), ErrAlreadyResolved)
	require.Empty(t, rec.Notices())
}

func TestBridgeHandlesAreIndependent(t *testing.T) {
	rec := NewRecorder(10)
	b := NewBridge(rec)

	transfer := b.Loading("transfer", "Sending USDC...", "")
	bet := b.Loading("bets", "Placing your bet...", "")
	require.NotEqual(t, transfer, bet)

	require.NoError(t, b.Fail(bet, "Unable to place bet", "reverted"))
	require.NoError(t, b.Succeed(transfer, "Transfer confirmed!", "", ""))

	require.Equal(t, 1, rec.Count("transfer", KindLoading))
	require.Equal(t, 1, rec.Count("transfer", KindSuccess, KindError))
	require.Equal(t, 1, rec.Count("bets", KindError))
}

func TestRecorderKeepsMostRecent(t *testing.T) {
	rec := NewRecorder(3)
	for i := 0; i < 5; i++ {
		rec.Emit(Notice{Surface: "bets", Kind: KindLoading, Title: string(rune('a' + i))})
	}
	notices := rec.Notices()
	require.Len(t, notices, 3)
	require.Equal(t, "c", notices[0].Title)
	require.Equal(t, "e", notices[2].Title)
	require.Equal(t, 5, rec.Count("bets", KindLoading))
}
