package balance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"betrails/internal/erc20"
)

type stubReader struct {
	mu     sync.Mutex
	values []*big.Int
	err    error
	calls  int
}

func (s *stubReader) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v, nil
}

var owner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestObserverPollPublishesLatest(t *testing.T) {
	reader := &stubReader{values: []*big.Int{big.NewInt(5), big.NewInt(7)}}
	obs := NewObserver(reader, owner, time.Hour, nil)

	_, ok := obs.Latest()
	require.False(t, ok)

	sub := obs.Subscribe()
	_, err := obs.Poll(context.Background())
	require.NoError(t, err)
	_, err = obs.Poll(context.Background())
	require.NoError(t, err)

	got := <-sub
	require.Equal(t, int64(7), got.Balance.Int64(), "subscriber keeps only the newest observation")

	latest, ok := obs.Latest()
	require.True(t, ok)
	require.Equal(t, int64(7), latest.Balance.Int64())
	require.Equal(t, owner, latest.Owner)
}

func TestObserverKeepsPreviousOnError(t *testing.T) {
	reader := &stubReader{values: []*big.Int{big.NewInt(3)}}
	obs := NewObserver(reader, owner, time.Hour, nil)
	_, err := obs.Poll(context.Background())
	require.NoError(t, err)

	reader.err = errors.New("rpc down")
	_, err = obs.Poll(context.Background())
	require.Error(t, err)

	latest, ok := obs.Latest()
	require.True(t, ok)
	require.Equal(t, int64(3), latest.Balance.Int64())
}

func TestObserverRunRefreshesOnDemand(t *testing.T) {
	reader := &stubReader{values: []*big.Int{big.NewInt(1), big.NewInt(2)}}
	obs := NewObserver(reader, owner, time.Hour, nil)
	sub := obs.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	first := <-sub
	require.Equal(t, int64(1), first.Balance.Int64())

	obs.Refresh()
	second := <-sub
	require.Equal(t, int64(2), second.Balance.Int64())

	cancel()
	require.NoError(t, <-done)
	_, open := <-sub
	require.False(t, open)
}

type stubCaller struct {
	msg ethereum.CallMsg
	out []byte
}

func (s *stubCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.msg = msg
	return s.out, nil
}

func TestEthReaderEncodesBalanceOf(t *testing.T) {
	tokenAddr := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	caller := &stubCaller{out: common.LeftPadBytes(big.NewInt(2_500_000).Bytes(), 32)}
	reader := NewEthReader(caller, tokenAddr)

	got, err := reader.BalanceOf(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(2_500_000), got.Int64())

	want, err := erc20.EncodeBalanceOf(owner)
	require.NoError(t, err)
	require.Equal(t, want, caller.msg.Data)
	require.Equal(t, tokenAddr, *caller.msg.To)
}

func TestObserverIgnoresOlderConcurrentRead(t *testing.T) {
	obs := NewObserver(&stubReader{values: []*big.Int{big.NewInt(1)}}, owner, time.Hour, nil)
	now := time.Now()

	require.True(t, obs.store(&Observation{Owner: owner, Balance: big.NewInt(9), At: now}))
	require.False(t, obs.store(&Observation{Owner: owner, Balance: big.NewInt(4), At: now.Add(-time.Second)}))

	latest, ok := obs.Latest()
	require.True(t, ok)
	require.Equal(t, int64(9), latest.Balance.Int64())
}

func TestObserverPollFromManyGoroutines(t *testing.T) {
	reader := &stubReader{values: []*big.Int{big.NewInt(6)}}
	obs := NewObserver(reader, owner, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = obs.Poll(context.Background())
		}()
	}
	wg.Wait()

	latest, ok := obs.Latest()
	require.True(t, ok)
	require.Equal(t, int64(6), latest.Balance.Int64())
}
