package erc20

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"betrails/internal/token"
)

var usdc = token.Token{
	Address:  common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
	Decimals: 6,
	Symbol:   "USDC",
}

func TestEncodeTransferQuickBet(t *testing.T) {
	amount, err := usdc.Parse("0.10")
	require.NoError(t, err)
	require.Equal(t, int64(100000), amount.Units.Int64())

	recipient := common.HexToAddress("0xCa139b8b46C415D85BefdFB7Ba1DFB4b9ea55058")
	call, err := EncodeTransfer(usdc, recipient, amount.Units)
	require.NoError(t, err)

	want := TransferSelector +
		"000000000000000000000000ca139b8b46c415d85befdfb7ba1dfb4b9ea55058" +
		"00000000000000000000000000000000000000000000000000000000000186a0"
	require.Equal(t, want, hex.EncodeToString(call.Data))
	require.Equal(t, usdc.Address, call.To)
	require.Zero(t, call.Value.Sign())
}

func TestTransferRoundTrip(t *testing.T) {
	recipients := []string{
		"0x3b324062dF51713EAD1f74474916d6Be2824e09F",
		"0xCa139b8b46C415D85BefdFB7Ba1DFB4b9ea55058",
		"0x0000000000000000000000000000000000000001",
	}
	amounts := []string{"0.10", "1", "123.456789", "99999999999.999999"}

	for _, r := range recipients {
		for _, a := range amounts {
			amount, err := usdc.Parse(a)
			require.NoError(t, err)
			to := common.HexToAddress(r)

			call, err := EncodeTransfer(usdc, to, amount.Units)
			require.NoError(t, err)

			gotTo, gotUnits, err := DecodeTransfer(call.Data)
			require.NoError(t, err)
			require.Equal(t, to, gotTo)
			require.Zero(t, amount.Units.Cmp(gotUnits), "amount %s", a)
		}
	}
}

func TestEncodeTransferRejectsOutOfRange(t *testing.T) {
	to := common.HexToAddress("0x3b324062dF51713EAD1f74474916d6Be2824e09F")

	_, err := EncodeTransfer(usdc, to, big.NewInt(-1))
	require.ErrorIs(t, err, token.ErrInvalidAmount)

	_, err = EncodeTransfer(usdc, to, new(big.Int).Lsh(big.NewInt(1), 256))
	require.ErrorIs(t, err, token.ErrInvalidAmount)

	_, err = EncodeTransfer(usdc, to, nil)
	require.ErrorIs(t, err, token.ErrInvalidAmount)
}

func TestDecodeTransferRejectsOtherCalls(t *testing.T) {
	data, err := EncodeBalanceOf(common.HexToAddress("0x3b324062dF51713EAD1f74474916d6Be2824e09F"))
	require.NoError(t, err)

	_, _, err = DecodeTransfer(data)
	require.ErrorIs(t, err, ErrMalformedCall)

	_, _, err = DecodeTransfer(nil)
	require.ErrorIs(t, err, ErrMalformedCall)
}

func TestDecodeBalance(t *testing.T) {
	out := common.LeftPadBytes(big.NewInt(4_200_000).Bytes(), 32)
	balance, err := DecodeBalance(out)
	require.NoError(t, err)
	require.Equal(t, int64(4_200_000), balance.Int64())

	_, err = DecodeBalance(nil)
	require.Error(t, err)
}

func TestBalanceOfSelector(t *testing.T) {
	data, err := EncodeBalanceOf(common.HexToAddress("0x3b324062dF51713EAD1f74474916d6Be2824e09F"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hex.EncodeToString(data), "70a08231"))
	require.Len(t, data, 36)
}
