package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		dec   uint8
		units string
		text  string
	}{
		{name: "quick bet", raw: "0.10", dec: 6, units: "100000", text: "0.10"},
		{name: "whole", raw: "25", dec: 6, units: "25000000", text: "25"},
		{name: "surrounding space", raw: "  1.5 ", dec: 6, units: "1500000", text: "1.5"},
		{name: "leading dot", raw: ".5", dec: 6, units: "500000", text: "0.5"},
		{name: "trailing dot", raw: "3.", dec: 6, units: "3000000", text: "3"},
		{name: "full precision", raw: "0.000001", dec: 6, units: "1", text: "0.000001"},
		{name: "trailing zeros beyond precision", raw: "1.5000000", dec: 6, units: "1500000", text: "1.5000000"},
		{name: "zero decimals", raw: "7", dec: 0, units: "7", text: "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.raw, tc.dec)
			require.NoError(t, err)
			require.Equal(t, tc.units, got.Units.String())
			require.Equal(t, tc.text, got.Text)
		})
	}
}

func TestParseAmountRejects(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"blank":          "   ",
		"letters":        "ten",
		"negative":       "-1",
		"zero":           "0",
		"zero fraction":  "0.000",
		"exponent":       "1e3",
		"hex":            "0x10",
		"two dots":       "1.2.3",
		"infinity":       "Infinity",
		"over precision": "0.0000001",
		"lone dot":       ".",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAmount(raw, 6)
			require.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestParseAmountOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 256).String()
	_, err := ParseAmount(huge, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseRecipient(t *testing.T) {
	addr, err := ParseRecipient("0xCa139b8b46C415D85BefdFB7Ba1DFB4b9ea55058")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xCa139b8b46C415D85BefdFB7Ba1DFB4b9ea55058"), addr)

	for _, raw := range []string{
		"",
		"Ca139b8b46C415D85BefdFB7Ba1DFB4b9ea55058",
		"0xCa139b8b46C415D85BefdFB7Ba1DFB4b9ea5505",
		"0xZZ139b8b46C415D85BefdFB7Ba1DFB4b9ea55058",
		"0x0000000000000000000000000000000000000000",
	} {
		_, err := ParseRecipient(raw)
		require.ErrorIs(t, err, ErrInvalidRecipient, raw)
	}
}

func TestFormatAndShare(t *testing.T) {
	balance := big.NewInt(12_345_678) // 12.345678 USDC
	require.Equal(t, "12.345678", Format(balance, 6))
	require.Equal(t, "0", Format(nil, 6))

	require.Equal(t, "1.23", Share(balance, 6, 10))
	require.Equal(t, "3.08", Share(balance, 6, 25))
	require.Equal(t, "6.17", Share(balance, 6, 50))
	require.Equal(t, "12.34", Share(balance, 6, 100))
	require.Equal(t, "0.00", Share(nil, 6, 50))
}

func TestShorten(t *testing.T) {
	addr := common.HexToAddress("0x1234567890123456789012345678901234567890")
	require.Equal(t, "0x1234...7890", Shorten(addr))
}
