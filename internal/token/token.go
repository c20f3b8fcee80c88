package token

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRecipient = errors.New("invalid recipient")
)

// plainDecimal accepts unsigned decimal literals only: no sign, exponent or hex.
var plainDecimal = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// Token describes the ERC-20 asset every transfer and bet is denominated in.
type Token struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// Amount carries a validated amount in both human and base-unit form.
type Amount struct {
	Text  string   `json:"text"`
	Units *big.Int `json:"units"`
}

func (a Amount) String() string {
	return a.Text
}

// ParseAmount validates raw against the token precision and converts it to base units.
// Amounts with more fractional digits than decimals are rejected, never truncated.
func ParseAmount(raw string, decimals uint8) (Amount, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Amount{}, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if !plainDecimal.MatchString(text) {
		return Amount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, raw)
	}
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	text = strings.TrimSuffix(text, ".")

	value, err := decimal.NewFromString(text)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if value.Sign() <= 0 {
		return Amount{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	scaled := value.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return Amount{}, fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidAmount, decimals)
	}
	units := scaled.BigInt()
	if units.BitLen() > 256 {
		return Amount{}, fmt.Errorf("%w: amount overflows uint256", ErrInvalidAmount)
	}
	return Amount{Text: text, Units: units}, nil
}

// ParseRecipient accepts a 0x-prefixed 20-byte hex address other than the zero address.
func ParseRecipient(raw string) (common.Address, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
		return common.Address{}, fmt.Errorf("%w: %q must start with 0x", ErrInvalidRecipient, raw)
	}
	if !common.IsHexAddress(text) {
		return common.Address{}, fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidRecipient, raw)
	}
	addr := common.HexToAddress(text)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidRecipient)
	}
	return addr, nil
}

// Parse is ParseAmount at the token's precision.
func (t Token) Parse(raw string) (Amount, error) {
	return ParseAmount(raw, t.Decimals)
}

// Format renders base units as a human decimal string.
func (t Token) Format(units *big.Int) string {
	return Format(units, t.Decimals)
}

func Format(units *big.Int, decimals uint8) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -int32(decimals)).String()
}

// Share returns percent of balance with two fractional digits, rounded down so
// the preset never exceeds the balance.
func Share(balance *big.Int, decimals uint8, percent int64) string {
	if balance == nil || percent <= 0 {
		return "0.00"
	}
	whole := decimal.NewFromBigInt(balance, -int32(decimals))
	return whole.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100)).Truncate(2).StringFixed(2)
}

// Shorten renders an address as 0x1234...abcd.
func Shorten(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
