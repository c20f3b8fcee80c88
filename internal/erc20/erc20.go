// Package erc20 builds and decodes the token calls the wallet submits.
package erc20

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"betrails/internal/token"
)

const ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// TransferSelector is the 4-byte id of transfer(address,uint256).
const TransferSelector = "a9059cbb"

var ErrMalformedCall = errors.New("malformed transfer call")

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// Parsed exposes the contract ABI for bound contract helpers.
func Parsed() abi.ABI {
	return parsedABI
}

// Call is a contract invocation ready for a wallet to sign.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// EncodeTransfer packs transfer(recipient, units) against the token contract with
// zero native value.
func EncodeTransfer(tok token.Token, recipient common.Address, units *big.Int) (Call, error) {
	if units == nil || units.Sign() < 0 || units.BitLen() > 256 {
		return Call{}, fmt.Errorf("%w: amount out of uint256 range", token.ErrInvalidAmount)
	}
	data, err := parsedABI.Pack("transfer", recipient, units)
	if err != nil {
		return Call{}, fmt.Errorf("pack transfer: %w", err)
	}
	return Call{
		To:    tok.Address,
		Data:  data,
		Value: new(big.Int),
	}, nil
}

// DecodeTransfer recovers the recipient and base-unit amount from transfer calldata.
func DecodeTransfer(data []byte) (common.Address, *big.Int, error) {
	method := parsedABI.Methods["transfer"]
	if len(data) != 4+64 || !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, ErrMalformedCall
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, ErrMalformedCall
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, ErrMalformedCall
	}
	return to, amount, nil
}

func EncodeBalanceOf(owner common.Address) ([]byte, error) {
	return parsedABI.Pack("balanceOf", owner)
}

// DecodeBalance unpacks the uint256 returned by balanceOf.
func DecodeBalance(out []byte) (*big.Int, error) {
	if len(out) == 0 {
		return nil, errors.New("empty balanceOf result")
	}
	values, err := parsedABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}
