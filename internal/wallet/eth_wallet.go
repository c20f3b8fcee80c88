package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"betrails/internal/erc20"
)

// EthWallet signs with a local key and talks to a JSON-RPC node.
type EthWallet struct {
	client       *ethclient.Client
	address      common.Address
	chainID      *big.Int
	transacts    *bind.TransactOpts
	pollInterval time.Duration
	log          *zap.Logger
}

type EthConfig struct {
	RPCURL        string
	PrivateKeyHex string
	PollInterval  time.Duration
}

func NewEthWallet(ctx context.Context, cfg EthConfig, log *zap.Logger) (*EthWallet, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required to sign transfers")
	}
	if log == nil {
		log = zap.NewNop()
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &EthWallet{
		client:       cli,
		address:      txOpts.From,
		chainID:      chainID,
		transacts:    txOpts,
		pollInterval: poll,
		log:          log,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (w *EthWallet) Address() common.Address {
	return w.address
}

func (w *EthWallet) Connected() bool {
	return w.transacts != nil
}

// Caller exposes the node connection for read-only contract calls.
func (w *EthWallet) Caller() ethereum.ContractCaller {
	return w.client
}

func (w *EthWallet) Submit(ctx context.Context, call erc20.Call) (common.Hash, error) {
	if !w.Connected() {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmissionRejected, ErrNotConnected)
	}

	contract := bind.NewBoundContract(call.To, erc20.Parsed(), w.client, w.client, w.client)

	opts := *w.transacts
	opts.Context = ctx
	opts.Value = call.Value

	tx, err := contract.RawTransact(&opts, call.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}
	w.log.Info("transaction broadcast",
		zap.String("hash", tx.Hash().Hex()),
		zap.String("to", call.To.Hex()),
		zap.Uint64("nonce", tx.Nonce()))
	return tx.Hash(), nil
}

// Watch polls for the receipt until it is mined or ctx is cancelled.
func (w *EthWallet) Watch(ctx context.Context, hash common.Hash) <-chan ReceiptEvent {
	out := make(chan ReceiptEvent, 2)
	go func() {
		defer close(out)

		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		announced := false
		for {
			receipt, err := w.client.TransactionReceipt(ctx, hash)
			switch {
			case receipt != nil:
				out <- receiptEvent(hash, receipt)
				return
			case errors.Is(err, ethereum.NotFound):
				if !announced {
					announced = true
					out <- ReceiptEvent{Hash: hash, Status: StatusPending}
				}
			case err != nil && ctx.Err() == nil:
				w.log.Warn("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func receiptEvent(hash common.Hash, receipt *types.Receipt) ReceiptEvent {
	ev := ReceiptEvent{Hash: hash}
	if receipt.BlockNumber != nil {
		ev.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		ev.Status = StatusConfirmed
		return ev
	}
	ev.Status = StatusReverted
	ev.Reason = fmt.Sprintf("transaction reverted in block %d", ev.BlockNumber)
	return ev
}

func (w *EthWallet) Ping(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := w.client.BlockNumber(ctx)
	return err
}

func (w *EthWallet) Close() {
	w.client.Close()
}
