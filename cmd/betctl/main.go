package main

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"betrails/internal/erc20"
	"betrails/internal/faucet"
	"betrails/internal/hmacauth"
	"betrails/internal/market"
	"betrails/internal/token"
)

var Version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:      "betctl",
		Version:   Version,
		Usage:     "operator tool for the USDC prediction market service",
		UsageText: "betctl [global options] command [command options] [args]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "token contract address", Value: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", EnvVars: []string{"TOKEN_ADDRESS"}},
			&cli.UintFlag{Name: "decimals", Usage: "token decimals", Value: 6, EnvVars: []string{"TOKEN_DECIMALS"}},
			&cli.StringFlag{Name: "symbol", Usage: "token symbol", Value: "USDC", EnvVars: []string{"TOKEN_SYMBOL"}},
		},
		Commands: []*cli.Command{
			encodeCommand(),
			decodeCommand(),
			marketsCommand(),
			eligibilityCommand(),
			signCommand(),
		},
	}
	sort.Sort(cli.CommandsByName(app.Commands))
	return app
}

func tokenFrom(c *cli.Context) (token.Token, error) {
	addr := c.String("token")
	if !common.IsHexAddress(addr) {
		return token.Token{}, fmt.Errorf("token %q is not a hex address", addr)
	}
	decimals := c.Uint("decimals")
	if decimals > 77 {
		return token.Token{}, fmt.Errorf("decimals %d out of range", decimals)
	}
	return token.Token{
		Address:  common.HexToAddress(addr),
		Decimals: uint8(decimals),
		Symbol:   c.String("symbol"),
	}, nil
}

func encodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "encode",
		Usage: "print the calldata of an ERC-20 transfer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Aliases: []string{"t"}, Usage: "recipient address", Required: true},
			&cli.StringFlag{Name: "amount", Aliases: []string{"a"}, Usage: "human amount, e.g. 0.10", Required: true},
		},
		Action: func(c *cli.Context) error {
			tok, err := tokenFrom(c)
			if err != nil {
				return err
			}
			amount, err := tok.Parse(c.String("amount"))
			if err != nil {
				return err
			}
			recipient, err := token.ParseRecipient(c.String("to"))
			if err != nil {
				return err
			}
			call, err := erc20.EncodeTransfer(tok, recipient, amount.Units)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "to:    %s\n", call.To.Hex())
			fmt.Fprintf(w, "value: %s\n", call.Value)
			fmt.Fprintf(w, "units: %s\n", amount.Units)
			fmt.Fprintf(w, "data:  %s\n", hexutil.Encode(call.Data))
			return nil
		},
	}
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "decode transfer calldata",
		ArgsUsage: "<0x-calldata>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("decode takes exactly one calldata argument", 2)
			}
			tok, err := tokenFrom(c)
			if err != nil {
				return err
			}
			data, err := hexutil.Decode(strings.TrimSpace(c.Args().First()))
			if err != nil {
				return fmt.Errorf("calldata: %w", err)
			}
			recipient, units, err := erc20.DecodeTransfer(data)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "recipient: %s\n", recipient.Hex())
			fmt.Fprintf(w, "units:     %s\n", units)
			fmt.Fprintf(w, "amount:    %s %s\n", tok.Format(units), tok.Symbol)
			return nil
		},
	}
}

func marketsCommand() *cli.Command {
	return &cli.Command{
		Name:  "markets",
		Usage: "list the market catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "catalog YAML; built-in catalog when empty", EnvVars: []string{"MARKETS_PATH"}},
		},
		Action: func(c *cli.Context) error {
			catalog, err := market.Load(c.String("file"))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 2, 2, ' ', 0)
			fmt.Fprintf(w, "YES\t%s\n", catalog.Recipient(market.SideYes).Hex())
			fmt.Fprintf(w, "NO\t%s\n\n", catalog.Recipient(market.SideNo).Hex())
			fmt.Fprintln(w, "ID\tCATEGORY\tCLOSES\tYES/NO\tTITLE")
			for _, m := range catalog.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", m.ID, m.Category, m.ClosesOn, m.Odds.Yes, m.Odds.No, m.Title)
			}
			return w.Flush()
		},
	}
}

func eligibilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "eligibility",
		Usage: "evaluate the faucet gate for a balance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "balance", Aliases: []string{"b"}, Usage: "current balance in human units", Required: true},
			&cli.StringFlag{Name: "ceiling", Usage: "faucet ceiling in human units", Value: "10", EnvVars: []string{"FAUCET_CEILING"}},
			&cli.StringFlag{Name: "floor", Usage: "optional faucet floor in human units", EnvVars: []string{"FAUCET_FLOOR"}},
		},
		Action: func(c *cli.Context) error {
			tok, err := tokenFrom(c)
			if err != nil {
				return err
			}
			bal, err := parseBalance(tok, c.String("balance"))
			if err != nil {
				return err
			}
			ceiling, err := tok.Parse(c.String("ceiling"))
			if err != nil {
				return fmt.Errorf("ceiling: %w", err)
			}
			policy := faucet.Policy{Ceiling: ceiling.Units, Token: tok}
			if raw := c.String("floor"); raw != "" {
				floor, err := tok.Parse(raw)
				if err != nil {
					return fmt.Errorf("floor: %w", err)
				}
				policy.Floor = floor.Units
			}
			d := faucet.Decide(bal, policy)
			if d.Eligible {
				fmt.Fprintln(c.App.Writer, "eligible")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "not eligible: %s\n", d.Reason)
			return nil
		},
	}
}

// parseBalance accepts zero, which amounts never do.
func parseBalance(tok token.Token, raw string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}
	amount, err := tok.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return amount.Units, nil
}

func signCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "print the signature headers for a request body",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Usage: "shared HMAC secret", Required: true, EnvVars: []string{"HMAC_SECRET"}},
			&cli.StringFlag{Name: "body", Usage: "exact request body", Value: ""},
		},
		Action: func(c *cli.Context) error {
			ts := strconv.FormatInt(time.Now().Unix(), 10)
			sig := hmacauth.Sign(c.String("secret"), ts, []byte(c.String("body")))
			fmt.Fprintf(c.App.Writer, "%s: %s\n", hmacauth.DefaultTimestampHeader, ts)
			fmt.Fprintf(c.App.Writer, "%s: %s\n", hmacauth.DefaultSignatureHeader, sig)
			return nil
		},
	}
}
