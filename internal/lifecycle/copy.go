package lifecycle

import (
	"fmt"

	"betrails/internal/token"
)

const genericFailure = "Please try again"

type copyText struct {
	title       string
	description string
}

func loadingCopy(in Intent, symbol string) copyText {
	if in.Purpose.IsBet() {
		return copyText{"Placing your bet...", betLine(in, symbol)}
	}
	return copyText{
		fmt.Sprintf("Sending %s...", symbol),
		fmt.Sprintf("Transferring %s %s to %s", in.Amount.Text, symbol, in.Recipient.Hex()),
	}
}

func successCopy(in Intent, symbol string) copyText {
	if in.Purpose.IsBet() {
		return copyText{"Bet placed!", betLine(in, symbol) + " confirmed."}
	}
	return copyText{
		"Transfer confirmed!",
		fmt.Sprintf("%s %s sent to %s onchain.", in.Amount.Text, symbol, token.Shorten(in.Recipient)),
	}
}

func rejectedCopy(in Intent) copyText {
	if in.Purpose.IsBet() {
		return copyText{"Unable to place bet", "Your wallet rejected the transaction. Try again."}
	}
	return copyText{"Transaction failed", genericFailure}
}

// revertedCopy prefers the chain's reason over the generic fallback.
func revertedCopy(in Intent, reason string) copyText {
	title := "Transaction failed"
	if in.Purpose.IsBet() {
		title = "Unable to place bet"
	}
	if reason == "" {
		reason = genericFailure
	}
	return copyText{title, reason}
}

func betLine(in Intent, symbol string) string {
	line := fmt.Sprintf("%s %s on %s", in.Amount.Text, symbol, in.Purpose.Side().Label())
	if in.MarketTitle != "" {
		line += " · " + in.MarketTitle
	}
	return line
}
