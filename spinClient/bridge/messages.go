// Package bridge is the message boundary with the embedded game surface, carried over
// WebSocket connections.
package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pushchain/spin-relay/spinClient/spin"
)

// Message types exchanged with the game surface.
const (
	TypeSpin        = "spin"
	TypeSpinLoading = "spin:loading"
	TypeSpinResult  = "spinResult"
	TypeWallet      = "wallet"
)

type inbound struct {
	Type    string          `json:"type"`
	Bet     json.RawMessage `json:"bet"`
	Payline json.RawMessage `json:"payline"`
}

type loadingMessage struct {
	Type string `json:"type"`
}

type resultMessage struct {
	Type   string        `json:"type"`
	ID     uint64        `json:"id"`
	Result *spin.Outcome `json:"result"`
}

// WalletInfo is the account context sent to the game surface.
type WalletInfo struct {
	Wallet     string `json:"wallet"`
	Network    string `json:"network"`
	WalletType string `json:"walletType"`
}

type walletMessage struct {
	Type string `json:"type"`
	WalletInfo
}

// NewWalletInfo normalizes the account address to lowercase.
func NewWalletInfo(account, network, walletType string) WalletInfo {
	return WalletInfo{Wallet: strings.ToLower(account), Network: network, WalletType: walletType}
}

// ParseIntent decodes an inbound message. ok is false for messages that are not spin
// intents. Numbers may arrive as JSON numbers or numeric strings. A bet that is missing or
// not numeric decodes as NaN and a payline that is not a whole number decodes as
// invalidLines, so validation corrects either.
func ParseIntent(raw []byte) (intent spin.Intent, ok bool, err error) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return spin.Intent{}, false, fmt.Errorf("malformed message: %w", err)
	}
	if msg.Type != TypeSpin {
		return spin.Intent{}, false, nil
	}

	intent.Bet = parseBet(msg.Bet)
	intent.Lines = parsePayline(msg.Payline)
	return intent, true, nil
}

// invalidLines is out of range for every configuration.
const invalidLines = -1

func parseBet(raw json.RawMessage) float64 {
	bet, present, err := rawNumber(raw)
	if !present || err != nil {
		return math.NaN()
	}
	return bet
}

// parsePayline returns 0 (the default) when absent.
func parsePayline(raw json.RawMessage) int {
	v, present, err := rawNumber(raw)
	if !present {
		return 0
	}
	if err != nil || v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
		return invalidLines
	}
	return int(v)
}

// rawNumber reads a JSON number or numeric string. present is false for a missing or null field.
func rawNumber(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, true, err
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, true, err
}
