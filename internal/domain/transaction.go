// Package domain defines the core types and collaborator interfaces for Kestrel.
package domain

import (
	"time"
)

// Direction is the ledger direction of a transaction.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Channel is the payment channel a transaction moved through.
type Channel string

const (
	ChannelUPI        Channel = "UPI"
	ChannelATM        Channel = "ATM"
	ChannelCard       Channel = "Card"
	ChannelNetBanking Channel = "NetBanking"
	ChannelCash       Channel = "Cash"
	ChannelAutoDebit  Channel = "AutoDebit"
)

// ValidChannels lists the accepted channel values in canonical order.
var ValidChannels = []Channel{
	ChannelUPI,
	ChannelATM,
	ChannelCard,
	ChannelNetBanking,
	ChannelCash,
	ChannelAutoDebit,
}

// ParseChannel returns the matching channel, or ChannelUPI when the raw
// value is not one of the six accepted channels.
func ParseChannel(raw string) Channel {
	for _, c := range ValidChannels {
		if string(c) == raw {
			return c
		}
	}
	return ChannelUPI
}

// Transaction is one validated ledger entry from a customer upload.
// Transactions are immutable once parsed; a new upload for the same
// customer supersedes the previous batch wholesale.
type Transaction struct {
	ID         string `json:"transactionId"`
	CustomerID string `json:"customerId"`

	// Date is the calendar day of the transaction (midnight UTC, no
	// time-of-day precision).
	Date time.Time `json:"date"`

	Amount   float64   `json:"amount"`
	Type     Direction `json:"type"`
	Category string    `json:"category"`

	// Balance is the running account balance after this transaction,
	// either supplied in the upload or derived by the parser.
	Balance  float64 `json:"balance"`
	Merchant string  `json:"merchant"`
	Channel  Channel `json:"channel"`
}

// DateString formats the transaction date as yyyy-mm-dd.
func (t *Transaction) DateString() string {
	return t.Date.Format("2006-01-02")
}
