package amqp

import (
	"encoding/json"
	"time"

	"caixa/internal/core"
)

// Reasons carried by DayUpdatedMessage
const (
	ReasonTransaction = "transaction"
	ReasonBalance     = "balance"
	ReasonClosed      = "closed"
	ReasonRollover    = "rollover"
)

// DayUpdatedMessage tells consumers that a ledger day changed. It only carries
// the date; consumers read the current state from the store.
type DayUpdatedMessage struct {
	Date      string    `json:"date"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDayUpdatedMessage creates a message for date
func NewDayUpdatedMessage(date core.Date, reason string) *DayUpdatedMessage {
	return &DayUpdatedMessage{
		Date:      date.String(),
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DayUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerDate parses the message date.
func (m *DayUpdatedMessage) LedgerDate() (core.Date, error) {
	return core.ParseDate(m.Date)
}

// DayUpdatedMessageFromJSON creates a message from JSON bytes
func DayUpdatedMessageFromJSON(data []byte) (*DayUpdatedMessage, error) {
	var msg DayUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
