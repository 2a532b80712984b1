package amqp

import (
	"encoding/json"
	"time"

	"bilancio/internal/ledger"
)

// TransactionMessage is the wire form of a committed spend. It carries the
// full record so the consumer never has to call back into the API database.
type TransactionMessage struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Category    string    `json:"category"`
	SubDivision string    `json:"sub_division,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewTransactionMessage converts a ledger transaction to its wire form.
func NewTransactionMessage(tx ledger.Transaction) *TransactionMessage {
	return &TransactionMessage{
		ID:          tx.ID.String(),
		Identity:    tx.Identity,
		Category:    tx.Category,
		SubDivision: tx.SubDivision,
		AmountCents: tx.AmountCents,
		Timestamp:   tx.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionMessageFromJSON creates a message from JSON bytes
func TransactionMessageFromJSON(data []byte) (*TransactionMessage, error) {
	var msg TransactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
