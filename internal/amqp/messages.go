package amqp

import (
	"encoding/json"
	"time"
)

// LedgerChangedMessage announces one committed ledger batch. It carries ids
// only; consumers read current state from the ledger.
type LedgerChangedMessage struct {
	Collections []string  `json:"collections"`
	DocumentIDs []string  `json:"documentIds"`
	Operation   string    `json:"operation"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(collections, ids []string, operation string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Collections: collections,
		DocumentIDs: ids,
		Operation:   operation,
		Timestamp:   time.Now(),
	}
}

// Touches reports whether the batch changed the named collection.
func (m *LedgerChangedMessage) Touches(collection string) bool {
	for _, c := range m.Collections {
		if c == collection {
			return true
		}
	}
	return false
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
