package amqp

import (
	"encoding/json"
	"time"
)

// TransactionSyncMessage asks the worker to mirror one transaction to the
// ledger. It carries only the id and version; the worker loads the full
// transaction from the database, so a stale message can never overwrite a
// newer write.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id string, version int64) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
