// Package txn defines the Transaction record and its canonical content-hash
// rule (spec §3).
package txn

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/klingon-tech/cbrledger/pkg/cryptoutil"
	"github.com/klingon-tech/cbrledger/pkg/money"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Kind tags what a transaction represents.
type Kind string

const (
	KindOnline   Kind = "ONLINE"
	KindOffline  Kind = "OFFLINE"
	KindExchange Kind = "EXCHANGE"
	KindContract Kind = "CONTRACT"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusConfirmed     Status = "CONFIRMED"
	StatusOfflineBuffer Status = "OFFLINE_BUFFER"
	StatusConflict      Status = "CONFLICT"
)

// Transaction is a single value transfer between two wallets.
//
// Hash is computed by ComputeHash over ID, Sender, Receiver, Amount and
// Timestamp and stored alongside the other fields so a storage round trip
// can assert equality against it, per the invariant
// hash = H(id ‖ sender ‖ receiver ‖ amount ‖ timestamp).
type Transaction struct {
	ID          string       `json:"id"`
	Sender      string       `json:"sender"`   // wallet id
	Receiver    string       `json:"receiver"` // wallet id
	Amount      money.Amount `json:"amount"`
	Kind        Kind         `json:"kind"`
	Channel     string       `json:"channel"`
	Status      Status       `json:"status"`
	Timestamp   int64        `json:"timestamp"` // unix seconds, UTC
	BankID      string       `json:"bank_id"`
	Hash        types.Hash   `json:"hash"`
	Offline     bool         `json:"offline"`
	UserSig     []byte       `json:"-"`
	BankSig     []byte       `json:"-"`
	AuthSig     []byte       `json:"-"`
	Notes       string       `json:"notes,omitempty"`
}

// txJSON mirrors Transaction with hex-encoded signature fields.
type txJSON struct {
	ID        string       `json:"id"`
	Sender    string       `json:"sender"`
	Receiver  string       `json:"receiver"`
	Amount    money.Amount `json:"amount"`
	Kind      Kind         `json:"kind"`
	Channel   string       `json:"channel"`
	Status    Status       `json:"status"`
	Timestamp int64        `json:"timestamp"`
	BankID    string       `json:"bank_id"`
	Hash      types.Hash   `json:"hash"`
	Offline   bool         `json:"offline"`
	UserSig   string       `json:"user_sig,omitempty"`
	BankSig   string       `json:"bank_sig,omitempty"`
	AuthSig   string       `json:"auth_sig,omitempty"`
	Notes     string       `json:"notes,omitempty"`
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	j := txJSON{
		ID: t.ID, Sender: t.Sender, Receiver: t.Receiver, Amount: t.Amount,
		Kind: t.Kind, Channel: t.Channel, Status: t.Status, Timestamp: t.Timestamp,
		BankID: t.BankID, Hash: t.Hash, Offline: t.Offline, Notes: t.Notes,
	}
	if t.UserSig != nil {
		j.UserSig = hex.EncodeToString(t.UserSig)
	}
	if t.BankSig != nil {
		j.BankSig = hex.EncodeToString(t.BankSig)
	}
	if t.AuthSig != nil {
		j.AuthSig = hex.EncodeToString(t.AuthSig)
	}
	return json.Marshal(j)
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	t.ID, t.Sender, t.Receiver, t.Amount = j.ID, j.Sender, j.Receiver, j.Amount
	t.Kind, t.Channel, t.Status, t.Timestamp = j.Kind, j.Channel, j.Status, j.Timestamp
	t.BankID, t.Hash, t.Offline, t.Notes = j.BankID, j.Hash, j.Offline, j.Notes
	for _, pair := range []struct {
		src string
		dst *[]byte
	}{
		{j.UserSig, &t.UserSig},
		{j.BankSig, &t.BankSig},
		{j.AuthSig, &t.AuthSig},
	} {
		if pair.src == "" {
			continue
		}
		b, err := hex.DecodeString(pair.src)
		if err != nil {
			return err
		}
		*pair.dst = b
	}
	return nil
}

// SigningBytes returns the canonical byte encoding hashed to produce Hash:
// id_len(4) | id | sender_len(4) | sender | receiver_len(4) | receiver |
// amount(8) | timestamp(8).
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 4+len(t.ID)+4+len(t.Sender)+4+len(t.Receiver)+8+8)
	buf = appendLenPrefixed(buf, t.ID)
	buf = appendLenPrefixed(buf, t.Sender)
	buf = appendLenPrefixed(buf, t.Receiver)
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Amount.Cents()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(t.Timestamp))
	return buf
}

func appendLenPrefixed(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ComputeHash computes the transaction's content hash from its identifying
// fields.
func (t *Transaction) ComputeHash() types.Hash {
	return cryptoutil.Hash(t.SigningBytes())
}

// Seal recomputes and stores Hash.
func (t *Transaction) Seal() {
	t.Hash = t.ComputeHash()
}
