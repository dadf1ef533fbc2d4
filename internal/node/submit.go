package node

import (
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/consensus"
	"github.com/klingon-tech/cbrledger/internal/utxo"
	"github.com/klingon-tech/cbrledger/pkg/addr"
	"github.com/klingon-tech/cbrledger/pkg/oracle"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

func validateRequest(req TxRequest) error {
	if req.Sender == req.Receiver {
		return ErrSelfTransfer
	}
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := addr.Decode(req.Sender); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if _, err := addr.Decode(req.Receiver); err != nil {
		return fmt.Errorf("invalid receiver address: %w", err)
	}
	return nil
}

// sign attributes a signature over tx's content hash to ownerID, signing
// as the user and, when this node is the authority, co-signing as the
// authority too. A signing failure is logged and left unset rather than
// failing the whole submission — the signature is evidentiary, not load
// bearing for the engines that actually move value.
func (n *Node) sign(tx *txn.Transaction) {
	if sig, err := n.oracle.Sign(oracle.OwnerUser, tx.Sender, tx.Hash); err != nil {
		n.logger.Warn().Err(err).Str("tx", tx.ID).Msg("user signature failed")
	} else {
		tx.UserSig = sig
	}
	if n.isAuthority {
		if sig, err := n.oracle.Sign(oracle.OwnerAuthority, n.id, tx.Hash); err != nil {
			n.logger.Warn().Err(err).Str("tx", tx.ID).Msg("authority signature failed")
		} else {
			tx.AuthSig = sig
		}
	}
}

// SubmitTransaction implements spec §6's submit_transaction(ctx) -> tx:
// it validates the request, spends the sender's UTXOs for amount,
// mints the receiver's new output (and the sender's change output, if
// any), seals a block over the single transaction, and runs one
// consensus round before replicating to every connected peer. Only the
// node currently holding the LEADER role may commit — any other node
// fails with ErrConsensusUnavailable before touching the UTXO set, so a
// rejected submission leaves no partial effects.
func (n *Node) SubmitTransaction(req TxRequest) (*txn.Transaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if n.consensus.Role() != consensus.RoleLeader {
		return nil, ErrConsensusUnavailable
	}

	if req.Kind == "" {
		req.Kind = txn.KindOnline
	}
	tx := &txn.Transaction{
		ID:        fmt.Sprintf("%s-tx-%d", n.id, n.nextSeq()),
		Sender:    req.Sender,
		Receiver:  req.Receiver,
		Amount:    req.Amount,
		Kind:      req.Kind,
		Channel:   req.Channel,
		BankID:    req.BankID,
		Notes:     req.Notes,
		Status:    txn.StatusPending,
		Timestamp: n.clock.Now().Unix(),
	}
	tx.Seal()
	n.sign(tx)

	change, _, err := n.utxo.Spend(req.Sender, req.Amount, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("submit_transaction: %w", err)
	}

	if _, err := n.utxo.Create(req.Receiver, req.Amount, tx.ID, fmt.Sprintf("%s-utxo-%d", n.id, n.nextSeq())); err != nil {
		return nil, fmt.Errorf("submit_transaction: mint receiver output: %w", err)
	}
	if change.IsPositive() {
		if _, err := n.utxo.Create(req.Sender, change, tx.ID, fmt.Sprintf("%s-utxo-%d", n.id, n.nextSeq())); err != nil {
			return nil, fmt.Errorf("submit_transaction: mint change output: %w", err)
		}
	}

	b, err := n.AppendBlock([]*txn.Transaction{tx})
	if err != nil {
		return nil, fmt.Errorf("submit_transaction: %w", err)
	}
	tx.Status = txn.StatusConfirmed

	if _, err := n.RunConsensusRound(b.Hash); err != nil {
		n.logger.Warn().Err(err).Str("block", b.Hash.String()).Msg("consensus round failed after local commit")
	}
	n.Replicate(b, []*txn.Transaction{tx})

	return tx, nil
}

// CreateOfflineTransaction implements spec §6's
// create_offline_transaction(ctx): instead of running the full
// spend/consensus path, it mints a single offline-anchor UTXO for the
// sender (spec §4.3's shrinking-anchor rule) and buffers the transaction
// as OFFLINE_BUFFER, to be reconciled by a later SyncOffline once this
// node is back in contact with the cluster.
func (n *Node) CreateOfflineTransaction(req TxRequest) (*txn.Transaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	tx := &txn.Transaction{
		ID:        fmt.Sprintf("%s-offtx-%d", n.id, n.nextSeq()),
		Sender:    req.Sender,
		Receiver:  req.Receiver,
		Amount:    req.Amount,
		Kind:      txn.KindOffline,
		Channel:   req.Channel,
		BankID:    req.BankID,
		Notes:     req.Notes,
		Status:    txn.StatusOfflineBuffer,
		Timestamp: n.clock.Now().Unix(),
		Offline:   true,
	}
	tx.Seal()
	n.sign(tx)

	anchorID := fmt.Sprintf("%s-anchor-%d", n.id, n.nextSeq())
	anchor, err := n.utxo.OfflineAnchor(req.Sender, req.Amount, tx.ID, anchorID)
	if err != nil {
		if errors.Is(err, utxo.ErrNoUnspentOutput) {
			return nil, fmt.Errorf("create_offline_transaction: %w", ErrInsufficientOffline)
		}
		return nil, fmt.Errorf("create_offline_transaction: %w", err)
	}

	n.offlineMu.Lock()
	n.offline[anchor.ID] = &offlinePending{tx: tx, anchorID: anchor.ID}
	n.offlineMu.Unlock()

	return tx, nil
}

// SyncOffline implements spec §4.3/§6's sync_offline() -> {processed,
// conflicts}: every buffered offline transaction is reconciled against
// the anchor UTXO its own creation minted. An anchor still UNSPENT
// confirms the transaction into a block and runs it through the normal
// consensus/replication path; one that is no longer UNSPENT — consumed
// by a competing offline hop before this sync ran — is marked CONFLICT.
// This is the real-ledger-check variant spec §4.3 permits in place of a
// deterministic sampling policy.
func (n *Node) SyncOffline() (processed, conflicts int, err error) {
	n.offlineMu.Lock()
	pending := make([]*offlinePending, 0, len(n.offline))
	for _, p := range n.offline {
		pending = append(pending, p)
	}
	n.offline = make(map[string]*offlinePending)
	n.offlineMu.Unlock()

	for _, p := range pending {
		unspent, checkErr := n.utxo.IsUnspent(p.anchorID)
		if checkErr != nil || !unspent {
			p.tx.Status = txn.StatusConflict
			conflicts++
			continue
		}

		p.tx.Status = txn.StatusConfirmed
		b, appendErr := n.AppendBlock([]*txn.Transaction{p.tx})
		if appendErr != nil {
			p.tx.Status = txn.StatusConflict
			conflicts++
			continue
		}
		if _, err := n.RunConsensusRound(b.Hash); err != nil {
			n.logger.Warn().Err(err).Str("block", b.Hash.String()).Msg("consensus round failed during offline sync")
		}
		n.Replicate(b, []*txn.Transaction{p.tx})
		processed++
	}
	return processed, conflicts, nil
}
