package p2p

import (
	"context"
	"encoding/json"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/klingon-tech/cbrledger/pkg/block"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

const (
	topicBlocks = "cbrledger/blocks/1.0.0"
	topicTxs    = "cbrledger/txs/1.0.0"
)

// wireBlock is the JSON envelope published to the blocks topic, pairing
// a block with the transaction bodies it references — the teacher's
// gossip.go only ever gossips a block on its own because its
// pkg/block.Block embeds full transactions; this module's Block does
// not (see the internal/ledger DESIGN.md entry), so the envelope
// carries both.
type wireBlock struct {
	Block *block.Block       `json:"block"`
	Txs   []*txn.Transaction `json:"txs"`
}

// GossipTransport is the real-network alternative to SimPeer: a libp2p
// host running GossipSub, broadcasting blocks to every subscriber
// instead of addressing one peer at a time. Grounded on the teacher's
// internal/p2p/node.go host bootstrap and gossip.go/heartbeat.go
// publish/subscribe pattern, stripped of DHT/mDNS discovery and peer
// banning — this cluster's membership comes from internal/registry,
// which is populated out of band, not discovered on the wire.
type GossipTransport struct {
	host   host.Host
	pubsub *pubsub.PubSub
	ctx    context.Context
	cancel context.CancelFunc

	topicBlocks *pubsub.Topic
	subBlocks   *pubsub.Subscription

	blockHandler func(b *block.Block, txs []*txn.Transaction)
}

// NewGossipTransport starts a libp2p host listening on listenAddr
// (e.g. "/ip4/0.0.0.0/tcp/0") with a GossipSub router attached.
func NewGossipTransport(listenAddr string) (*GossipTransport, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("gossip transport: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(context.Background(), h)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gossip transport: create gossipsub: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GossipTransport{host: h, pubsub: ps, ctx: ctx, cancel: cancel}, nil
}

// Host exposes the underlying libp2p host for dialing peers directly.
func (t *GossipTransport) Host() host.Host { return t.host }

// SetBlockHandler registers the callback invoked for each block received
// over the blocks topic from another host. The transport only decodes the
// message; it does not verify the block.
func (t *GossipTransport) SetBlockHandler(fn func(b *block.Block, txs []*txn.Transaction)) {
	t.blockHandler = fn
}

// JoinBlocks joins the shared blocks topic and starts the read loop.
func (t *GossipTransport) JoinBlocks() error {
	if t.topicBlocks != nil {
		return nil
	}
	topic, err := t.pubsub.Join(topicBlocks)
	if err != nil {
		return fmt.Errorf("join blocks topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("subscribe blocks topic: %w", err)
	}
	t.topicBlocks = topic
	t.subBlocks = sub
	go t.readLoop()
	return nil
}

// BroadcastBlock publishes a block and its transactions to every
// subscriber of the blocks topic.
func (t *GossipTransport) BroadcastBlock(b *block.Block, txs []*txn.Transaction) error {
	if t.topicBlocks == nil {
		return fmt.Errorf("gossip transport: blocks topic not joined")
	}
	data, err := json.Marshal(wireBlock{Block: b, Txs: txs})
	if err != nil {
		return fmt.Errorf("marshal wire block: %w", err)
	}
	return t.topicBlocks.Publish(t.ctx, data)
}

func (t *GossipTransport) readLoop() {
	for {
		msg, err := t.subBlocks.Next(t.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}
		var wb wireBlock
		if err := json.Unmarshal(msg.Data, &wb); err != nil {
			continue
		}
		if wb.Block == nil {
			continue
		}
		if t.blockHandler != nil {
			func() {
				defer func() { recover() }()
				t.blockHandler(wb.Block, wb.Txs)
			}()
		}
	}
}

// Close leaves all topics and shuts the host down.
func (t *GossipTransport) Close() error {
	if t.subBlocks != nil {
		t.subBlocks.Cancel()
	}
	if t.topicBlocks != nil {
		t.topicBlocks.Close()
	}
	t.cancel()
	return t.host.Close()
}
