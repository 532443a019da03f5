// Package announce gossips freshly minted proofs between independent
// deployments. Uniqueness is scoped per issuer, so peers cannot veto each
// other's mints; announcements are an advisory signal, cached and logged, and
// the ledgers remain the source of truth.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/provn-io/provn/pkg/config"
)

const (
	ProtocolID         = "/provn/1.0.0"
	DiscoveryNamespace = "provn-network"
	PubsubTopic        = "provn-proofs"
	ConnectionTimeout  = 10 * time.Second
)

// MintAnnouncement is the gossip payload for one completed mint.
type MintAnnouncement struct {
	Fingerprint string    `json:"fingerprint"`
	TokenID     string    `json:"token_id"`
	LedgerRef   string    `json:"ledger_ref"`
	Issuer      string    `json:"issuer"`
	MintedAt    time.Time `json:"minted_at"`
}

// Network is the libp2p host carrying the announcement topic.
type Network struct {
	cfg          *config.Config
	logger       *zap.Logger
	host         host.Host
	dht          *dht.IpfsDHT
	pubsub       *pubsub.PubSub
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	peers        map[peer.ID]peer.AddrInfo
	recent       map[string]MintAnnouncement
	mu           sync.RWMutex
}

func NewNetwork(cfg *config.Config, logger *zap.Logger) (*Network, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Network{
		cfg:    cfg,
		logger: logger,
		peers:  make(map[peer.ID]peer.AddrInfo),
		recent: make(map[string]MintAnnouncement),
	}, nil
}

func (n *Network) Start(ctx context.Context) error {
	h, err := n.createHost()
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	n.host = h

	if err := n.initDHT(ctx); err != nil {
		return fmt.Errorf("failed to initialize DHT: %w", err)
	}

	if err := n.initPubSub(ctx); err != nil {
		return fmt.Errorf("failed to initialize PubSub: %w", err)
	}

	if err := n.initMDNS(); err != nil {
		return fmt.Errorf("failed to initialize mDNS: %w", err)
	}

	if err := n.connectToBootstrapPeers(ctx); err != nil {
		return fmt.Errorf("failed to connect to bootstrap peers: %w", err)
	}

	go n.handleMessages(ctx)

	return nil
}

func (n *Network) createHost() (host.Host, error) {
	addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", n.cfg.ListenAddress, n.cfg.Port))
	if err != nil {
		return nil, err
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrs(addr),
		libp2p.EnableNATService(),
	}

	if len(n.cfg.BootstrapPeers) > 0 {
		opts = append(opts, libp2p.EnableAutoRelay())
	}

	return libp2p.New(opts...)
}

func (n *Network) initDHT(ctx context.Context) error {
	var err error
	n.dht, err = dht.New(ctx, n.host,
		dht.Mode(dht.ModeServer),
		dht.ProtocolPrefix(protocol.ID(ProtocolID)),
	)
	if err != nil {
		return err
	}

	return n.dht.Bootstrap(ctx)
}

func (n *Network) initPubSub(ctx context.Context) error {
	var err error
	n.pubsub, err = pubsub.NewGossipSub(ctx, n.host)
	if err != nil {
		return err
	}

	n.topic, err = n.pubsub.Join(PubsubTopic)
	if err != nil {
		return err
	}

	n.subscription, err = n.topic.Subscribe()
	return err
}

func (n *Network) initMDNS() error {
	service := mdns.NewMdnsService(n.host, DiscoveryNamespace, n)
	return service.Start()
}

// HandlePeerFound implements the mdns.Notifee interface.
func (n *Network) HandlePeerFound(pi peer.AddrInfo) {
	n.connectToPeer(context.Background(), pi)
}

func (n *Network) connectToBootstrapPeers(ctx context.Context) error {
	for _, addr := range n.cfg.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			n.logger.Warn("invalid bootstrap peer address", zap.String("addr", addr), zap.Error(err))
			continue
		}

		peerInfo, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			continue
		}

		if err := n.connectToPeerWithBackoff(ctx, *peerInfo); err != nil {
			n.logger.Warn("bootstrap peer unreachable", zap.String("addr", addr), zap.Error(err))
			continue
		}
	}
	return nil
}

func (n *Network) connectToPeer(ctx context.Context, peerInfo peer.AddrInfo) error {
	ctx, cancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer cancel()

	if err := n.host.Connect(ctx, peerInfo); err != nil {
		return err
	}

	n.mu.Lock()
	n.peers[peerInfo.ID] = peerInfo
	n.mu.Unlock()

	return nil
}

func (n *Network) connectToPeerWithBackoff(ctx context.Context, peerInfo peer.AddrInfo) error {
	backoff := time.Second
	maxBackoff := time.Minute

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := n.connectToPeer(ctx, peerInfo)
			if err == nil {
				return nil
			}

			if backoff > maxBackoff {
				return fmt.Errorf("max backoff reached: %w", err)
			}

			time.Sleep(backoff)
			backoff *= 2
		}
	}
}

func (n *Network) handleMessages(ctx context.Context) {
	for {
		msg, err := n.subscription.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		n.processAnnouncement(msg)
	}
}

func (n *Network) processAnnouncement(msg *pubsub.Message) {
	var a MintAnnouncement
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		n.logger.Debug("discarding malformed announcement", zap.Error(err))
		return
	}
	if a.Fingerprint == "" || a.TokenID == "" {
		return
	}

	n.mu.Lock()
	n.recent[a.Fingerprint] = a
	n.mu.Unlock()

	n.logger.Info("peer deployment minted a proof",
		zap.String("fingerprint", a.Fingerprint),
		zap.String("token_id", a.TokenID),
		zap.String("issuer", a.Issuer),
		zap.String("from", msg.ReceivedFrom.String()))
}

// AnnounceMint publishes a mint to the topic.
func (n *Network) AnnounceMint(ctx context.Context, a MintAnnouncement) error {
	if a.MintedAt.IsZero() {
		a.MintedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}

	return n.topic.Publish(ctx, data)
}

// RecentAnnouncement returns the latest announcement seen for a fingerprint,
// if any peer deployment has minted one.
func (n *Network) RecentAnnouncement(fingerprint string) (MintAnnouncement, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	a, ok := n.recent[fingerprint]
	return a, ok
}

func (n *Network) GetPeers() []peer.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()

	peers := make([]peer.ID, 0, len(n.peers))
	for id := range n.peers {
		peers = append(peers, id)
	}
	return peers
}

func (n *Network) GetHost() host.Host {
	return n.host
}

// ConnectToPeer exports the peer connection functionality.
func (n *Network) ConnectToPeer(ctx context.Context, peerInfo peer.AddrInfo) error {
	return n.connectToPeer(ctx, peerInfo)
}

func (n *Network) Stop() error {
	if n.subscription != nil {
		n.subscription.Cancel()
	}

	if n.topic != nil {
		n.topic.Close()
	}

	if n.dht != nil {
		if err := n.dht.Close(); err != nil {
			return err
		}
	}

	if n.host != nil {
		return n.host.Close()
	}

	return nil
}
