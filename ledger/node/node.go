package node

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/advanderveer/at2/ledger/agreement/broadcast"
	"github.com/advanderveer/at2/ledger/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Node runs one replica of the ledger: the store, the broadcast it agrees
// through and the rpc server clients talk to.
type Node struct {
	conf *Conf
	logs logrus.FieldLogger

	store   ledger.Store
	ledger  *ledger.Ledger
	bc      agreement.Broadcast
	join    func(ctx context.Context) error
	adapter *agreement.Adapter

	rpcln net.Listener
	rpc   *http.Server
}

// New sets up the node from a validated config, nothing is served until Run
// is called
func New(logs logrus.FieldLogger, conf *Conf) (n *Node, err error) {
	err = conf.Validate()
	if err != nil {
		return nil, err
	}

	n = &Node{conf: conf, logs: logs.WithField("component", "node")}
	n.store, err = openStore(conf)
	if err != nil {
		return nil, err
	}

	allocs, err := conf.Allocations()
	if err != nil {
		n.store.Close()
		return nil, err
	}

	err = n.store.Genesis(allocs)
	if err != nil {
		n.store.Close()
		return nil, errors.Wrap(err, "failed to apply genesis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	p := conf.Params()
	p.Metrics = ledger.NewMetrics(reg)
	n.ledger = ledger.New(logs, n.store, p)

	err = n.setupBroadcast(logs)
	if err != nil {
		n.store.Close()
		return nil, err
	}

	n.rpcln, err = net.Listen("tcp", conf.RPCAddress)
	if err != nil {
		n.bc.Close()
		n.store.Close()
		return nil, errors.Wrapf(err, "failed to listen for rpc on '%s'", conf.RPCAddress)
	}

	n.adapter = agreement.New(logs, n.bc, n.ledger)
	n.rpc = &http.Server{
		Handler:      rpc.NewServer(logs, n.adapter, n.ledger.Query(), reg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return
}

func openStore(conf *Conf) (s ledger.Store, err error) {
	if conf.Storage != StorageMemory {
		err = os.MkdirAll(conf.DataDir, 0700)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create data directory")
		}
	}

	switch conf.Storage {
	case StorageBadger:
		s, err = ledger.NewBadgerStore(filepath.Join(conf.DataDir, "badger"))
	case StorageBolt:
		s, err = ledger.NewBoltStore(conf.DataDir)
	case StorageMemory:
		s = ledger.NewMemStore()
	default:
		return nil, ErrUnknownStorage
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s storage", conf.Storage)
	}

	return
}

func (n *Node) setupBroadcast(logs logrus.FieldLogger) (err error) {
	switch n.conf.Transport {
	case TransportTCP:
		tcp, err := broadcast.NewTCP(logs, n.conf.Address, n.conf.MaxIncomingConn, n.conf.MaxMessageBuf)
		if err != nil {
			return errors.Wrap(err, "failed to setup tcp broadcast")
		}

		n.bc = tcp
		n.join = func(ctx context.Context) error { return n.joinTCP(ctx, tcp) }

	case TransportHTTP2:
		var cert, key []byte
		if n.conf.Certificate != "" && n.conf.Key != "" {
			cert, key = []byte(n.conf.Certificate), []byte(n.conf.Key)
		}

		h2, err := broadcast.NewHTTP(logs, n.conf.Address, n.conf.MaxMessageBuf, n.conf.DialTimeout, cert, key)
		if err != nil {
			return errors.Wrap(err, "failed to setup h2 broadcast")
		}

		var peers []broadcast.HTTPPeer
		for _, p := range n.conf.Peers() {
			peers = append(peers, broadcast.HTTPPeer{Addr: p.Address, CA: []byte(p.Certificate)})
		}

		n.bc = h2
		n.join = func(ctx context.Context) error { return h2.To(peers...) }

	case TransportMemory:
		n.bc = broadcast.NewMem(n.conf.MaxMessageBuf)
		n.join = func(ctx context.Context) error { return nil }

	default:
		return ErrUnknownTransport
	}

	return nil
}

// joinTCP connects to every peer. Peers that aren't up yet are redialed by
// the transport, submissions are refused until all of them are reachable.
func (n *Node) joinTCP(ctx context.Context, tcp *broadcast.TCP) (err error) {
	var addrs []net.Addr
	for _, p := range n.conf.Peers() {
		addr, err := net.ResolveTCPAddr("tcp", p.Address)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve peer '%s'", p.Address)
		}

		addrs = append(addrs, addr)
	}

	err = tcp.To(n.conf.DialTimeout, addrs...)
	if err != nil {
		return errors.Wrap(err, "failed to connect to peers")
	}

	if down := tcp.Unreachable(); len(down) > 0 {
		n.logs.WithField("peers", down).Info("waiting for peers to come up")
	}

	return nil
}

// Ledger returns the replicated state machine
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// RPCAddr returns the address the rpc server listens on
func (n *Node) RPCAddr() net.Addr { return n.rpcln.Addr() }

// Run serves clients and delivers claims until the context is cancelled or
// the ledger halts on a storage failure, which is returned after shutting
// down. If the broadcast stops delivering the node keeps serving queries but
// refuses submissions.
func (n *Node) Run(ctx context.Context) (err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := n.rpc.Serve(n.rpcln)
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "failed to serve rpc")
		}

		return nil
	})

	g.Go(func() error {
		err := n.join(gctx)
		if err != nil && gctx.Err() == nil {
			return errors.Wrap(err, "failed to join network")
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-n.adapter.Done():
			if gctx.Err() != nil {
				return nil //shutting down
			}

			if n.ledger.Halted() != nil {
				return errors.Wrap(n.adapter.Err(), "stopped delivering claims")
			}

			n.logs.WithError(n.adapter.Err()).Error("stopped delivering claims, only serving queries")
			<-gctx.Done()
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return n.shutdown()
	})

	n.logs.WithFields(logrus.Fields{
		"address":   n.conf.Address,
		"rpc":       n.rpcln.Addr().String(),
		"transport": n.conf.Transport,
		"storage":   n.conf.Storage,
	}).Info("node started")

	return g.Wait()
}

func (n *Node) shutdown() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = n.rpc.Shutdown(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to shutdown rpc server")
	}

	err = n.adapter.Shutdown(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to shutdown agreement")
	}

	err = n.store.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close store")
	}

	n.logs.Info("node stopped")
	return nil
}
