package node_test

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"testing"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/node"
	"github.com/advanderveer/at2/ledger/rpc"
	"github.com/advanderveer/go-test"
	"github.com/sirupsen/logrus"
)

func testLogs() logrus.FieldLogger {
	logs := logrus.New()
	logs.SetOutput(ioutil.Discard)
	return logs
}

func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	test.Ok(t, err)
	defer ln.Close()
	return ln.Addr().String()
}

func eventually(t *testing.T, f func() bool) {
	deadline := time.Now().Add(time.Second * 10)
	for time.Now().Before(deadline) {
		if f() {
			return
		}

		time.Sleep(time.Millisecond * 10)
	}

	t.Fatal("condition not met in time")
}

type running struct {
	n      *node.Node
	cancel func()
	done   chan error
}

func start(t *testing.T, c *node.Conf) *running {
	n, err := node.New(testLogs(), c)
	test.Ok(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{n: n, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- n.Run(ctx) }()
	return r
}

func (r *running) stop(t *testing.T) {
	r.cancel()
	select {
	case err := <-r.done:
		test.Ok(t, err)
	case <-time.After(time.Second * 15):
		t.Fatal("node didn't stop in time")
	}
}

func (r *running) client() *rpc.Client {
	return rpc.NewClient("http://"+r.n.RPCAddr().String(), nil)
}

func TestStandaloneNode(t *testing.T) {
	alice, bob := ledger.NewIdentity(nil), ledger.NewIdentity(nil)
	dir, err := ioutil.TempDir("", "at2_node_")
	test.Ok(t, err)
	defer os.RemoveAll(dir)

	for _, storage := range []string{node.StorageMemory, node.StorageBadger, node.StorageBolt} {
		t.Run(storage, func(t *testing.T) {
			c := node.DefaultConf()
			c.Transport = node.TransportMemory
			c.Storage = storage
			c.DataDir = dir + "/" + storage
			c.RPCAddress = "127.0.0.1:0"
			c.Genesis = []node.GenesisEntry{{Account: alice.PK().Hex(), Balance: 100}}

			r := start(t, c)
			ctx := context.Background()
			cl := r.client()

			test.Ok(t, cl.SendAsset(ctx, alice, 1, bob.PK(), 30))
			eventually(t, func() bool {
				bal, err := cl.GetBalance(ctx, bob.PK())
				return err == nil && bal == 30
			})

			bal, err := cl.GetBalance(ctx, alice.PK())
			test.Ok(t, err)
			test.Equals(t, uint64(70), bal)
			r.stop(t)

			if storage == node.StorageMemory {
				return
			}

			t.Run("state survives a restart", func(t *testing.T) {
				r := start(t, c)
				defer r.stop(t)

				bal, err := r.client().GetBalance(ctx, alice.PK())
				test.Ok(t, err)
				test.Equals(t, uint64(70), bal)
			})

			t.Run("a different genesis is refused", func(t *testing.T) {
				c.Genesis[0].Balance = 1000
				defer func() { c.Genesis[0].Balance = 100 }()

				_, err := node.New(testLogs(), c)
				test.Assert(t, err != nil, "expected genesis mismatch")
			})
		})
	}
}

func TestTCPNetwork(t *testing.T) {
	alice, bob := ledger.NewIdentity(nil), ledger.NewIdentity(nil)
	addrs := []string{freeAddr(t), freeAddr(t), freeAddr(t)}

	var entries []node.Entry
	for _, addr := range addrs {
		entries = append(entries, node.Entry{Address: addr})
	}

	var rs []*running
	for _, addr := range addrs {
		c := node.DefaultConf()
		c.Address = addr
		c.RPCAddress = "127.0.0.1:0"
		c.Storage = node.StorageMemory
		c.DialTimeout = time.Millisecond * 100
		c.Nodes = entries
		c.Genesis = []node.GenesisEntry{{Account: alice.PK().Hex(), Balance: 100}}
		rs = append(rs, start(t, c))
	}

	ctx := context.Background()

	//the claim reaches every replica once every node dialed its peers, it
	//is resubmitted until that happened
	eventually(t, func() bool {
		rs[0].client().SendAsset(ctx, alice, 1, bob.PK(), 30)
		time.Sleep(time.Millisecond * 50)
		for _, r := range rs {
			bal, err := r.client().GetBalance(ctx, bob.PK())
			if err != nil || bal != 30 {
				return false
			}
		}

		return true
	})

	for _, r := range rs {
		seq, err := r.client().GetLastSequence(ctx, alice.PK())
		test.Ok(t, err)
		test.Equals(t, uint32(1), seq)
		r.stop(t)
	}
}
