package rpc_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/advanderveer/at2/ledger/agreement/broadcast"
	"github.com/advanderveer/at2/ledger/rpc"
	"github.com/advanderveer/go-test"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func testLogs() logrus.FieldLogger {
	logs := logrus.New()
	logs.SetOutput(ioutil.Discard)
	return logs
}

type node struct {
	srv *httptest.Server
	a   *agreement.Adapter
	s   ledger.Store
}

func (n *node) Close() {
	n.srv.Close()
	n.a.Shutdown(context.Background())
	n.s.Close()
}

func newNode(t *testing.T, allocs ...ledger.Allocation) *node {
	s := ledger.NewMemStore()
	test.Ok(t, s.Genesis(allocs))

	reg := prometheus.NewRegistry()
	p := ledger.DefaultParams()
	p.Metrics = ledger.NewMetrics(reg)
	l := ledger.New(testLogs(), s, p)
	a := agreement.New(testLogs(), broadcast.NewMem(10), l)

	return &node{
		srv: httptest.NewServer(rpc.NewServer(testLogs(), a, l.Query(), reg)),
		a:   a,
		s:   s,
	}
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	test.Ok(t, err)
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(resp.Body)
	test.Ok(t, err)
	return resp, string(data)
}

func TestSendAndQuery(t *testing.T) {
	alice, bob := ledger.NewIdentity(nil), ledger.NewIdentity(nil)
	n := newNode(t, ledger.Allocation{Account: alice.PK(), Balance: 100})
	defer n.Close()

	ctx := context.Background()
	c := rpc.NewClient(n.srv.URL, nil)

	txs, err := c.GetLatestTransactions(ctx)
	test.Ok(t, err)
	test.Equals(t, 0, len(txs))

	test.Ok(t, c.SendAsset(ctx, alice, 1, bob.PK(), 30))

	var seq uint32
	for i := 0; i < 100 && seq == 0; i++ {
		seq, err = c.GetLastSequence(ctx, alice.PK())
		test.Ok(t, err)
		time.Sleep(time.Millisecond * 10)
	}

	test.Equals(t, uint32(1), seq)

	bal, err := c.GetBalance(ctx, alice.PK())
	test.Ok(t, err)
	test.Equals(t, uint64(70), bal)

	bal, err = c.GetBalance(ctx, bob.PK())
	test.Ok(t, err)
	test.Equals(t, uint64(30), bal)

	txs, err = c.GetLatestTransactions(ctx)
	test.Ok(t, err)
	test.Equals(t, 1, len(txs))
	test.Equals(t, alice.PK(), txs[0].Sender)
	test.Equals(t, bob.PK(), txs[0].Recipient)
	test.Equals(t, uint64(30), txs[0].Amount)
	test.Assert(t, time.Since(txs[0].Timestamp) < time.Minute, "timestamp should be recent")

	//a rejected claim is acknowledged just the same
	test.Ok(t, c.SendAsset(ctx, alice, 2, bob.PK(), 1000))
}

func TestMalformedRequests(t *testing.T) {
	n := newNode(t)
	defer n.Close()

	for _, c := range []struct {
		method string
		body   string
	}{
		{"GetBalance", "{"},
		{"GetBalance", `{"sender": "AAAA"}`},
		{"GetBalance", `{}`},
		{"GetLastSequence", `{"sender": 1}`},
		{"SendAsset", `{"sender": "AAAA"}`},
	} {
		t.Run(c.method+c.body, func(t *testing.T) {
			resp, _ := post(t, n.srv.URL+rpc.Service+"/"+c.method, c.body)
			test.Equals(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	t.Run("bad signature length", func(t *testing.T) {
		idn := ledger.NewIdentity(nil)
		body := `{"sender":"` + b64(idn.PK()) + `","recipient":"` + b64(idn.PK()) + `","sequence":1,"amount":1,"signature":"AAAA"}`
		resp, _ := post(t, n.srv.URL+rpc.Service+"/SendAsset", body)
		test.Equals(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp, _ := post(t, n.srv.URL+rpc.Service+"/Foo", "{}")
		test.Equals(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestEmptyTransactionListAndRequestID(t *testing.T) {
	n := newNode(t)
	defer n.Close()

	resp, body := post(t, n.srv.URL+rpc.Service+"/GetLatestTransactions", "")
	test.Equals(t, http.StatusOK, resp.StatusCode)
	test.Equals(t, `{"transactions":[]}`, strings.TrimSpace(body))
	test.Assert(t, resp.Header.Get(rpc.HeaderRequestID) != "", "should have request id")

	req, err := http.NewRequest(http.MethodPost, n.srv.URL+rpc.Service+"/GetLatestTransactions", strings.NewReader("{}"))
	test.Ok(t, err)
	req.Header.Set(rpc.HeaderRequestID, "my-id")
	resp, err = http.DefaultClient.Do(req)
	test.Ok(t, err)
	resp.Body.Close()
	test.Equals(t, "my-id", resp.Header.Get(rpc.HeaderRequestID))
}

func TestUnavailable(t *testing.T) {
	alice := ledger.NewIdentity(nil)
	n := newNode(t, ledger.Allocation{Account: alice.PK(), Balance: 100})
	defer n.Close()
	test.Ok(t, n.a.Shutdown(context.Background()))

	ctx := context.Background()
	c := rpc.NewClient(n.srv.URL, nil)
	test.Equals(t, rpc.ErrUnavailable, c.SendAsset(ctx, alice, 1, alice.PK(), 1))

	//queries are still served
	bal, err := c.GetBalance(ctx, alice.PK())
	test.Ok(t, err)
	test.Equals(t, uint64(100), bal)
}

func TestHealthAndMetrics(t *testing.T) {
	n := newNode(t)
	defer n.Close()

	resp, err := http.Get(n.srv.URL + "/health")
	test.Ok(t, err)
	resp.Body.Close()
	test.Equals(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(n.srv.URL + "/metrics")
	test.Ok(t, err)
	defer resp.Body.Close()
	test.Equals(t, http.StatusOK, resp.StatusCode)
}
