package broadcast_test

import (
	"io"
	"io/ioutil"
	"net"
	"testing"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/advanderveer/at2/ledger/agreement/broadcast"
	"github.com/advanderveer/go-test"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ agreement.Broadcast = &broadcast.Mem{}
var _ agreement.Broadcast = &broadcast.TCP{}
var _ agreement.Broadcast = &broadcast.HTTP{}

func testLogs() logrus.FieldLogger {
	logs := logrus.New()
	logs.SetOutput(ioutil.Discard)
	return logs
}

func testMsg(amount uint64) *agreement.Msg {
	idn := ledger.NewIdentity([]byte{0x01})
	return &agreement.Msg{Claim: idn.Transfer(1, ledger.NewIdentity([]byte{0x02}).PK(), amount)}
}

func eventually(t *testing.T, f func() bool) {
	deadline := time.Now().Add(time.Second * 5)
	for time.Now().Before(deadline) {
		if f() {
			return
		}

		time.Sleep(time.Millisecond * 5)
	}

	t.Fatal("condition not met in time")
}

// readWithin reads one message or fails the test after the timeout
func readWithin(t *testing.T, bc agreement.Broadcast, d time.Duration) *agreement.Msg {
	msgc := make(chan *agreement.Msg, 1)
	errc := make(chan error, 1)
	go func() {
		msg := &agreement.Msg{}
		if err := bc.Read(msg); err != nil {
			errc <- err
			return
		}

		msgc <- msg
	}()

	select {
	case msg := <-msgc:
		return msg
	case err := <-errc:
		t.Fatalf("failed to read: %v", err)
	case <-time.After(d):
		t.Fatalf("no message within %s", d)
	}

	return nil
}

func TestMemBroadcast(t *testing.T) {
	bc1 := broadcast.NewMem(2)
	bc2 := broadcast.NewMem(2)
	bc1.To(bc2)

	msg1 := testMsg(10)
	test.Ok(t, bc1.Write(msg1))

	test.Equals(t, msg1, readWithin(t, bc2, time.Second))
	test.Equals(t, msg1, readWithin(t, bc1, time.Second)) //loopback

	t.Run("close should return EOF", func(t *testing.T) {
		test.Ok(t, bc2.Close())
		test.Equals(t, io.EOF, bc2.Read(&agreement.Msg{}))
		test.Equals(t, broadcast.ErrClosed, bc2.Write(msg1))

		test.Ok(t, bc1.Write(msg1)) //should still work and not block
		test.Ok(t, bc2.Close())
	})
}

func TestMemLatency(t *testing.T) {
	bc1 := broadcast.NewMem(1)
	bc2 := broadcast.NewMem(1)
	bc1.WithLatency(time.Millisecond*10, time.Millisecond*20)
	bc1.To(bc2)

	start := time.Now()
	test.Ok(t, bc1.Write(testMsg(1)))
	readWithin(t, bc2, time.Second)
	test.Assert(t, time.Since(start) >= time.Millisecond*10, "expected latency")
}

func TestTCPBroadcast(t *testing.T) {
	bc1, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)
	bc2, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)
	bc3, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)

	//ring topology
	test.Ok(t, bc1.To(time.Second, bc2.Addr()))
	test.Ok(t, bc2.To(time.Second, bc3.Addr()))
	test.Ok(t, bc3.To(time.Second, bc1.Addr()))

	//write and pass along message
	msg1 := testMsg(10)
	test.Ok(t, bc1.Write(msg1))
	test.Equals(t, msg1, readWithin(t, bc1, time.Second))

	msg2 := readWithin(t, bc2, time.Second)
	test.Equals(t, msg1, msg2)
	test.Ok(t, bc2.Write(msg2))
	readWithin(t, bc2, time.Second)

	msg3 := readWithin(t, bc3, time.Second)
	test.Equals(t, msg1, msg3)
	test.Ok(t, bc3.Write(msg3))
	readWithin(t, bc3, time.Second)

	test.Equals(t, msg1, readWithin(t, bc1, time.Second))

	test.Ok(t, bc1.Close())
	test.Ok(t, bc2.Close())
	test.Ok(t, bc3.Close())

	//test usage after shutdown
	test.Equals(t, io.EOF, bc1.Read(&agreement.Msg{}))
	test.Equals(t, broadcast.ErrClosed, bc1.Write(msg1))
	test.Ok(t, bc1.Close())
}

func TestTCPMaxConnHandling(t *testing.T) {
	nConn := 3
	bc1, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", nConn, 100)
	test.Ok(t, err)
	defer bc1.Close()

	//saturate bc1
	for i := 0; i < nConn; i++ {
		bc, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", nConn, 100)
		test.Ok(t, err)
		defer bc.Close()
		test.Ok(t, bc.To(time.Second, bc1.Addr()))
	}

	//the next connection is closed right after it is accepted
	conn, err := net.DialTimeout("tcp", bc1.Addr().String(), time.Second)
	test.Ok(t, err)
	defer conn.Close()

	test.Ok(t, conn.SetReadDeadline(time.Now().Add(time.Second*5)))
	_, err = conn.Read(make([]byte, 1))
	test.Equals(t, io.EOF, err)
}

func TestHTTPBroadcast(t *testing.T) {
	bc1, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, 0, nil, nil)
	test.Ok(t, err)
	bc2, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, 0, nil, nil)
	test.Ok(t, err)

	_, err = broadcast.ParseCertificate(bc1.CA())
	test.Ok(t, err)

	test.Ok(t, bc1.To(broadcast.HTTPPeer{Addr: bc2.Addr().String(), CA: bc2.CA()}))
	test.Ok(t, bc2.To(broadcast.HTTPPeer{Addr: bc1.Addr().String(), CA: bc1.CA()}))

	msg1 := testMsg(10)
	test.Ok(t, bc1.Write(msg1))
	test.Equals(t, msg1, readWithin(t, bc1, time.Second*5))
	test.Equals(t, msg1, readWithin(t, bc2, time.Second*5))

	msg2 := testMsg(20)
	test.Ok(t, bc2.Write(msg2))
	test.Equals(t, msg2, readWithin(t, bc1, time.Second*5))

	test.Ok(t, bc1.Close())
	test.Ok(t, bc2.Close())
	test.Equals(t, io.EOF, bc1.Read(&agreement.Msg{}))
	test.Equals(t, broadcast.ErrClosed, bc1.Write(msg1))
}

func TestHTTPInvalidPeerCertificate(t *testing.T) {
	bc, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, 0, nil, nil)
	test.Ok(t, err)
	defer bc.Close()

	test.Assert(t, bc.To(broadcast.HTTPPeer{Addr: "127.0.0.1:1", CA: []byte("foo")}) != nil, "expected invalid cert to fail")
}

func TestHTTPWithProvidedCertificate(t *testing.T) {
	cert, key, err := broadcast.CreateCertificates(nil)
	test.Ok(t, err)

	bc, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, 0, cert, key)
	test.Ok(t, err)
	defer bc.Close()
	test.Equals(t, cert, bc.CA())

	_, err = broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, 0, cert, []byte("foo"))
	test.Assert(t, err != nil, "expected invalid key to fail")
}

func TestHTTPPeerDownAndBack(t *testing.T) {
	to := time.Millisecond * 200
	cert, key, err := broadcast.CreateCertificates(nil)
	test.Ok(t, err)

	bc, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, to, nil, nil)
	test.Ok(t, err)
	defer bc.Close()

	peer, err := broadcast.NewHTTP(testLogs(), "127.0.0.1:0", 10, to, cert, key)
	test.Ok(t, err)
	addr := peer.Addr().String()
	test.Ok(t, bc.To(broadcast.HTTPPeer{Addr: addr, CA: cert}))

	msg1 := testMsg(1)
	test.Ok(t, bc.Write(msg1))
	test.Equals(t, msg1, readWithin(t, peer, time.Second*5))
	test.Equals(t, msg1, readWithin(t, bc, time.Second*5))

	test.Ok(t, peer.Close())
	eventually(t, func() bool { return len(bc.Unreachable()) == 1 })

	t.Run("writes are refused while the peer is down", func(t *testing.T) {
		err := bc.Write(testMsg(2))
		test.Equals(t, broadcast.ErrPeerUnreachable, errors.Cause(err))
	})

	peer, err = broadcast.NewHTTP(testLogs(), addr, 10, to, cert, key)
	test.Ok(t, err)
	defer peer.Close()
	eventually(t, func() bool { return len(bc.Unreachable()) == 0 })

	msg3 := testMsg(3)
	test.Ok(t, bc.Write(msg3))
	test.Equals(t, msg3, readWithin(t, peer, time.Second*5))
	test.Equals(t, msg3, readWithin(t, bc, time.Second*5))
}

func TestTCPPeerDownAndBack(t *testing.T) {
	bc, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)
	defer bc.Close()

	peer, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)
	addr := peer.Addr()
	test.Ok(t, bc.To(time.Millisecond*100, addr))

	msg1 := testMsg(1)
	test.Ok(t, bc.Write(msg1))
	test.Equals(t, msg1, readWithin(t, peer, time.Second))
	test.Equals(t, msg1, readWithin(t, bc, time.Second))

	test.Ok(t, peer.Close())
	eventually(t, func() bool { return len(bc.Unreachable()) == 1 })

	t.Run("writes are refused while the peer is down", func(t *testing.T) {
		err := bc.Write(testMsg(2))
		test.Equals(t, broadcast.ErrPeerUnreachable, errors.Cause(err))
	})

	peer, err = broadcast.NewTCP(testLogs(), addr.String(), 10, 100)
	test.Ok(t, err)
	defer peer.Close()
	eventually(t, func() bool { return len(bc.Unreachable()) == 0 })

	msg3 := testMsg(3)
	test.Ok(t, bc.Write(msg3))
	test.Equals(t, msg3, readWithin(t, peer, time.Second))
	test.Equals(t, msg3, readWithin(t, bc, time.Second))
}

func TestTCPPeerNotUpYet(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	test.Ok(t, err)
	addr := ln.Addr()
	test.Ok(t, ln.Close())

	bc, err := broadcast.NewTCP(testLogs(), "127.0.0.1:0", 10, 100)
	test.Ok(t, err)
	defer bc.Close()

	test.Ok(t, bc.To(time.Millisecond*100, addr))
	test.Equals(t, []string{addr.String()}, bc.Unreachable())
	test.Equals(t, broadcast.ErrPeerUnreachable, errors.Cause(bc.Write(testMsg(1))))

	peer, err := broadcast.NewTCP(testLogs(), addr.String(), 10, 100)
	test.Ok(t, err)
	defer peer.Close()
	eventually(t, func() bool { return len(bc.Unreachable()) == 0 })

	msg := testMsg(2)
	test.Ok(t, bc.Write(msg))
	test.Equals(t, msg, readWithin(t, peer, time.Second))
}
