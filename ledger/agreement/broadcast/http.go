package broadcast

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// peers verify certificates against the pinned CA of the node they dial,
// every certificate carries this name so the address used doesn't matter
const pinnedName = "localhost"

// pushing to a peer gives up after this long unless configured otherwise
const defaultPushTimeout = 5 * time.Second

var (
	// ErrClientClosed is returned when a push stream has failed or was shut down
	ErrClientClosed = errors.New("client closed and can no longer be used")

	// ErrPushTimeout is returned when a peer didn't take a message in time
	ErrPushTimeout = errors.New("timed out pushing to peer")
)

// HTTP is a broadcast endpoint that pushes gob encoded messages over long
// running HTTP/2 requests (PUT /push). The server uses a self-signed
// certificate which peers pin.
type HTTP struct {
	logs    logrus.FieldLogger
	ln      net.Listener
	srv     *http.Server
	cert    []byte
	to      time.Duration
	in      chan *agreement.Msg
	closing chan struct{}

	mu     sync.RWMutex
	closed bool
	pushes sync.WaitGroup
	peers  map[string]*pushClient
}

// HTTPPeer describes another HTTP endpoint: where to reach it and the pem
// encoded certificate it serves with
type HTTPPeer struct {
	Addr string
	CA   []byte
}

// NewHTTP starts an HTTP/2 broadcast endpoint on the bind address. It serves
// with the pem encoded certificate and key, if either is nil a new pair is
// created. Pushing to a peer times out after 'to', or a default when zero. Peers
// are re-dialed after the same interval while they are unreachable.
func NewHTTP(logs logrus.FieldLogger, bind string, maxBuf int, to time.Duration, cert, key []byte) (bc *HTTP, err error) {
	if to <= 0 {
		to = defaultPushTimeout
	}

	bc = &HTTP{
		logs:    logs.WithField("component", "broadcast/http"),
		to:      to,
		in:      make(chan *agreement.Msg, maxBuf),
		closing: make(chan struct{}),
		peers:   make(map[string]*pushClient),
	}

	bc.ln, err = net.Listen("tcp", bind)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on '%s'", bind)
	}

	if cert == nil || key == nil {
		cert, key, err = CreateCertificates(bc.ln.Addr().(*net.TCPAddr).IP)
		if err != nil {
			bc.ln.Close()
			return nil, errors.Wrap(err, "failed to create server certificates")
		}
	}

	pair, err := KeyPair(cert, key)
	if err != nil {
		bc.ln.Close()
		return nil, errors.Wrap(err, "failed to use certificates")
	}

	bc.cert = cert
	bc.srv = &http.Server{
		Handler: bc,
		TLSConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{pair},
		},

		//push requests stream for as long as the peer lives, so there are no
		//read or write timeouts
		IdleTimeout: 120 * time.Second,
	}

	err = http2.ConfigureServer(bc.srv, &http2.Server{})
	if err != nil {
		bc.ln.Close()
		return nil, errors.Wrap(err, "failed to configure http2")
	}

	go func() {
		err := bc.srv.ServeTLS(bc.ln, "", "")
		if err != nil && err != http.ErrServerClosed {
			bc.logs.WithError(err).Error("failed to serve")
		}
	}()

	return
}

// Addr returns the address the endpoint is listening on
func (bc *HTTP) Addr() net.Addr { return bc.ln.Addr() }

// CA returns the pem encoded certificate peers need to pin
func (bc *HTTP) CA() []byte { return bc.cert }

// To connects to other endpoints, writes are pushed to them from now on
func (bc *HTTP) To(peers ...HTTPPeer) (err error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.closed {
		return ErrClosed
	}

	for _, p := range peers {
		if _, ok := bc.peers[p.Addr]; ok {
			continue
		}

		ca, err := ParseCertificate(p.CA)
		if err != nil {
			return errors.Wrapf(err, "invalid certificate for peer '%s'", p.Addr)
		}

		bc.peers[p.Addr] = newPushClient(bc.logs, p.Addr, ca, bc.to, bc.closing)
	}

	return
}

func (bc *HTTP) handlePush(w http.ResponseWriter, r *http.Request) {
	dec := gob.NewDecoder(r.Body)
	for {
		msg := new(agreement.Msg)
		err := dec.Decode(msg)
		if err == io.EOF {
			return //request ended
		} else if err != nil {
			bc.logs.WithError(err).WithField("peer", r.RemoteAddr).Debug("failed to decode incoming message data")
			http.Error(w, http.StatusText(http.StatusUnsupportedMediaType), http.StatusUnsupportedMediaType)
			return
		}

		if msg.Claim == nil {
			continue //heartbeat
		}

		select {
		case bc.in <- msg:
		case <-bc.closing:
			return
		}
	}
}

func (bc *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.TLS == nil || !r.ProtoAtLeast(2, 0) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return //must be at least 2.0 and tls
	}

	if r.URL.Path != "/push" || r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}

	bc.mu.RLock()
	if bc.closed {
		bc.mu.RUnlock()
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	bc.pushes.Add(1)
	bc.mu.RUnlock()

	defer bc.pushes.Done()
	bc.handlePush(w, r)
}

// Read a message from the broadcast
func (bc *HTTP) Read(msg *agreement.Msg) (err error) {
	select {
	case <-bc.closing:
		return io.EOF
	case rmsg := <-bc.in:
		*msg = *rmsg
		return nil
	}
}

// Write delivers the message locally and pushes it to every peer. While any
// peer is unreachable the write is refused with ErrPeerUnreachable. A peer that
// fails during the write keeps the message until it is reachable again, the
// write is delivered locally but still reports the failure.
func (bc *HTTP) Write(msg *agreement.Msg) (err error) {
	bc.mu.RLock()
	if bc.closed {
		bc.mu.RUnlock()
		return ErrClosed
	}

	peers := make([]*pushClient, 0, len(bc.peers))
	for _, c := range bc.peers {
		peers = append(peers, c)
	}

	bc.mu.RUnlock()
	if down := bc.Unreachable(); len(down) > 0 {
		return errors.Wrapf(ErrPeerUnreachable, "%d peer(s) down", len(down))
	}

	var failed error
	for _, c := range peers {
		err = c.Write(msg)
		if err != nil {
			bc.logs.WithError(err).WithField("peer", c.addr).Error("failed to push message to peer")
			failed = errors.Wrapf(ErrPeerUnreachable, "failed to push to '%s'", c.addr)
		}
	}

	local := *msg
	select {
	case bc.in <- &local:
		return failed
	case <-bc.closing:
		return ErrClosed
	}
}

// Unreachable returns the addresses of peers that are currently down
func (bc *HTTP) Unreachable() (addrs []string) {
	bc.mu.RLock()
	peers := make([]*pushClient, 0, len(bc.peers))
	for _, c := range bc.peers {
		peers = append(peers, c)
	}

	bc.mu.RUnlock()
	for _, c := range peers {
		if c.Down() {
			addrs = append(addrs, c.addr)
		}
	}

	return
}

// Close the endpoint and all push streams, reads will return io.EOF
func (bc *HTTP) Close() (err error) {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}

	bc.closed = true
	close(bc.closing)
	peers := make([]*pushClient, 0, len(bc.peers))
	for _, c := range bc.peers {
		peers = append(peers, c)
	}

	bc.mu.Unlock()
	for _, c := range peers {
		c.Close()
	}

	err = bc.srv.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close server")
	}

	bc.pushes.Wait()
	return nil
}

// pushClient keeps one push stream open to a peer. When the stream ends the
// peer is down until a new stream carried a heartbeat and what it missed.
type pushClient struct {
	addr    string
	loc     string
	to      time.Duration
	logs    logrus.FieldLogger
	tr      *http.Transport
	c       *http.Client
	closing <-chan struct{}

	mu        sync.Mutex
	pw        *io.PipeWriter
	enc       *gob.Encoder
	down      bool
	redialing bool
	closed    bool
	backlog   []*agreement.Msg
}

func newPushClient(logs logrus.FieldLogger, addr string, ca *x509.Certificate, to time.Duration, closing <-chan struct{}) (c *pushClient) {
	roots := x509.NewCertPool() //start with empty pool
	roots.AddCert(ca)

	c = &pushClient{
		addr:    addr,
		loc:     fmt.Sprintf("https://%s/push", addr),
		to:      to,
		logs:    logs.WithField("peer", addr),
		closing: closing,
	}

	c.tr = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   to,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: to,
		TLSClientConfig: &tls.Config{
			RootCAs:    roots,
			ServerName: pinnedName,
		},
	}

	http2.ConfigureTransport(c.tr)
	c.c = &http.Client{Transport: c.tr}

	c.mu.Lock()
	c.open()
	c.mu.Unlock()
	return
}

// open starts a new push stream, replacing the current one. The caller holds
// the lock.
func (c *pushClient) open() {
	if c.pw != nil {
		c.pw.Close()
	}

	pr, pw := io.Pipe()
	req, _ := http.NewRequest(http.MethodPut, c.loc, pr)

	// if the request ever ends the stream is no longer usable and the peer is
	// down until a new stream is opened
	go func() {
		resp, err := c.c.Do(req)
		if err != nil {
			c.logs.WithError(err).Debug("push request failed")
		} else {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				c.logs.WithField("status", resp.Status).Debug("peer returned push response with unexpected status")
			}
		}

		pr.CloseWithError(ErrClientClosed)
		c.lost(pw)
	}()

	c.pw = pw
	c.enc = gob.NewEncoder(pw)
}

// lost marks the peer as down if 'pw' is still its current stream
func (c *pushClient) lost(pw *io.PipeWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pw != pw || c.closed {
		return
	}

	c.fail()
}

// fail marks the peer as down and starts re-opening the stream, the caller
// holds the lock
func (c *pushClient) fail() {
	c.down = true
	if c.redialing || c.closed {
		return
	}

	c.redialing = true
	go c.redial()
}

func (c *pushClient) redial() {
	for {
		select {
		case <-c.closing:
			return
		case <-time.After(c.to):
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}

		c.open()
		err := c.push(&agreement.Msg{}) //heartbeat, receivers skip it
		for err == nil && len(c.backlog) > 0 {
			err = c.push(c.backlog[0])
			if err == nil {
				c.backlog = c.backlog[1:]
			}
		}

		if err != nil {
			c.mu.Unlock()
			c.logs.WithError(err).Debug("failed to re-open push stream")
			continue
		}

		c.down, c.redialing = false, false
		c.mu.Unlock()
		c.logs.Info("reconnected to peer")
		return
	}
}

// push encodes the message onto the current stream, giving up after the
// timeout. The caller holds the lock.
func (c *pushClient) push(msg *agreement.Msg) (err error) {
	pw := c.pw
	t := time.AfterFunc(c.to, func() { pw.CloseWithError(ErrPushTimeout) })
	defer t.Stop()

	err = c.enc.Encode(msg)
	if err == ErrClientClosed || err == io.ErrClosedPipe || err == ErrPushTimeout {
		pw.CloseWithError(ErrClientClosed)
		return err
	} else if err != nil {
		pw.CloseWithError(ErrClientClosed)
		return errors.Wrap(err, "failed to encode and push message")
	}

	return nil
}

// Down reports whether the peer is unreachable
func (c *pushClient) Down() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down
}

// Write a message to the peer. If the peer is down, or the push fails, it is
// kept to be sent when the peer is reachable again.
func (c *pushClient) Write(msg *agreement.Msg) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	keep := *msg
	if c.down {
		c.backlog = append(c.backlog, &keep)
		return ErrPeerUnreachable
	}

	err = c.push(msg)
	if err != nil {
		c.backlog = append(c.backlog, &keep)
		c.fail()
		return err
	}

	return nil
}

// Close will shutdown the push stream
func (c *pushClient) Close() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	err = c.pw.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close push writer")
	}

	c.tr.CloseIdleConnections()
	return nil
}
