package broadcast

import (
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/advanderveer/at2/ledger/agreement"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//TCP broadcast endpoint, messages are gob encoded streams over plain tcp
//connections. Every write is delivered locally and to all dialed peers. Peers
//that drop their connection are redialed until the endpoint closes, writes
//are refused in the meantime.
type TCP struct {
	ln      net.Listener
	logs    logrus.FieldLogger
	peers   map[string]*tcppeer
	conns   map[net.Conn]struct{}
	maxConn int
	mu      sync.RWMutex
	cwg     sync.WaitGroup
	closed  bool
	closing chan struct{}
	in      chan *agreement.Msg
}

type tcppeer struct {
	addr net.Addr
	to   time.Duration

	mu        sync.Mutex
	conn      net.Conn
	enc       *gob.Encoder
	down      bool
	redialing bool
	backlog   []*agreement.Msg
}

// interval between redials of a peer that isn't reachable
func (p *tcppeer) interval() time.Duration {
	if p.to <= 0 {
		return time.Second
	}

	return p.to
}

// encode a message with the write deadline, the caller holds the lock
func (p *tcppeer) encode(msg *agreement.Msg) (err error) {
	if p.to > 0 {
		err = p.conn.SetWriteDeadline(time.Now().Add(p.to))
		if err != nil {
			return errors.Wrap(err, "failed to set write deadline")
		}
	}

	return p.enc.Encode(msg)
}

//NewTCP will start a new tcp endpoint, listening for incoming connections
func NewTCP(logs logrus.FieldLogger, bind string, maxConn, maxBuf int) (bc *TCP, err error) {
	bc = &TCP{
		logs:    logs.WithField("component", "broadcast/tcp"),
		peers:   make(map[string]*tcppeer),
		conns:   make(map[net.Conn]struct{}),
		maxConn: maxConn,
		closing: make(chan struct{}),
		in:      make(chan *agreement.Msg, maxBuf),
	}

	bc.ln, err = net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %v", err)
	}

	go bc.accept()
	return
}

func isClosedConnErr(err error) bool {
	//still the recommended way of handling: @see https://github.com/golang/go/issues/4373
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (bc *TCP) accept() {
	for {
		conn, err := bc.ln.Accept()
		if err != nil {
			if !isClosedConnErr(err) {
				bc.logs.WithError(err).Error("failed to accept broadcast tcp connection")
			}

			return
		}

		if !bc.track(conn) {
			conn.Close()
			continue
		}

		go bc.handleConn(conn, nil)
	}
}

//track registers an incoming connection, it returns false if the endpoint is
//closed or handles the max amount of connections already
func (bc *TCP) track(conn net.Conn) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.closed {
		return false
	}

	if len(bc.conns) >= bc.maxConn {
		bc.logs.WithField("peer", conn.RemoteAddr()).Debug("max connections reached, refusing")
		return false
	}

	bc.conns[conn] = struct{}{}
	bc.cwg.Add(1)
	return true
}

// handleConn decodes messages from a connection, 'p' is set when it is the
// outgoing connection to that peer
func (bc *TCP) handleConn(conn net.Conn, p *tcppeer) {
	defer bc.cwg.Done()
	if p == nil {
		defer func() {
			bc.mu.Lock()
			delete(bc.conns, conn)
			bc.mu.Unlock()
			conn.Close()
		}()
	} else {
		defer bc.lost(p, conn)
	}

	dec := gob.NewDecoder(conn)
	for {
		msg := &agreement.Msg{}
		err := dec.Decode(msg)
		if err != nil {
			if err != io.EOF && !isClosedConnErr(err) {
				bc.logs.WithError(err).WithField("peer", conn.RemoteAddr()).Error("failed to decode message")
			}

			return
		}

		select {
		case bc.in <- msg:
		case <-bc.closing:
			return
		}
	}
}

//To will configure this broadcast endpoint to send any writes to these peers.
//Peers that can't be dialed right away are redialed in the background.
func (bc *TCP) To(to time.Duration, peers ...net.Addr) (err error) {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return ErrClosed
	}

	var added []*tcppeer
	for _, addr := range peers {
		if _, ok := bc.peers[addr.String()]; ok {
			continue //peer already exists
		}

		p := &tcppeer{addr: addr, to: to, down: true}
		bc.peers[addr.String()] = p
		added = append(added, p)
	}

	bc.mu.Unlock()
	for _, p := range added {
		err = bc.connect(p)
		if err == ErrClosed {
			return err
		} else if err != nil {
			bc.logs.WithError(err).WithField("peer", p.addr).Info("peer not reachable yet, redialing")
			p.mu.Lock()
			bc.redial(p)
			p.mu.Unlock()
		}
	}

	return nil
}

// connect dials the peer and sends it what it missed, on success the peer is
// up again
func (bc *TCP) connect(p *tcppeer) (err error) {
	conn, err := net.DialTimeout(p.addr.Network(), p.addr.String(), p.to)
	if err != nil {
		return errors.Wrapf(err, "failed to dial peer '%s'", p.addr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-bc.closing:
		conn.Close()
		return ErrClosed
	default:
	}

	p.conn, p.enc = conn, gob.NewEncoder(conn)
	for len(p.backlog) > 0 {
		err = p.encode(p.backlog[0])
		if err != nil {
			conn.Close()
			p.conn, p.enc = nil, nil
			return errors.Wrapf(err, "failed to resend to peer '%s'", p.addr)
		}

		p.backlog = p.backlog[1:]
	}

	p.down, p.redialing = false, false

	//peers may write back over the connection we opened
	bc.cwg.Add(1)
	go bc.handleConn(conn, p)
	return nil
}

// lost marks the peer as down if 'conn' is still its connection
func (bc *TCP) lost(p *tcppeer, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return
	}

	bc.down(p)
}

// down closes the peer's connection and starts redialing it, the caller holds
// the peer's lock
func (bc *TCP) down(p *tcppeer) {
	if p.conn != nil {
		p.conn.Close()
		p.conn, p.enc = nil, nil
	}

	p.down = true
	bc.redial(p)
}

// redial starts reconnecting to the peer unless it already is, the caller
// holds the peer's lock
func (bc *TCP) redial(p *tcppeer) {
	select {
	case <-bc.closing:
		return
	default:
	}

	if p.redialing {
		return
	}

	p.redialing = true
	go func() {
		for {
			select {
			case <-bc.closing:
				return
			case <-time.After(p.interval()):
			}

			err := bc.connect(p)
			if err == ErrClosed {
				return
			} else if err != nil {
				bc.logs.WithError(err).WithField("peer", p.addr).Debug("failed to redial peer")
				continue
			}

			bc.logs.WithField("peer", p.addr).Info("reconnected to peer")
			return
		}
	}()
}

// Unreachable returns the addresses of peers that are currently down
func (bc *TCP) Unreachable() (addrs []string) {
	for _, p := range bc.peerList() {
		p.mu.Lock()
		if p.down {
			addrs = append(addrs, p.addr.String())
		}

		p.mu.Unlock()
	}

	return
}

func (bc *TCP) peerList() (peers []*tcppeer) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for _, p := range bc.peers {
		peers = append(peers, p)
	}

	return
}

// Addr returns the address this tcp endpoint is listening on
func (bc *TCP) Addr() (addr net.Addr) {
	return bc.ln.Addr()
}

//Read a message from the broadcast
func (bc *TCP) Read(msg *agreement.Msg) (err error) {
	select {
	case <-bc.closing:
		return io.EOF
	case rmsg := <-bc.in:
		*msg = *rmsg
		return nil
	}
}

//Write a message to the broadcast. While any peer is down the write is
//refused with ErrPeerUnreachable. A peer that fails during the write keeps the
//message until it is redialed, the write is delivered locally but still
//reports the failure.
func (bc *TCP) Write(msg *agreement.Msg) (err error) {
	bc.mu.RLock()
	closed := bc.closed
	bc.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	peers := bc.peerList()
	if down := bc.Unreachable(); len(down) > 0 {
		return errors.Wrapf(ErrPeerUnreachable, "%d peer(s) down", len(down))
	}

	var failed error
	for _, p := range peers {
		err = bc.writePeer(p, msg)
		if err != nil {
			bc.logs.WithError(err).WithField("peer", p.addr).Error("failed to write to peer, redialing")
			failed = errors.Wrapf(ErrPeerUnreachable, "failed to write to '%s'", p.addr)
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

func (bc *TCP) writePeer(p *tcppeer, msg *agreement.Msg) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keep := *msg
	if p.down {
		p.backlog = append(p.backlog, &keep)
		return ErrPeerUnreachable
	}

	err = p.encode(msg)
	if err != nil {
		p.backlog = append(p.backlog, &keep)
		bc.down(p)
		return err
	}

	return nil
}

//Close the tcp broadcast, reads will return io.EOF
func (bc *TCP) Close() (err error) {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}

	bc.closed = true
	close(bc.closing)

	err = bc.ln.Close()
	if err != nil {
		bc.mu.Unlock()
		return fmt.Errorf("failed to close tcp listener: %v", err)
	}

	//shutdown open incoming conns
	for c := range bc.conns {
		c.Close()
	}

	peers := make([]*tcppeer, 0, len(bc.peers))
	for _, p := range bc.peers {
		peers = append(peers, p)
	}

	bc.mu.Unlock()

	//shutdown outgoing connections
	for _, p := range peers {
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}

		p.mu.Unlock()
	}

	bc.cwg.Wait() //wait for conn handlers to end
	return
}
