package broadcast

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/advanderveer/at2/ledger/agreement"
)

//Mem is an in-memory broadcast implementation. Every write is delivered to
//the endpoint itself and to all peers it was connected to with To.
type Mem struct {
	bufc      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	peers     map[*Mem]time.Duration
	mu        sync.RWMutex

	minl time.Duration
	maxl time.Duration
}

//NewMem creates an in-memory broadcast endpoint
func NewMem(bufn int) (m *Mem) {
	m = &Mem{
		peers:   make(map[*Mem]time.Duration),
		bufc:    make(chan []byte, bufn),
		closing: make(chan struct{}),
	}

	m.peers[m] = 0 //loopback
	return
}

//WithLatency will introduce a random latency to each peers that is added
//after this method is called
func (bc *Mem) WithLatency(min, max time.Duration) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.minl = min
	bc.maxl = max
}

//To will add other broadcast endpoints this endpoint will write messages to
func (bc *Mem) To(peers ...*Mem) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, p := range peers {
		l := time.Duration(0)
		if bc.maxl > bc.minl {
			l = bc.minl + time.Duration(rand.Int63n(int64(bc.maxl)-int64(bc.minl)))
		}

		bc.peers[p] = l
	}
}

//Read a message from the broadcast
func (bc *Mem) Read(msg *agreement.Msg) (err error) {
	select {
	case <-bc.closing:
		return io.EOF
	case d := <-bc.bufc:
		return gob.NewDecoder(bytes.NewReader(d)).Decode(msg)
	}
}

//Write a message to the broadcast
func (bc *Mem) Write(msg *agreement.Msg) (err error) {
	select {
	case <-bc.closing:
		return ErrClosed
	default:
	}

	buf := bytes.NewBuffer(nil)
	enc := gob.NewEncoder(buf)
	err = enc.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast message: %v", err)
	}

	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for peer, latency := range bc.peers {
		if latency == 0 {
			peer.deliver(buf.Bytes())
			continue
		}

		go func(peer *Mem, latency time.Duration) {
			time.Sleep(latency)
			peer.deliver(buf.Bytes())
		}(peer, latency)
	}

	return
}

// deliver blocks while the peer's buffer is full, unless it closes
func (bc *Mem) deliver(d []byte) {
	select {
	case bc.bufc <- d:
	case <-bc.closing:
	}
}

//Close this broadcast endpoint, reads will return io.EOF
func (bc *Mem) Close() (err error) {
	bc.closeOnce.Do(func() { close(bc.closing) })
	return
}
