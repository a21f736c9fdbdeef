package broadcast

import (
	"io"

	"github.com/advanderveer/at2/ledger"
	"github.com/advanderveer/at2/ledger/agreement"
)

//Injector writes hand-crafted claims to the broadcast, mainly useful for
//black box testing replicas with duplicated, reordered or tampered deliveries
type Injector struct {
	coll chan []*agreement.Msg
	idn  *ledger.Identity
	*Mem
}

//NewInjector creates an injector with an identity using the random bytes
func NewInjector(rndid []byte, bufn int) (inj *Injector) {
	inj = &Injector{
		Mem:  NewMem(bufn),
		idn:  ledger.NewIdentity(rndid),
		coll: make(chan []*agreement.Msg, 1),
	}

	go func() {
		var msgs []*agreement.Msg

		for {
			msg := &agreement.Msg{}
			err := inj.Read(msg)
			if err == io.EOF {
				inj.coll <- msgs
				return
			} else if err != nil {
				panic("injector failed to collect: " + err.Error())
			}

			msgs = append(msgs, msg)
		}
	}()

	return
}

//Identity returns the identity the injector signs its transfers with
func (inj *Injector) Identity() *ledger.Identity { return inj.idn }

//Collect closes the injector's message reader and returns all messages read
func (inj *Injector) Collect() []*agreement.Msg {
	err := inj.Close()
	if err != nil {
		panic("failed to close message reader: " + err.Error())
	}

	return <-inj.coll
}

//Inject writes the claim as-is, without signing it
func (inj *Injector) Inject(c *ledger.Claim) *ledger.Claim {
	err := inj.Write(&agreement.Msg{Claim: c})
	if err != nil {
		panic("failed to inject claim: " + err.Error())
	}

	return c
}

//Transfer signs a transfer from the injector's identity and broadcasts it
func (inj *Injector) Transfer(seq uint32, to ledger.PK, amount uint64) *ledger.Claim {
	return inj.Inject(inj.idn.Transfer(seq, to, amount))
}
