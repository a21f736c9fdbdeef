package node

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TransportTCP    = "tcp"
	TransportHTTP2  = "h2"
	TransportMemory = "memory"

	StorageBadger = "badger"
	StorageBolt   = "bolt"
	StorageMemory = "memory"
)

//Entry describes how other nodes reach this node, it is what goes into their
//'nodes' list
type Entry struct {
	Address     string `yaml:"address"`
	Certificate string `yaml:"certificate,omitempty"`
}

//GenesisEntry funds an account when the ledger starts out empty
type GenesisEntry struct {
	Account string `yaml:"account"`
	Balance uint64 `yaml:"balance"`
}

//Conf configures a node. Genesis, history size and the self-transfer policy
//must be the same on every node of a network.
type Conf struct {
	//The address the broadcast endpoint binds on
	Address string `yaml:"address"`

	//The address the rpc server binds on
	RPCAddress string `yaml:"rpc_address"`

	//Transport used to broadcast claims: tcp, h2 or memory
	Transport string `yaml:"transport"`

	//Certificate and Key (pem) the h2 transport serves with
	Certificate string `yaml:"certificate,omitempty"`
	Key         string `yaml:"key,omitempty"`

	//Storage engine for accounts: badger, bolt or memory
	Storage string `yaml:"storage"`

	//DataDir holds the durable storage
	DataDir string `yaml:"data_dir,omitempty"`

	//LogLevel as understood by logrus
	LogLevel string `yaml:"log_level"`

	//HistorySize is the number of processed transactions served to clients
	HistorySize int `yaml:"history_size"`

	//AllowSelfTransfer accepts claims that send to the sender itself
	AllowSelfTransfer bool `yaml:"allow_self_transfer"`

	//Maximum incoming broadcast connections
	MaxIncomingConn int `yaml:"max_incoming_conn"`

	//MaxMessageBuf is the maximum nr of messages the broadcast endpoint buffers
	MaxMessageBuf int `yaml:"max_message_buf"`

	//DialTimeout limits connecting to a single peer
	DialTimeout time.Duration `yaml:"dial_timeout"`

	//Nodes are the other members of the network
	Nodes []Entry `yaml:"nodes"`

	//Genesis funds accounts when the ledger is created
	Genesis []GenesisEntry `yaml:"genesis,omitempty"`
}

//DefaultConf returns sensible defaults
func DefaultConf() *Conf {
	return &Conf{
		Address:         "127.0.0.1:3000",
		RPCAddress:      "127.0.0.1:8080",
		Transport:       TransportTCP,
		Storage:         StorageBadger,
		DataDir:         "at2-data",
		LogLevel:        "info",
		HistorySize:     10,
		MaxIncomingConn: 10,
		MaxMessageBuf:   100,
		DialTimeout:     time.Second,
		Nodes:           []Entry{},
	}
}

//DecodeConf decodes a yaml config on top of the defaults
func DecodeConf(r io.Reader) (c *Conf, err error) {
	c = DefaultConf()
	err = yaml.NewDecoder(r).Decode(c)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	return c, nil
}

//ReadConf decodes a yaml config, applies environment overrides and validates
//the result
func ReadConf(r io.Reader) (c *Conf, err error) {
	c, err = DecodeConf(r)
	if err != nil {
		return nil, err
	}

	err = c.ApplyEnv()
	if err != nil {
		return nil, err
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return c, nil
}

//ApplyEnv overrides fields with AT2_* environment variables
func (c *Conf) ApplyEnv() (err error) {
	for name, field := range map[string]*string{
		"AT2_ADDRESS":     &c.Address,
		"AT2_RPC_ADDRESS": &c.RPCAddress,
		"AT2_TRANSPORT":   &c.Transport,
		"AT2_STORAGE":     &c.Storage,
		"AT2_DATA_DIR":    &c.DataDir,
		"AT2_LOG_LEVEL":   &c.LogLevel,
	} {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv("AT2_HISTORY_SIZE"); ok {
		c.HistorySize, err = strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid AT2_HISTORY_SIZE")
		}
	}

	return nil
}

//Validate checks whether a node can run with this config
func (c *Conf) Validate() (err error) {
	if c.Address == "" || c.RPCAddress == "" {
		return ErrNoAddress
	}

	switch c.Transport {
	case TransportTCP, TransportHTTP2:
		if len(c.Peers()) < 1 {
			return ErrNoNetwork
		}

	case TransportMemory:
	default:
		return ErrUnknownTransport
	}

	switch c.Storage {
	case StorageBadger, StorageBolt:
		if c.DataDir == "" {
			return ErrNoDataDir
		}

	case StorageMemory:
	default:
		return ErrUnknownStorage
	}

	if c.HistorySize < 1 {
		return ErrInvalidHistorySize
	}

	_, err = c.Allocations()
	return err
}

//Peers returns the configured nodes, without this node itself
func (c *Conf) Peers() (peers []Entry) {
	for _, n := range c.Nodes {
		if n.Address == c.Address {
			continue
		}

		peers = append(peers, n)
	}

	return
}

//Entry returns how other nodes should list this node
func (c *Conf) Entry() Entry {
	return Entry{Address: c.Address, Certificate: c.Certificate}
}

//Allocations parses the genesis entries
func (c *Conf) Allocations() (allocs []ledger.Allocation, err error) {
	for _, g := range c.Genesis {
		id, err := ledger.ParsePK(g.Account)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid genesis account '%s'", g.Account)
		}

		allocs = append(allocs, ledger.Allocation{Account: id, Balance: g.Balance})
	}

	return
}

//Params returns the ledger params this config describes
func (c *Conf) Params() *ledger.Params {
	p := ledger.DefaultParams()
	p.HistorySize = c.HistorySize
	p.AllowSelfTransfer = c.AllowSelfTransfer
	return p
}

//Encode the config as yaml
func (c *Conf) Encode(w io.Writer) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err = enc.Encode(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	return enc.Close()
}
