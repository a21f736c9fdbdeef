package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/advanderveer/at2/ledger"
	"github.com/pkg/errors"
)

// Client talks to the rpc server of a node
type Client struct {
	base string
	hc   *http.Client
}

// NewClient creates a client for the node at 'base', e.g: http://127.0.0.1:8080
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{base: strings.TrimSuffix(base, "/"), hc: hc}
}

func (c *Client) call(ctx context.Context, method string, in, out interface{}) (err error) {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequest(http.MethodPost, c.base+Service+"/"+method, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "failed to call %s", method)
	}

	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		var rep errorReply
		json.NewDecoder(resp.Body).Decode(&rep)
		return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode, rep.Error)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s reply", method)
	}

	return nil
}

// SendAsset signs a transfer with the identity and submits it. A nil error
// only means the node accepted the claim for dissemination.
func (c *Client) SendAsset(ctx context.Context, idn *ledger.Identity, seq uint32, to ledger.PK, amount uint64) (err error) {
	claim := idn.Transfer(seq, to, amount)
	return c.call(ctx, "SendAsset", SendAssetRequest{
		Sender:    claim.Sender.Bytes(),
		Sequence:  claim.Sequence,
		Recipient: claim.Recipient.Bytes(),
		Amount:    claim.Amount,
		Signature: claim.Signature[:],
	}, &SendAssetReply{})
}

// GetBalance returns the balance of the account
func (c *Client) GetBalance(ctx context.Context, id ledger.PK) (amount uint64, err error) {
	var rep GetBalanceReply
	err = c.call(ctx, "GetBalance", GetBalanceRequest{Sender: id.Bytes()}, &rep)
	return rep.Amount, err
}

// GetLastSequence returns the last sequence that applied for the account
func (c *Client) GetLastSequence(ctx context.Context, id ledger.PK) (seq uint32, err error) {
	var rep GetLastSequenceReply
	err = c.call(ctx, "GetLastSequence", GetLastSequenceRequest{Sender: id.Bytes()}, &rep)
	return rep.Sequence, err
}

// GetLatestTransactions returns the recently processed transactions, oldest
// first
func (c *Client) GetLatestTransactions(ctx context.Context) (txs []ledger.ProcessedTx, err error) {
	var rep GetLatestTransactionsReply
	err = c.call(ctx, "GetLatestTransactions", GetLatestTransactionsRequest{}, &rep)
	if err != nil {
		return nil, err
	}

	for _, ftx := range rep.Transactions {
		var tx ledger.ProcessedTx
		tx.Timestamp, err = time.Parse(time.RFC3339, ftx.Timestamp)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse transaction timestamp")
		}

		if tx.Sender, err = ledger.PKFromBytes(ftx.Sender); err != nil {
			return nil, err
		}

		if tx.Recipient, err = ledger.PKFromBytes(ftx.Recipient); err != nil {
			return nil, err
		}

		tx.Amount = ftx.Amount
		txs = append(txs, tx)
	}

	return
}
