package rpc

//SendAssetRequest submits a signed claim. Byte fields are base64 encoded in
//JSON.
type SendAssetRequest struct {
	Sender    []byte `json:"sender"`
	Sequence  uint32 `json:"sequence"`
	Recipient []byte `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Signature []byte `json:"signature"`
}

//SendAssetReply is empty, it never says whether the claim was accepted
type SendAssetReply struct{}

//GetBalanceRequest asks for an account's balance
type GetBalanceRequest struct {
	Sender []byte `json:"sender"`
}

//GetBalanceReply holds the balance
type GetBalanceReply struct {
	Amount uint64 `json:"amount"`
}

//GetLastSequenceRequest asks for an account's last applied sequence
type GetLastSequenceRequest struct {
	Sender []byte `json:"sender"`
}

//GetLastSequenceReply holds the last applied sequence
type GetLastSequenceReply struct {
	Sequence uint32 `json:"sequence"`
}

//GetLatestTransactionsRequest asks for the recently processed transactions
type GetLatestTransactionsRequest struct{}

//GetLatestTransactionsReply lists transactions oldest first
type GetLatestTransactionsReply struct {
	Transactions []FullTransaction `json:"transactions"`
}

//FullTransaction is a processed transaction, its timestamp is RFC3339
//formatted
type FullTransaction struct {
	Timestamp string `json:"timestamp"`
	Sender    []byte `json:"sender"`
	Recipient []byte `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

type errorReply struct {
	Error string `json:"error"`
}
