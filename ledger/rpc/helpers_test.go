package rpc_test

import (
	"encoding/base64"

	"github.com/advanderveer/at2/ledger"
)

func b64(pk ledger.PK) string {
	return base64.StdEncoding.EncodeToString(pk[:])
}
