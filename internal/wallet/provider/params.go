package provider

import (
	"encoding/json"

	"github/chapool/smart-wallet/internal/wallet"
	"github/chapool/smart-wallet/internal/wallet/rpcerrors"
)

// decodeParam decodes the positional parameter at index i into out via a JSON
// round trip, which applies the same hex validation as the wire decoding.
func decodeParam(params []any, i int, out any) error {
	if i >= len(params) {
		return rpcerrors.Newf(rpcerrors.CodeInvalidParams, "missing parameter at position %d", i)
	}

	raw, err := json.Marshal(params[i])
	if err != nil {
		return rpcerrors.Newf(rpcerrors.CodeInvalidParams, "invalid parameter at position %d", i)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return rpcerrors.Newf(rpcerrors.CodeInvalidParams, "invalid parameter at position %d: %s", i, err)
	}

	return nil
}

func stringParam(params []any, i int) (string, error) {
	if i >= len(params) {
		return "", rpcerrors.Newf(rpcerrors.CodeInvalidParams, "missing parameter at position %d", i)
	}

	s, ok := params[i].(string)
	if !ok {
		return "", rpcerrors.Newf(rpcerrors.CodeInvalidParams, "parameter at position %d must be a string", i)
	}

	return s, nil
}

func transactionRequestParam(params []any) (*wallet.TransactionRequest, error) {
	var req wallet.TransactionRequest
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}

	return &req, nil
}
