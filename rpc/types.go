package rpc

import (
	"encoding/json"
	"errors"

	"otcdesk/native/otc"
)

// Request is a JSON-RPC 2.0 call envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 reply envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes. The engine error taxonomy maps onto the server error
// range.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603

	codeState         = -32000
	codeAuthorization = -32001
	codeOracle        = -32002
	codeArithmetic    = -32003
)

func errorFromEngine(err error) *Error {
	var pe paramError
	if errors.As(err, &pe) {
		return &Error{Code: codeInvalidParams, Message: err.Error()}
	}
	category := otc.Category(err)
	code := codeInternal
	switch category {
	case otc.CategoryValidation:
		code = codeInvalidParams
	case otc.CategoryState:
		code = codeState
	case otc.CategoryAuthorization:
		code = codeAuthorization
	case otc.CategoryOracle:
		code = codeOracle
	case otc.CategoryArithmetic:
		code = codeArithmetic
	}
	return &Error{Code: code, Message: err.Error(), Data: map[string]string{"category": category}}
}
