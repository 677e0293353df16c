package jsonrpc

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-amm-go/amm"
	"github.com/ethereum/go-ethereum/rpc"
)

// baseErrorCode is the JSON-RPC code of a pool error with registered code 0.
// Registered code n is sent as baseErrorCode - n.
const baseErrorCode = -32000

// Error is a pool error as sent over JSON-RPC.
type Error struct {
	code uint32
	err  error
}

func (e *Error) Error() string  { return e.err.Error() }
func (e *Error) ErrorCode() int { return baseErrorCode - int(e.code) }
func (e *Error) Unwrap() error  { return e.err }

// ErrorData carries the codespace and registered code.
func (e *Error) ErrorData() interface{} {
	return map[string]any{"codespace": amm.Codespace, "code": e.code}
}

// ToRPCError attaches a JSON-RPC error code to registered pool errors. Other
// errors are returned unchanged and reach the caller with the server's
// default code.
func ToRPCError(err error) error {
	if err == nil {
		return nil
	}
	code := amm.Code(err)
	if code == 0 {
		return err
	}
	return &Error{code: code, err: err}
}

// FromRPCError maps a JSON-RPC error returned by a server back onto the
// registered pool error, so callers can match it with errors.Is.
func FromRPCError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	code := baseErrorCode - rpcErr.ErrorCode()
	if code <= 0 {
		return err
	}
	registered, ok := amm.ErrorByCode(uint32(code))
	if !ok {
		return err
	}
	return errorsmod.Wrap(registered, rpcErr.Error())
}
