package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"poll not found","code":40016}
func (e Error) MarshalJSON() ([]byte, error) {
	// This anon struct is needed to actually include the error string,
	// since it wouldn't be marshaled otherwise. (json.Marshal doesn't call Err.Error())
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes a JSON msg using APIerror.Message and APIerror.Code
// and passes that to ctx.Send()
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	// set the content type to JSON
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// Withf returns a copy of APIerror with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of APIerror with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of APIerror with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// sentinels pairs the catalogue entries with the errors of package types
// they stand for, in both directions.
var sentinels = []struct {
	api Error
	err error
}{
	{ErrInvalidInteraction, types.ErrValidation},
	{ErrStaleWitness, types.ErrStaleWitness},
	{ErrProofRejected, types.ErrProofRejected},
	{ErrDuplicateNullifier, types.ErrDuplicateNullifier},
	{ErrPolicyViolation, types.ErrPolicy},
	{ErrResourceNotFound, types.ErrNotFound},
	{ErrTransportFailed, types.ErrTransport},
}

// errorFor returns the catalogue entry of an error returned by the relay.
func errorFor(err error) Error {
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.api.WithErr(err)
		}
	}
	return ErrGenericInternalServerError.WithErr(err)
}

// Sentinel returns the error of package types an API error code stands for,
// or nil if the code has no counterpart.
func Sentinel(code int) error {
	switch code {
	case ErrMemberNotFound.Code, ErrPollNotFound.Code, ErrArtifactsUnavailable.Code:
		return types.ErrNotFound
	case ErrMalformedBody.Code, ErrMalformedParam.Code:
		return types.ErrValidation
	}
	for _, s := range sentinels {
		if s.api.Code == code {
			return s.err
		}
	}
	return nil
}
