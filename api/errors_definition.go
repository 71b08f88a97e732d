//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404, 409 or 422, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status,
// for example the fact that Code 4045 returns HTTP Status 404 Not Found is just a coincidence
//
// The client maps the codes back to the sentinel errors of package types, so
// a code must keep meaning the same sentinel.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam       = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed URL parameter")}
	ErrInvalidInteraction   = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid interaction")}
	ErrStaleWitness         = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("stale witness, scan and retry")}
	ErrProofRejected        = Error{Code: 40012, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("proof rejected")}
	ErrDuplicateNullifier   = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier already spent")}
	ErrPolicyViolation      = Error{Code: 40014, HTTPstatus: http.StatusUnprocessableEntity, Err: fmt.Errorf("relay policy violation")}
	ErrMemberNotFound       = Error{Code: 40015, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("commitment not registered")}
	ErrPollNotFound         = Error{Code: 40016, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("poll not found")}
	ErrArtifactsUnavailable = Error{Code: 40017, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("proof backend does not publish keys")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrTransportFailed            = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("messaging transport failed")}
)
