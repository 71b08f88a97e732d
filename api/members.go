package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocdoni/wispy/storage/registry"
	"github.com/vocdoni/wispy/types"
)

// info returns the relay description
// GET /info
func (a *API) info(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, a.relay.Info())
}

// join registers a new member
// POST /members
func (a *API) join(w http.ResponseWriter, r *http.Request) {
	proof := &types.InteractionProof{}
	if err := json.NewDecoder(r.Body).Decode(proof); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ack, err := a.relay.Join(r.Context(), proof)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, ack)
}

// witness returns the membership witness of a commitment against the
// current root
// GET /members/{commitment}
func (a *API) witness(w http.ResponseWriter, r *http.Request) {
	commitment, err := bigIntParam(r, CommitmentURLParam)
	if err != nil {
		ErrMalformedParam.Withf("invalid commitment: %v", err).Write(w)
		return
	}
	witness, err := a.relay.WitnessFor(commitment.MathBigInt())
	if errors.Is(err, registry.ErrLeafNotFound) {
		ErrMemberNotFound.Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, witness)
}

// registry returns the current membership root
// GET /registry
func (a *API) registry(w http.ResponseWriter, r *http.Request) {
	root, version := a.relay.Registry()
	httpWriteJSON(w, &RegistryResponse{
		Root:       types.FromBig(root),
		Version:    version,
		RootWindow: a.relay.Info().RootWindow,
	})
}

// submit verifies and relays an interaction
// POST /interactions
func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	proof := &types.InteractionProof{}
	if err := json.NewDecoder(r.Body).Decode(proof); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	ack, err := a.relay.Submit(r.Context(), proof)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, ack)
}
