package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
	"github.com/vocdoni/wispy/zk"
)

func (a *API) keyServer(w http.ResponseWriter, r *http.Request) (zk.KeyServer, types.Kind, bool) {
	kind, err := types.ParseKind(chi.URLParam(r, KindURLParam))
	if err != nil {
		ErrMalformedParam.WithErr(err).Write(w)
		return nil, 0, false
	}
	ks, ok := a.relay.Backend().(zk.KeyServer)
	if !ok {
		ErrArtifactsUnavailable.Withf("backend %s", a.relay.Backend().Name()).Write(w)
		return nil, 0, false
	}
	return ks, kind, true
}

// circuit returns the key manifest of the circuit of a kind
// GET /circuits/{kind}
func (a *API) circuit(w http.ResponseWriter, r *http.Request) {
	ks, kind, ok := a.keyServer(w, r)
	if !ok {
		return
	}
	m, err := ks.Manifest(r.Context(), kind)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, m)
}

// circuitArtifact serves a proving or verifying key
// GET /circuits/{kind}/{artifact}
func (a *API) circuitArtifact(w http.ResponseWriter, r *http.Request) {
	ks, kind, ok := a.keyServer(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, ArtifactURLParam)
	if name != zk.ArtifactProvingKey && name != zk.ArtifactVerifyingKey {
		ErrResourceNotFound.Withf("unknown artifact %q", name).Write(w)
		return
	}
	data, err := ks.Artifact(r.Context(), kind, name)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Warnw("failed to write artifact", "kind", kind.String(), "artifact", name, "error", err)
	}
}
