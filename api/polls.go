package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/wispy/types"
)

// poll returns a poll
// GET /polls/{pollId}
func (a *API) poll(w http.ResponseWriter, r *http.Request) {
	p, err := a.relay.Poll(chi.URLParam(r, PollURLParam))
	if errors.Is(err, types.ErrNotFound) {
		ErrPollNotFound.WithErr(err).Write(w)
		return
	}
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}

// votes counts the votes of a poll
// GET /polls/{pollId}/votes
func (a *API) votes(w http.ResponseWriter, r *http.Request) {
	count, err := a.relay.CountVotes(chi.URLParam(r, PollURLParam))
	if errors.Is(err, types.ErrNotFound) {
		ErrPollNotFound.WithErr(err).Write(w)
		return
	}
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, count)
}

// settle adds the pending reputation signals on a message to the bulletin
// slot of its ticket
// POST /targets/{target}/settle
func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	slot, err := a.relay.Settle(chi.URLParam(r, TargetURLParam))
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, &SettleResponse{Slot: slot})
}

// bulletin lists the callback bulletin slots
// GET /bulletin?from=0&limit=100
func (a *API) bulletin(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		ErrMalformedParam.Withf("invalid from: %v", err).Write(w)
		return
	}
	limit, err := queryUint(r, "limit", 0)
	if err != nil {
		ErrMalformedParam.Withf("invalid limit: %v", err).Write(w)
		return
	}
	entries, err := a.relay.Bulletin(from, int(limit))
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &BulletinResponse{Entries: entries})
}

// bulletinTicket returns the slot of a ticket
// GET /bulletin/{ticket}
func (a *API) bulletinTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := bigIntParam(r, TicketURLParam)
	if err != nil {
		ErrMalformedParam.Withf("invalid ticket: %v", err).Write(w)
		return
	}
	slot, err := a.relay.SlotFor(ticket)
	if err != nil {
		errorFor(err).Write(w)
		return
	}
	httpWriteJSON(w, slot)
}
