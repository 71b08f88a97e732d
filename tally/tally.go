// Package tally keeps the group state built from accepted interactions:
// polls and their votes, ban polls and their enforcement policy, reputation
// signals waiting to be settled, callback tickets of relayed messages and
// claimed badges. It only ever sees interactions the relay already
// accepted, so every record it counts is backed by a spent nullifier.
package tally

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/storage"
	"github.com/vocdoni/wispy/types"
)

// Engine is the tally engine.
type Engine struct {
	stg    *storage.Storage
	policy BanPolicy
	badges map[string]*types.BadgeDefinition
}

// New returns a tally engine over the relay storage. A nil policy means
// Majority.
func New(stg *storage.Storage, policy BanPolicy, badges []*types.BadgeDefinition) *Engine {
	if policy == nil {
		policy = Majority{}
	}
	e := &Engine{stg: stg, policy: policy, badges: make(map[string]*types.BadgeDefinition)}
	for _, b := range badges {
		e.badges[b.ID] = b
	}
	return e
}

// Policy returns the ban policy.
func (e *Engine) Policy() BanPolicy {
	return e.policy
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

// OpenPoll registers a poll anchored to a relayed message. Regular polls
// default to types.DefaultPollChoices; ban polls always offer ban and keep.
func (e *Engine) OpenPoll(p *types.Poll) error {
	if p.ID == "" {
		return fmt.Errorf("%w: poll without id", types.ErrValidation)
	}
	if p.Type == types.PollBan {
		p.Choices = []string{types.ChoiceBan, types.ChoiceKeep}
	} else if len(p.Choices) == 0 {
		p.Choices = append([]string{}, types.DefaultPollChoices...)
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	if err := e.stg.SetPoll(p); err != nil {
		return err
	}
	log.Infow("poll opened", "id", p.ID, "type", string(p.Type), "choices", p.Choices)
	return nil
}

// Poll returns a poll.
func (e *Engine) Poll(id string) (*types.Poll, error) {
	p, err := e.stg.Poll(id)
	if err != nil {
		return nil, notFound(err, "poll %s", id)
	}
	return p, nil
}

// CheckVote verifies that a vote for choice can be cast on the poll. It does
// not record anything.
func (e *Engine) CheckVote(pollID, choice string) error {
	p, err := e.Poll(pollID)
	if err != nil {
		return err
	}
	if p.Enforced {
		return fmt.Errorf("%w: poll %s is closed", types.ErrPolicy, pollID)
	}
	if !p.HasChoice(choice) {
		return fmt.Errorf("%w: %q is not a choice of poll %s", types.ErrPolicy, choice, pollID)
	}
	return nil
}

// RecordVote records an accepted vote.
func (e *Engine) RecordVote(pollID string, nullifier *types.BigInt, choice string) error {
	return e.stg.AddVote(&storage.VoteRecord{PollID: pollID, Nullifier: nullifier, Choice: choice})
}

// CountVotes tallies the accepted votes of a poll. Every choice of the poll
// is present in the counts, even with zero votes.
func (e *Engine) CountVotes(pollID string) (*types.VoteCount, error) {
	p, err := e.Poll(pollID)
	if err != nil {
		return nil, err
	}
	votes, err := e.stg.Votes(pollID)
	if err != nil {
		return nil, err
	}
	count := &types.VoteCount{PollID: pollID, Counts: make(map[string]uint64, len(p.Choices))}
	for _, c := range p.Choices {
		count.Counts[c] = 0
	}
	for _, v := range votes {
		if !p.HasChoice(v.Choice) {
			log.Warnw("ignoring vote for unknown choice", "poll", pollID, "choice", v.Choice)
			continue
		}
		count.Counts[v.Choice]++
		count.Total++
	}
	count.Summary = Summary(p, count)
	return count, nil
}

// CheckBan evaluates the ban policy over a ban poll. It returns the poll if
// the ban can be enforced, types.ErrPolicy otherwise.
func (e *Engine) CheckBan(pollID string) (*types.Poll, *types.VoteCount, error) {
	p, err := e.Poll(pollID)
	if err != nil {
		return nil, nil, err
	}
	if p.Type != types.PollBan {
		return nil, nil, fmt.Errorf("%w: poll %s is not a ban poll", types.ErrPolicy, pollID)
	}
	if p.Enforced {
		return nil, nil, fmt.Errorf("%w: ban poll %s was already enforced", types.ErrPolicy, pollID)
	}
	count, err := e.CountVotes(pollID)
	if err != nil {
		return nil, nil, err
	}
	if !e.policy.Enforce(count) {
		return nil, nil, fmt.Errorf("%w: ban poll %s does not meet the %s policy (ban %d, keep %d)",
			types.ErrPolicy, pollID, e.policy, count.Counts[types.ChoiceBan], count.Counts[types.ChoiceKeep])
	}
	return p, count, nil
}

// MarkEnforced closes a ban poll. It returns false if it was already
// enforced.
func (e *Engine) MarkEnforced(pollID string) (bool, error) {
	ok, err := e.stg.MarkPollEnforced(pollID)
	if err != nil {
		return false, notFound(err, "poll %s", pollID)
	}
	return ok, nil
}

// TicketOf returns the callback ticket of a relayed message, the address
// reputation and ban effects on that message are sent to.
func (e *Engine) TicketOf(messageID string) (*types.BigInt, error) {
	m, err := e.stg.Message(messageID)
	if err != nil {
		return nil, notFound(err, "message %s", messageID)
	}
	if m.Ticket == nil || m.Ticket.IsZero() {
		return nil, fmt.Errorf("%w: message %s has no callback ticket", types.ErrPolicy, messageID)
	}
	return m.Ticket, nil
}

// RecordSignal records an accepted reputation signal on a message.
func (e *Engine) RecordSignal(target string, nullifier *types.BigInt, delta int64) error {
	if delta != 1 && delta != -1 {
		return fmt.Errorf("%w: reputation delta must be +1 or -1", types.ErrValidation)
	}
	return e.stg.AddRepSignal(&storage.RepSignal{Target: target, Nullifier: nullifier, Delta: delta})
}

// Unsettled returns the sum of the unsettled signals on a message.
func (e *Engine) Unsettled(target string) (int64, error) {
	signals, err := e.stg.RepSignals(target)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, s := range signals {
		if !s.Settled {
			sum += s.Delta
		}
	}
	return sum, nil
}

// Settle marks the unsettled signals on a message as settled and returns
// their sum and count. The caller turns a non zero sum into a callback
// effect.
func (e *Engine) Settle(target string) (int64, int, error) {
	return e.stg.SettleRepSignals(target)
}

// UnsettledTargets returns the messages with signals waiting to be settled.
func (e *Engine) UnsettledTargets() ([]string, error) {
	return e.stg.UnsettledTargets()
}

// Badge returns the definition of a badge.
func (e *Engine) Badge(id string) (*types.BadgeDefinition, error) {
	b, ok := e.badges[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown badge %q", types.ErrPolicy, id)
	}
	return b, nil
}

// Badges returns every badge definition.
func (e *Engine) Badges() []*types.BadgeDefinition {
	badges := make([]*types.BadgeDefinition, 0, len(e.badges))
	for _, b := range e.badges {
		badges = append(badges, b)
	}
	sort.Slice(badges, func(i, j int) bool { return badges[i].ID < badges[j].ID })
	return badges
}

// RecordBadge records a claimed badge bound to a pseudonym.
func (e *Engine) RecordBadge(badgeID string, pseudonym *types.BigInt) error {
	return e.stg.AddBadge(&types.Badge{BadgeID: badgeID, PseudonymTag: pseudonym})
}

// Claims returns the pseudonyms holding a badge.
func (e *Engine) Claims(badgeID string) ([]*types.Badge, error) {
	if _, err := e.Badge(badgeID); err != nil {
		return nil, err
	}
	return e.stg.Badges(badgeID)
}
