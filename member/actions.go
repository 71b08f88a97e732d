package member

import (
	"context"
	"fmt"
	"time"

	"github.com/vocdoni/wispy/credential"
	"github.com/vocdoni/wispy/types"
)

func (m *Member) payload(t types.PayloadType) *types.Payload {
	return &types.Payload{Type: t, GroupID: m.info.GroupID}
}

func (m *Member) message(t types.PayloadType, content, replyTo string) *types.Payload {
	p := m.payload(t)
	p.Content = content
	p.ReplyTo = replyTo
	p.Timestamp = time.Now().Unix()
	return p
}

// Post relays a message from the member.
func (m *Member) Post(ctx context.Context, content string) (*types.Ack, error) {
	return m.act(ctx, types.KindPost, m.message(types.PayloadMessage, content, ""), credential.Params{})
}

// PostPseudo relays a message signed by the pseudonym with the given index.
func (m *Member) PostPseudo(ctx context.Context, content string, index uint64) (*types.Ack, error) {
	return m.act(ctx, types.KindPostPseudo, m.message(types.PayloadMessage, content, ""),
		credential.Params{PseudoIndex: index})
}

// Reply relays a reply to a message.
func (m *Member) Reply(ctx context.Context, target, content string) (*types.Ack, error) {
	return m.act(ctx, types.KindPost, m.message(types.PayloadReply, content, target), credential.Params{})
}

// ReplyPseudo relays a reply signed by a pseudonym.
func (m *Member) ReplyPseudo(ctx context.Context, target, content string, index uint64) (*types.Ack, error) {
	return m.act(ctx, types.KindPostPseudo, m.message(types.PayloadReply, content, target),
		credential.Params{PseudoIndex: index})
}

// Reaction reacts to a message with an emoji. A member reacts once per
// emoji and message.
func (m *Member) Reaction(ctx context.Context, target, emoji string) (*types.Ack, error) {
	p := m.payload(types.PayloadReaction)
	p.ReplyTo = target
	p.Emoji = emoji
	return m.act(ctx, types.KindPost, p, credential.Params{})
}

// Poll opens a yes/no poll. The poll id is returned in the
// acknowledgment.
func (m *Member) Poll(ctx context.Context, question string) (*types.Ack, error) {
	return m.act(ctx, types.KindPost, m.message(types.PayloadPoll, question, ""), credential.Params{})
}

// Vote casts the member vote on a poll.
func (m *Member) Vote(ctx context.Context, pollID, choice string) (*types.Ack, error) {
	p := m.payload(types.PayloadVote)
	p.PollID = pollID
	p.Choice = choice
	return m.act(ctx, types.KindVote, p, credential.Params{})
}

// CountVotes returns the current count of a poll.
func (m *Member) CountVotes(ctx context.Context, pollID string) (*types.VoteCount, error) {
	return m.cli.CountVotes(ctx, pollID)
}

// BanPoll opens a poll on banning the author of a message.
func (m *Member) BanPoll(ctx context.Context, reason, target string) (*types.Ack, error) {
	p := m.payload(types.PayloadBanPoll)
	p.Reason = reason
	p.ReplyTo = target
	return m.act(ctx, types.KindBanPoll, p, credential.Params{})
}

// Ban asks the relay to enforce a ban poll.
func (m *Member) Ban(ctx context.Context, pollID string) (*types.Ack, error) {
	p := m.payload(types.PayloadBan)
	p.PollID = pollID
	return m.act(ctx, types.KindBan, p, credential.Params{})
}

// Rep signals +1 or -1 reputation to the author of a message.
func (m *Member) Rep(ctx context.Context, target string, delta int64) (*types.Ack, error) {
	p := m.payload(types.PayloadRep)
	p.ReplyTo = target
	p.Delta = delta
	return m.act(ctx, types.KindRep, p, credential.Params{})
}

// GenPseudo generates the next pseudonym of the credential.
func (m *Member) GenPseudo(ctx context.Context) (*credential.Pseudonym, error) {
	if _, err := m.act(ctx, types.KindGenPseudo, nil, credential.Params{}); err != nil {
		return nil, err
	}
	return m.cred.Pseudonyms[len(m.cred.Pseudonyms)-1], nil
}

// PseudoIndex returns the number of pseudonyms generated so far, which is
// the index the next one will get.
func (m *Member) PseudoIndex() (uint64, error) {
	if m.cred == nil || !m.cred.Joined {
		return 0, ErrNotJoined
	}
	return m.cred.State.Pseudonyms, nil
}

// Authorship proves two pseudonyms belong to the same member.
func (m *Member) Authorship(ctx context.Context, i, j uint64) (*types.Ack, error) {
	return m.act(ctx, types.KindAuthorship, m.payload(types.PayloadAuthorship),
		credential.Params{PseudoIndex: i, PseudoIndex2: j})
}

// Badge claims a badge for the pseudonym with the given index. The
// reputation threshold is the one the relay advertises for the badge.
func (m *Member) Badge(ctx context.Context, badgeID string, index uint64) (*types.Ack, error) {
	var def *types.BadgeDefinition
	for _, b := range m.info.Badges {
		if b.ID == badgeID {
			def = b
		}
	}
	if def == nil {
		return nil, fmt.Errorf("%w: unknown badge %q", types.ErrValidation, badgeID)
	}
	p := m.payload(types.PayloadBadge)
	p.BadgeID = badgeID
	return m.act(ctx, types.KindBadge, p, credential.Params{PseudoIndex: index, Threshold: def.MinReputation})
}

// Settle asks the relay to settle the reputation signals on a message.
func (m *Member) Settle(ctx context.Context, target string) (*types.TicketSlot, error) {
	return m.cli.Settle(ctx, target)
}

// Status summarizes the credential.
type Status struct {
	GroupID    string                  `json:"groupId"`
	Joined     bool                    `json:"joined"`
	Commitment *types.BigInt           `json:"commitment,omitempty"`
	Reputation int64                   `json:"reputation"`
	Bans       int64                   `json:"bans"`
	Pseudonyms []*credential.Pseudonym `json:"pseudonyms,omitempty"`
	Tickets    int                     `json:"tickets"`
	// Cursor is the next ticket of the scan pass in progress.
	Cursor    uint64 `json:"cursor"`
	SinceScan uint64 `json:"sinceScan"`
	ScanDue   bool   `json:"scanDue"`
	// Published totals are the ones the next full scan pass will fold.
	PublishedReputation int64 `json:"publishedReputation"`
	PublishedBans       int64 `json:"publishedBans"`
	WitnessFresh        bool  `json:"witnessFresh"`
}

// Status returns the status of the credential, including the totals
// published on the bulletin for its tickets and whether the witness
// matches the current root.
func (m *Member) Status(ctx context.Context) (*Status, error) {
	s := &Status{GroupID: m.info.GroupID}
	if m.cred == nil {
		return s, nil
	}
	st := m.cred.State
	s.Joined = m.cred.Joined
	s.Commitment = types.FromBig(m.cred.Commitment())
	s.Reputation = st.Reputation
	s.Bans = st.Bans
	s.Pseudonyms = m.cred.Pseudonyms
	s.Tickets = len(m.cred.Tickets)
	s.Cursor = st.Cursor
	s.SinceScan = st.SinceScan
	s.ScanDue = st.ScanDue()
	if !m.cred.Joined {
		return s, nil
	}
	if len(m.cred.Tickets) > 0 {
		entries, err := m.bulletin(ctx)
		if err != nil {
			return nil, err
		}
		mine := make(map[string]bool, len(m.cred.Tickets))
		for _, t := range m.cred.Tickets {
			mine[t.Value.String()] = true
		}
		for _, e := range entries {
			if e.Slot != nil && mine[e.Slot.Ticket.String()] {
				s.PublishedReputation += e.Slot.Reputation
				s.PublishedBans += e.Slot.Bans
			}
		}
	}
	reg, err := m.cli.Registry(ctx)
	if err != nil {
		return nil, err
	}
	s.WitnessFresh = m.cred.Witness != nil && m.cred.Witness.Root.Equal(reg.Root)
	return s, nil
}
