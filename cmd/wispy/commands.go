package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vocdoni/wispy/member"
	"github.com/vocdoni/wispy/service"
	"github.com/vocdoni/wispy/types"
)

func (a *app) commands() []*cobra.Command {
	var (
		delta       int64
		badgePseudo uint64
	)
	rep := a.ackCmd("rep <target>", "Signal reputation to the author of a message", 1,
		func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
			return m.Rep(ctx, args[0], delta)
		})
	rep.Flags().Int64Var(&delta, "delta", 1, "reputation delta, 1 or -1")

	badge := a.ackCmd("badge <badgeId>", "Claim a badge for a pseudonym", 1,
		func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
			return m.Badge(ctx, args[0], badgePseudo)
		})
	badge.Flags().Uint64Var(&badgePseudo, "pseudo", 0, "index of the pseudonym the badge is bound to")

	return []*cobra.Command{
		a.joinCmd(),
		a.ackCmd("post <message>", "Post a message to the group", 1,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Post(ctx, args[0])
			}),
		a.ackCmd("post-pseudo <message> <index>", "Post a message as a pseudonym", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				index, err := parseIndex(args[1])
				if err != nil {
					return nil, err
				}
				return m.PostPseudo(ctx, args[0], index)
			}),
		a.genPseudoCmd(),
		a.pseudoIndexCmd(),
		a.scanCmd(),
		a.ackCmd("reaction <target> <emoji>", "React to a message", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Reaction(ctx, args[0], args[1])
			}),
		a.ackCmd("reply <target> <message>", "Reply to a message", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Reply(ctx, args[0], args[1])
			}),
		a.ackCmd("reply-pseudo <target> <message> <index>", "Reply to a message as a pseudonym", 3,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				index, err := parseIndex(args[2])
				if err != nil {
					return nil, err
				}
				return m.ReplyPseudo(ctx, args[0], args[1], index)
			}),
		a.ackCmd("poll <question>", "Open a yes/no poll", 1,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Poll(ctx, args[0])
			}),
		a.ackCmd("vote <pollId> <choice>", "Vote on a poll", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Vote(ctx, args[0], args[1])
			}),
		a.countVotesCmd(),
		a.ackCmd("ban-poll <reason> <target>", "Open a poll on banning the author of a message", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.BanPoll(ctx, args[0], args[1])
			}),
		a.ackCmd("ban <pollId>", "Enforce a ban poll", 1,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				return m.Ban(ctx, args[0])
			}),
		rep,
		a.ackCmd("authorship <i> <j>", "Prove two pseudonyms belong to the same member", 2,
			func(ctx context.Context, m *member.Member, args []string) (*types.Ack, error) {
				i, err := parseIndex(args[0])
				if err != nil {
					return nil, err
				}
				j, err := parseIndex(args[1])
				if err != nil {
					return nil, err
				}
				return m.Authorship(ctx, i, j)
			}),
		badge,
		a.settleCmd(),
		a.statusCmd(),
		a.fetchKeysCmd(),
	}
}

func parseIndex(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid pseudonym index %q", types.ErrValidation, s)
	}
	return n, nil
}

// ackCmd builds a command running one interaction and printing its
// acknowledgment.
func (a *app) ackCmd(use, short string, nargs int,
	fn func(context.Context, *member.Member, []string) (*types.Ack, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ack, err := fn(cmd.Context(), m, args)
			if err != nil {
				return err
			}
			return a.printAck(ack)
		},
	}
}

func (a *app) joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Create a credential and join the group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ack, err := m.Join(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("joined %s, credential saved to %s", m.Info().GroupID, a.credentialPath)
			return a.printAck(ack)
		},
	}
}

func (a *app) genPseudoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-pseudo",
		Short: "Generate a new pseudonym",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			p, err := m.GenPseudo(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(p, fmt.Sprintf("pseudonym %d: %s", p.Index, p.Handle()))
		},
	}
}

func (a *app) pseudoIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pseudo-index",
		Short: "Print the number of pseudonyms generated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			n, err := m.PseudoIndex()
			if err != nil {
				return err
			}
			return a.print(n, strconv.FormatUint(n, 10))
		},
	}
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Refresh the membership witness and run a full scan pass over the bulletin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			n, err := m.Scan(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(n, fmt.Sprintf("%d ticket slots folded", n))
		},
	}
}

func (a *app) countVotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count-votes <pollId>",
		Short: "Count the votes of a poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			count, err := cli.CountVotes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(count, count.Summary)
		},
	}
}

func (a *app) settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <target>",
		Short: "Settle the reputation signals on a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			slot, err := cli.Settle(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if slot == nil {
				return a.print(slot, "nothing to settle")
			}
			return a.print(slot, fmt.Sprintf("bulletin slot %d now holds %+d reputation", slot.Position, slot.Reputation))
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			st, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !st.Joined {
				return a.print(st, fmt.Sprintf("not a member of %s", st.GroupID))
			}
			handles := make([]string, 0, len(st.Pseudonyms))
			for _, p := range st.Pseudonyms {
				handles = append(handles, fmt.Sprintf("%d:%s", p.Index, p.Handle()))
			}
			text := fmt.Sprintf("group %s\nreputation %d, bans %d\npseudonyms [%s]\n"+
				"tickets %d, scan cursor %d, %d interactions since the last pass\n"+
				"published reputation %d, bans %d\nwitness fresh: %t",
				st.GroupID, st.Reputation, st.Bans, strings.Join(handles, " "),
				st.Tickets, st.Cursor, st.SinceScan,
				st.PublishedReputation, st.PublishedBans, st.WitnessFresh)
			if st.ScanDue {
				text += "\nscan pass due"
			}
			return a.print(st, text)
		},
	}
}

func (a *app) fetchKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-keys",
		Short: "Download the circuit keys of every interaction from the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			backend, err := a.proofBackend(cmd.Context(), cli)
			if err != nil {
				return err
			}
			if err := service.LoadCircuitKeys(backend, a.proveTimeout); err != nil {
				return err
			}
			return a.print(backend.Name(), fmt.Sprintf("%s keys ready", backend.Name()))
		},
	}
}
