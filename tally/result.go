package tally

import (
	"fmt"
	"strings"

	"github.com/vocdoni/wispy/types"
)

// Percentage returns the share of the total a choice got, in percent.
func Percentage(count *types.VoteCount, choice string) float64 {
	if count.Total == 0 {
		return 0
	}
	return float64(count.Counts[choice]) * 100 / float64(count.Total)
}

// Winner returns the choice with the most votes, or false on a tie or when
// nobody voted.
func Winner(count *types.VoteCount, choices []string) (string, bool) {
	winner, best, tie := "", uint64(0), false
	for _, choice := range choices {
		n := count.Counts[choice]
		switch {
		case n > best:
			winner, best, tie = choice, n, false
		case n == best && n > 0:
			tie = true
		}
	}
	if best == 0 || tie {
		return "", false
	}
	return winner, true
}

// Summary renders the result message posted to the group.
func Summary(poll *types.Poll, count *types.VoteCount) string {
	var b strings.Builder
	b.WriteString("The results are in!\n")
	if poll.Question != "" {
		fmt.Fprintf(&b, "%s\n", poll.Question)
	}
	if poll.Type == types.PollBan && poll.Reason != "" {
		fmt.Fprintf(&b, "Ban requested: %s\n", poll.Reason)
	}
	b.WriteString("\n")
	for _, choice := range poll.Choices {
		fmt.Fprintf(&b, "%s: %d (%.1f%%)\n", choice, count.Counts[choice], Percentage(count, choice))
	}
	fmt.Fprintf(&b, "\nTotal votes: %d\n", count.Total)

	winner, ok := Winner(count, poll.Choices)
	switch {
	case count.Total == 0:
		b.WriteString("No votes yet.")
	case !ok:
		b.WriteString("It's a tie!")
	case poll.Type == types.PollBan && winner == types.ChoiceBan:
		b.WriteString("Majority voted to ban.")
	case poll.Type == types.PollBan && winner == types.ChoiceKeep:
		b.WriteString("Majority voted to keep the user.")
	default:
		fmt.Fprintf(&b, "Majority voted %s.", winner)
	}
	return b.String()
}
