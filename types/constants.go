package types

const (
	// TreeDepth is the number of levels of the membership registry and the
	// callback bulletin. Both trees hold up to 2^TreeDepth leaves.
	TreeDepth = 16
	// FoldSlots is the number of callback ticket slots a single scan folds
	// into the credential.
	FoldSlots = 2
	// ScanInterval bounds the state-advancing interactions a credential can
	// perform between two complete scan passes: the counter of interactions
	// since the last pass must stay below it.
	ScanInterval = 5
	// ScanCounterBits bounds the range check of the scan counter.
	ScanCounterBits = 8
	// TicketIndexBits bounds the number of tickets a credential can issue.
	TicketIndexBits = 32
	// PseudonymIndexBits bounds the pseudonym indexes accepted by the circuits.
	PseudonymIndexBits = 32
	// ReputationBits bounds the (non negative) reputation values checked by
	// the circuits. Negative reputation wraps around the field and fails
	// the range check.
	ReputationBits = 62
	// LedgerTreeMaxLevels is the number of levels of each nullifier ledger
	// partition tree.
	LedgerTreeMaxLevels = 160
	// LedgerKeyMaxLen is the length in bytes of the ledger partition keys.
	LedgerKeyMaxLen = LedgerTreeMaxLevels / 8
)

// Hash domain separators. Every MiMC hash computed over credential data
// starts with one of them, natively and in-circuit.
const (
	DomainCommit uint64 = iota + 1
	DomainState
	DomainPseudonym
	DomainAction
	DomainTicket
	DomainEffect
)

// Ban poll choices.
const (
	ChoiceBan  = "ban"
	ChoiceKeep = "keep"
)

// DefaultPollChoices are used by polls created without explicit choices.
var DefaultPollChoices = []string{"yes", "no"}
