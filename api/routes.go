package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// InfoEndpoint describes the group served by the relay
	InfoEndpoint = "/info"
	// MetricsEndpoint serves the Prometheus metrics of the relay
	MetricsEndpoint = "/metrics"

	// MembersEndpoint is the endpoint for submitting join proofs
	MembersEndpoint = "/members"
	// MemberEndpoint returns the membership witness of a commitment
	CommitmentURLParam = "commitment"
	MemberEndpoint     = "/members/{" + CommitmentURLParam + "}"
	// RegistryEndpoint returns the current membership root
	RegistryEndpoint = "/registry"

	// BulletinEndpoint lists the callback bulletin slots
	BulletinEndpoint = "/bulletin"
	// BulletinTicketEndpoint returns the slot of a ticket
	TicketURLParam         = "ticket"
	BulletinTicketEndpoint = "/bulletin/{" + TicketURLParam + "}"

	// InteractionsEndpoint is the endpoint for submitting interaction proofs
	InteractionsEndpoint = "/interactions"

	// PollEndpoint returns a poll
	PollURLParam = "pollId"
	PollEndpoint = "/polls/{" + PollURLParam + "}"
	// PollVotesEndpoint returns the vote count of a poll
	PollVotesEndpoint = "/polls/{" + PollURLParam + "}/votes"

	// SettleEndpoint settles the reputation signals on a message
	TargetURLParam = "target"
	SettleEndpoint = "/targets/{" + TargetURLParam + "}/settle"

	// CircuitEndpoint returns the key manifest of a circuit and
	// CircuitArtifactEndpoint one of its keys
	KindURLParam            = "kind"
	ArtifactURLParam        = "artifact"
	CircuitEndpoint         = "/circuits/{" + KindURLParam + "}"
	CircuitArtifactEndpoint = "/circuits/{" + KindURLParam + "}/{" + ArtifactURLParam + "}"
)
