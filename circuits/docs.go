package circuits

// The circuits package contains the interaction circuit of the anonymous
// credential. Every interaction a member performs is proved with it: the
// member knows a secret state whose commitment is in the membership
// registry, and the public outputs (nullifiers, new commitment, tags,
// ticket) are derived from that state as the callback of the kind says.
// Nothing else about the member is disclosed.
//
// One circuit definition is compiled per kind, the kind deciding which
// constraints exist:
//
// +------------+
// |    Join    |  commitment of a fresh state
// +------------+
//
// +------------+
// |  Advance   |  membership of the old state, state nullifier,
// |            |  scan counter or ticket slots of the scan pass,
// |            |  new commitment
// +------------+
//
// +------------+
// |  Reveal    |  membership, pseudonym tags (authorship, badge),
// |            |  action nullifier, payload binding
// +------------+
//
// Everything lives on BN254 and hashes with MiMC, natively in package
// credential and in-circuit here, so both sides agree bit for bit.
