package types

// Version is the canonical project version.
// The CLI, the wire protocol and the notification contract share it.
const Version = "0.3.0"

// ContractVersion is the downstream notification contract version.
// It moves in lockstep with Version.
const ContractVersion = Version
