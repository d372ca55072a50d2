// Package block converts the node's wire block representation into the
// canonical block record handed to indexer handlers (spec.md §3, §4.6).
package block

// ID is a 32-byte block identifier.
type ID [32]byte

// TxID is a 32-byte transaction identifier.
type TxID [32]byte

// ConsensusTag discriminates the three consensus variants a block header
// can carry.
type ConsensusTag int

const (
	ConsensusUnknown ConsensusTag = iota
	ConsensusGenesis
	ConsensusPoA
)

// GenesisConsensus is the payload of the Genesis consensus variant.
type GenesisConsensus struct {
	ChainConfigHash [32]byte
	CoinsRoot       [32]byte
	ContractsRoot   [32]byte
	MessagesRoot    [32]byte
}

// PoAConsensus is the payload of the PoA consensus variant: a single
// 64-byte signature.
type PoAConsensus struct {
	Signature [64]byte
}

// Consensus is the canonical tagged consensus record.
type Consensus struct {
	Tag     ConsensusTag
	Genesis *GenesisConsensus
	PoA     *PoAConsensus
}

// Header carries the block's ids, roots, counts, heights, and application
// hash (spec.md §3).
type Header struct {
	PrevRoot             [32]byte
	TransactionsRoot     [32]byte
	MessageReceiptRoot   [32]byte
	DAHeight             uint64
	TransactionsCount    uint64
	MessageReceiptCount  uint64
	ApplicationHash      [32]byte
}

// TxStatusTag discriminates the four transaction status variants.
type TxStatusTag int

const (
	TxStatusSuccess TxStatusTag = iota
	TxStatusFailure
	TxStatusSubmitted
	TxStatusSqueezedOut
)

// ProgramStateTag discriminates the three program-state variants a
// Success/Failure status may carry.
type ProgramStateTag int

const (
	ProgramStateReturn ProgramStateTag = iota
	ProgramStateReturnData
	ProgramStateRevert
)

// ProgramState carries a hex-string payload; word-sized variants
// (Return, Revert) are encoded little-endian over 8 bytes before hex
// encoding (spec.md §4.6).
type ProgramState struct {
	Tag     ProgramStateTag
	HexData string
}

// TxStatus is the canonical tagged transaction status.
type TxStatus struct {
	Tag          TxStatusTag
	BlockID      ID
	Time         int64
	ProgramState *ProgramState // set only for Success/Failure
	Reason       string        // set only for Failure
}

// Receipt is a node-defined receipt variant converted one-for-one from the
// wire form. Kind names the variant; Fields carries its payload generically
// since the node's receipt taxonomy is a collaborator concern (spec.md §1
// scopes the node's GraphQL schema out) — the normalizer's obligation is
// only that conversion is total and one-to-one, not that this package
// re-declares the node's full receipt enum.
type Receipt struct {
	Kind   string
	Fields map[string]any
}

// TxBodyTag discriminates the transaction body variants. Only Create is
// fully reconstructed; every other node transaction variant collapses to
// TxBodyDefault (spec.md §3, §9 — an intentional, logged reduction carried
// from the source implementation).
type TxBodyTag int

const (
	TxBodyCreate TxBodyTag = iota
	TxBodyDefault
)

// StorageSlot is one (key, value) pair from a Create transaction's
// initial storage.
type StorageSlot struct {
	Key   [32]byte
	Value [32]byte
}

// Input and Output stand in for the node's many input/output variants.
// Kind names the wire variant; Raw preserves its encoded bytes unmodified
// — the indexer engine passes these through to the handler rather than
// interpreting them, so no further typed breakdown is required here.
type Input struct {
	Kind string
	Raw  []byte
}

type Output struct {
	Kind string
	Raw  []byte
}

// Create is the fully reconstructed Create transaction body.
type Create struct {
	Gas                  uint64
	Maturity             uint32
	BytecodeWitnessIndex uint16
	BytecodeLength       uint64
	Salt                 [32]byte
	StorageSlots         []StorageSlot
	Inputs               []Input
	Outputs              []Output
	Witnesses            [][]byte
}

// Body is the canonical tagged transaction body.
type Body struct {
	Tag    TxBodyTag
	Create *Create // set only when Tag == TxBodyCreate
}

// Transaction is one canonical transaction record.
type Transaction struct {
	ID       TxID
	Status   TxStatus
	Receipts []Receipt
	Body     Body
}

// Block is the canonical block record handed to handlers.
type Block struct {
	ID           ID
	Height       uint32
	Producer     *[32]byte
	Time         int64
	Consensus    Consensus
	Header       Header
	Transactions []Transaction
}
