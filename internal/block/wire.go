package block

// The Wire* types below are the node's over-the-wire block representation,
// sketched only as far as the normalizer needs to consume them — the
// node's GraphQL schema itself is out of scope (spec.md §1).

type WireConsensus struct {
	Kind     string // "unknown" | "genesis" | "poa"
	Genesis  *WireGenesisConsensus
	PoA      *WirePoAConsensus
}

type WireGenesisConsensus struct {
	ChainConfigHash []byte
	CoinsRoot       []byte
	ContractsRoot   []byte
	MessagesRoot    []byte
}

type WirePoAConsensus struct {
	Signature []byte
}

type WireHeader struct {
	PrevRoot            []byte
	TransactionsRoot    []byte
	MessageReceiptRoot  []byte
	DAHeight            uint64
	TransactionsCount   uint64
	MessageReceiptCount uint64
	ApplicationHash     []byte
}

type WireProgramState struct {
	Kind string // "return" | "return_data" | "revert"
	Word uint64
	Data []byte
}

type WireTxStatus struct {
	Kind         string // "success" | "failure" | "submitted" | "squeezed_out"
	BlockID      []byte
	Time         int64
	ProgramState *WireProgramState
	Reason       string
}

type WireReceipt struct {
	Kind   string
	Fields map[string]any
}

type WireStorageSlot struct {
	Key   []byte
	Value []byte
}

type WireInput struct {
	Kind string
	Raw  []byte
}

type WireOutput struct {
	Kind string
	Raw  []byte
}

type WireCreateBody struct {
	Gas                  uint64
	Maturity             uint32
	BytecodeWitnessIndex uint16
	BytecodeLength       uint64
	Salt                 []byte
	StorageSlots         []WireStorageSlot
	Inputs               []WireInput
	Outputs              []WireOutput
	Witnesses            [][]byte
}

// WireTxBody holds whichever variant the node sent. Kind "create" populates
// Create; every other kind is reduced to TxBodyDefault by the normalizer and
// only counted (Stats.NonCreateBodies), its Kind is not kept.
type WireTxBody struct {
	Kind   string
	Create *WireCreateBody
}

type WireTransaction struct {
	ID       []byte
	Status   WireTxStatus
	Receipts []WireReceipt
	Body     WireTxBody
}

type WireBlock struct {
	ID            []byte
	Height        uint32
	ProducerPubkey []byte // optional; hashed to 32 bytes by the normalizer
	Time          int64
	Consensus     WireConsensus
	Header        WireHeader
	Transactions  []WireTransaction
}
