package block

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Stats summarizes one Normalize call — an expansion restoring the
// per-field conversion counters the source implementation tracks
// (original_source/fuel-indexer/src/executor.rs) but spec.md's
// distillation drops. It is logged, not returned as an error.
type Stats struct {
	Blocks             int
	Transactions       int
	Receipts           int
	NonCreateBodies    int
}

// BadReceiptsError wraps a receipt-conversion failure; spec.md §4.6 requires
// that any single bad receipt fails the whole page.
type BadReceiptsError struct {
	TxIndex, ReceiptIndex int
	Err                   error
}

func (e BadReceiptsError) Error() string {
	return fmt.Sprintf("block: bad receipts (tx %d, receipt %d): %v", e.TxIndex, e.ReceiptIndex, e.Err)
}

func (e BadReceiptsError) Unwrap() error { return e.Err }

// Normalize converts one page of wire blocks into canonical block records.
// Every field mapping is total: no variant silently drops data (spec.md
// §4.6), except the known Create-only transaction body reduction, which is
// counted in Stats.NonCreateBodies and logged as a warning when non-zero.
func Normalize(wireBlocks []WireBlock) ([]Block, Stats, error) {
	var stats Stats
	out := make([]Block, 0, len(wireBlocks))

	for _, wb := range wireBlocks {
		blk, err := normalizeBlock(wb, &stats)
		if err != nil {
			return nil, stats, err
		}
		out = append(out, blk)
	}

	stats.Blocks = len(out)
	logrus.WithFields(logrus.Fields{
		"blocks":            stats.Blocks,
		"transactions":      stats.Transactions,
		"receipts":          stats.Receipts,
		"non_create_bodies": stats.NonCreateBodies,
	}).Debug("block: normalized page")
	if stats.NonCreateBodies > 0 {
		logrus.WithField("non_create_bodies", stats.NonCreateBodies).Warn("block: non-Create transaction bodies reduced to the default body")
	}

	return out, stats, nil
}

func normalizeBlock(wb WireBlock, stats *Stats) (Block, error) {
	var id ID
	copy(id[:], wb.ID)

	var producer *[32]byte
	if len(wb.ProducerPubkey) > 0 {
		h := sha256.Sum256(wb.ProducerPubkey)
		producer = &h
	}

	consensus, err := normalizeConsensus(wb.Consensus)
	if err != nil {
		return Block{}, fmt.Errorf("block: bad consensus: %w", err)
	}

	header := normalizeHeader(wb.Header)

	txs := make([]Transaction, 0, len(wb.Transactions))
	for i, wtx := range wb.Transactions {
		tx, err := normalizeTransaction(wtx, i, stats)
		if err != nil {
			return Block{}, err
		}
		txs = append(txs, tx)
	}
	stats.Transactions += len(txs)

	return Block{
		ID:           id,
		Height:       wb.Height,
		Producer:     producer,
		Time:         wb.Time,
		Consensus:    consensus,
		Header:       header,
		Transactions: txs,
	}, nil
}

func normalizeConsensus(wc WireConsensus) (Consensus, error) {
	switch wc.Kind {
	case "", "unknown":
		return Consensus{Tag: ConsensusUnknown}, nil
	case "genesis":
		if wc.Genesis == nil {
			return Consensus{}, fmt.Errorf("genesis consensus missing payload")
		}
		g := &GenesisConsensus{}
		copy(g.ChainConfigHash[:], wc.Genesis.ChainConfigHash)
		copy(g.CoinsRoot[:], wc.Genesis.CoinsRoot)
		copy(g.ContractsRoot[:], wc.Genesis.ContractsRoot)
		copy(g.MessagesRoot[:], wc.Genesis.MessagesRoot)
		return Consensus{Tag: ConsensusGenesis, Genesis: g}, nil
	case "poa":
		if wc.PoA == nil {
			return Consensus{}, fmt.Errorf("poa consensus missing payload")
		}
		p := &PoAConsensus{}
		copy(p.Signature[:], wc.PoA.Signature)
		return Consensus{Tag: ConsensusPoA, PoA: p}, nil
	default:
		return Consensus{}, fmt.Errorf("unrecognized consensus kind %q", wc.Kind)
	}
}

func normalizeHeader(wh WireHeader) Header {
	h := Header{
		DAHeight:            wh.DAHeight,
		TransactionsCount:   wh.TransactionsCount,
		MessageReceiptCount: wh.MessageReceiptCount,
	}
	copy(h.PrevRoot[:], wh.PrevRoot)
	copy(h.TransactionsRoot[:], wh.TransactionsRoot)
	copy(h.MessageReceiptRoot[:], wh.MessageReceiptRoot)
	copy(h.ApplicationHash[:], wh.ApplicationHash)
	return h
}

func normalizeTransaction(wtx WireTransaction, txIndex int, stats *Stats) (Transaction, error) {
	var id TxID
	copy(id[:], wtx.ID)

	status, err := normalizeStatus(wtx.Status)
	if err != nil {
		return Transaction{}, fmt.Errorf("block: bad status (tx %d): %w", txIndex, err)
	}

	receipts := make([]Receipt, len(wtx.Receipts))
	for i, wr := range wtx.Receipts {
		r, err := normalizeReceipt(wr)
		if err != nil {
			return Transaction{}, BadReceiptsError{TxIndex: txIndex, ReceiptIndex: i, Err: err}
		}
		receipts[i] = r
	}
	stats.Receipts += len(receipts)

	body, err := normalizeBody(wtx.Body)
	if err != nil {
		return Transaction{}, fmt.Errorf("block: bad body (tx %d): %w", txIndex, err)
	}
	if body.Tag == TxBodyDefault {
		stats.NonCreateBodies++
	}

	return Transaction{ID: id, Status: status, Receipts: receipts, Body: body}, nil
}

func normalizeStatus(ws WireTxStatus) (TxStatus, error) {
	var tag TxStatusTag
	switch ws.Kind {
	case "success":
		tag = TxStatusSuccess
	case "failure":
		tag = TxStatusFailure
	case "submitted":
		tag = TxStatusSubmitted
	case "squeezed_out":
		tag = TxStatusSqueezedOut
	default:
		return TxStatus{}, fmt.Errorf("unrecognized status kind %q", ws.Kind)
	}

	out := TxStatus{Tag: tag, Time: ws.Time, Reason: ws.Reason}
	copy(out.BlockID[:], ws.BlockID)

	if ws.ProgramState != nil {
		ps, err := normalizeProgramState(*ws.ProgramState)
		if err != nil {
			return TxStatus{}, err
		}
		out.ProgramState = &ps
	}
	return out, nil
}

func normalizeProgramState(wps WireProgramState) (ProgramState, error) {
	switch wps.Kind {
	case "return":
		return ProgramState{Tag: ProgramStateReturn, HexData: leWordHex(wps.Word)}, nil
	case "revert":
		return ProgramState{Tag: ProgramStateRevert, HexData: leWordHex(wps.Word)}, nil
	case "return_data":
		return ProgramState{Tag: ProgramStateReturnData, HexData: hex.EncodeToString(wps.Data)}, nil
	default:
		return ProgramState{}, fmt.Errorf("unrecognized program state kind %q", wps.Kind)
	}
}

func leWordHex(word uint64) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], word)
	return hex.EncodeToString(buf[:])
}

func normalizeReceipt(wr WireReceipt) (Receipt, error) {
	if wr.Kind == "" {
		return Receipt{}, fmt.Errorf("receipt missing kind")
	}
	return Receipt{Kind: wr.Kind, Fields: wr.Fields}, nil
}

func normalizeBody(wb WireTxBody) (Body, error) {
	if wb.Kind != "create" {
		return Body{Tag: TxBodyDefault}, nil
	}
	if wb.Create == nil {
		return Body{}, fmt.Errorf("create body missing payload")
	}
	c := &Create{
		Gas:                  wb.Create.Gas,
		Maturity:             wb.Create.Maturity,
		BytecodeWitnessIndex: wb.Create.BytecodeWitnessIndex,
		BytecodeLength:       wb.Create.BytecodeLength,
		Witnesses:            wb.Create.Witnesses,
	}
	copy(c.Salt[:], wb.Create.Salt)

	c.StorageSlots = make([]StorageSlot, len(wb.Create.StorageSlots))
	for i, s := range wb.Create.StorageSlots {
		var slot StorageSlot
		copy(slot.Key[:], s.Key)
		copy(slot.Value[:], s.Value)
		c.StorageSlots[i] = slot
	}

	c.Inputs = make([]Input, len(wb.Create.Inputs))
	for i, in := range wb.Create.Inputs {
		c.Inputs[i] = Input{Kind: in.Kind, Raw: in.Raw}
	}

	c.Outputs = make([]Output, len(wb.Create.Outputs))
	for i, o := range wb.Create.Outputs {
		c.Outputs[i] = Output{Kind: o.Kind, Raw: o.Raw}
	}

	return Body{Tag: TxBodyCreate, Create: c}, nil
}
