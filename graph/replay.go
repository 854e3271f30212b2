package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrReplayMismatch is returned by Verify when folding a state's history does
// not reproduce its accumulated data.
var ErrReplayMismatch = errors.New("replay mismatch: history does not reproduce accumulated data")

// Replay rebuilds the accumulated data of st from its Input, the data of
// every successful history entry, and every recorded decision, applied in
// the order the engine applied them.
//
// Replay never calls a step. It answers "given this audit trail, what should
// the accumulated data be?", which lets an operator validate a persisted
// state after it has been edited or migrated.
func Replay(st *WorkflowState) map[string]any {
	data := cloneMap(st.Input)
	if data == nil {
		data = make(map[string]any)
	}

	decisions := append([]DecisionEntry(nil), st.Decisions...)
	sort.SliceStable(decisions, func(i, j int) bool { return decisions[i].AfterSeq < decisions[j].AfterSeq })

	next := 0
	apply := func(upTo int) {
		for next < len(decisions) && decisions[next].AfterSeq <= upTo {
			data = merge(data, decisions[next].Data)
			next++
		}
	}

	apply(0)
	for _, h := range st.History {
		if h.Result.Success {
			data = merge(data, h.Result.Data)
		}
		apply(h.Seq)
	}
	apply(int(^uint(0) >> 1))
	return data
}

// Path returns the sequence of nodes executed, in order.
func Path(st *WorkflowState) []string {
	out := make([]string, len(st.History))
	for i, h := range st.History {
		out[i] = h.Node
	}
	return out
}

// Digest returns a hex SHA-256 of the canonical JSON encoding of data. Map
// keys are sorted by encoding/json, so equal data always hashes equally,
// including after a round trip through a store.
func Digest(data map[string]any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode data: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks that st's history is consistent with its accumulated data:
// sequence numbers are contiguous, and Replay reproduces Data exactly.
func Verify(st *WorkflowState) error {
	for i, h := range st.History {
		if h.Seq != i+1 {
			return fmt.Errorf("%w: history entry %d has seq %d", ErrReplayMismatch, i+1, h.Seq)
		}
	}

	want, err := Digest(st.Data)
	if err != nil {
		return err
	}
	got, err := Digest(Replay(st))
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: work %s digest %s, replayed %s", ErrReplayMismatch, st.WorkID, want, got)
	}
	return nil
}
