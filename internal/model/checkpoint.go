package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"

	"cosmossdk.io/math"
)

// FeedValue is the last submission an oracle made to one feed.
type FeedValue struct {
	Price math.LegacyDec // Normalized submitted price
	ID    int64          // Submission id, used as the observation time
	Round int64          // Round the submission was made for
}

// feedValueJSON keeps "price" a bare JSON number on disk.
type feedValueJSON struct {
	Price json.RawMessage `json:"price"`
	ID    json.Number     `json:"id"`
	Round json.Number     `json:"round"`
}

// MarshalJSON implements json.Marshaler.
func (v FeedValue) MarshalJSON() ([]byte, error) {
	price := "0"
	if !v.Price.IsNil() {
		price = v.Price.String()
	}
	return json.Marshal(feedValueJSON{
		Price: json.RawMessage(price),
		ID:    json.Number(strconv.FormatInt(v.ID, 10)),
		Round: json.Number(strconv.FormatInt(v.Round, 10)),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *FeedValue) UnmarshalJSON(data []byte) error {
	var raw feedValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := ParseDec(string(raw.Price))
	if err != nil {
		return err
	}
	id, err := parseJSONInt(raw.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	round, err := parseJSONInt(raw.Round)
	if err != nil {
		return fmt.Errorf("round: %w", err)
	}

	*v = FeedValue{Price: price, ID: id, Round: round}
	return nil
}

func parseJSONInt(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Checkpoint is the persisted reconciliation progress of one oracle.
type Checkpoint struct {
	LastIndex int                  `json:"last_index"` // Index of the last processed offer
	Values    map[string]FeedValue `json:"values"`     // Feed -> last submission seen in the last scan
}

// NewCheckpoint returns the zero checkpoint for a never-seen oracle.
func NewCheckpoint() Checkpoint {
	return Checkpoint{Values: make(map[string]FeedValue)}
}

// Clone returns a deep copy.
func (c Checkpoint) Clone() Checkpoint {
	out := Checkpoint{LastIndex: c.LastIndex, Values: make(map[string]FeedValue, len(c.Values))}
	maps.Copy(out.Values, c.Values)
	return out
}

// State is the full checkpoint document, keyed by oracle address.
type State map[string]Checkpoint

// Clone returns a deep copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, cp := range s {
		out[id] = cp.Clone()
	}
	return out
}
