package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrNoData is returned when a vstorage path holds no value.
var ErrNoData = errors.New("no data at path")

// StreamCell is one write to a published path: every value the chain
// published there within a single block.
type StreamCell struct {
	BlockHeight int64
	Values      []string // Capdata JSON documents, oldest first
}

// ReadLatest returns the raw data envelope ({"value": "..."}) at path.
func (c *Client) ReadLatest(ctx context.Context, path string) ([]byte, error) {
	return c.ReadAt(ctx, path, 0)
}

// ReadAt returns the raw data envelope at path as of height.
func (c *Client) ReadAt(ctx context.Context, path string, height int64) ([]byte, error) {
	return c.abciQuery(ctx, "data", path, height)
}

// Children lists the child keys of a vstorage node.
func (c *Client) Children(ctx context.Context, path string) ([]string, error) {
	raw, err := c.abciQuery(ctx, "children", path, 0)
	if err != nil {
		return nil, err
	}

	children := gjson.GetBytes(raw, "children").Array()
	out := make([]string, 0, len(children))
	for _, child := range children {
		out = append(out, child.String())
	}
	return out, nil
}

// ReadCell reads and parses the stream cell at path as of height.
func (c *Client) ReadCell(ctx context.Context, path string, height int64) (StreamCell, error) {
	raw, err := c.ReadAt(ctx, path, height)
	if err != nil {
		return StreamCell{}, err
	}
	cell, err := ParseStreamCell(raw)
	if err != nil {
		return StreamCell{}, &Error{Op: "read_cell", Path: path, Message: "parse stream cell", Err: err}
	}
	return cell, nil
}

// ParseStreamCell unwraps a data envelope into its stream cell. A value that
// was written without stream framing is returned as a single-value cell at
// height 0.
func ParseStreamCell(envelope []byte) (StreamCell, error) {
	if !gjson.ValidBytes(envelope) {
		return StreamCell{}, fmt.Errorf("envelope is not JSON")
	}

	value := gjson.GetBytes(envelope, "value")
	if !value.Exists() || value.String() == "" {
		return StreamCell{}, ErrNoData
	}

	inner := value.String()
	if !gjson.Valid(inner) {
		return StreamCell{}, fmt.Errorf("cell is not JSON")
	}

	values := gjson.Get(inner, "values")
	if !values.IsArray() {
		return StreamCell{Values: []string{inner}}, nil
	}

	cell := StreamCell{BlockHeight: gjson.Get(inner, "blockHeight").Int()}
	for _, v := range values.Array() {
		cell.Values = append(cell.Values, v.String())
	}
	return cell, nil
}
