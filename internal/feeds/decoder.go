package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cosmossdk.io/math"
	"github.com/tidwall/gjson"

	"github.com/rickgao/oracle-monitor/internal/model"
)

// Quote is the canonical price a feed currently publishes.
type Quote struct {
	Feed        string
	Price       math.LegacyDec // amountOut / amountIn
	AmountIn    math.Int       // Denominator submitted prices are scaled by
	AmountOut   math.Int
	BlockHeight int64 // Height the quote was published at, 0 if unknown
}

// Reader reads the latest raw data envelope at a vstorage path.
type Reader interface {
	ReadLatest(ctx context.Context, path string) ([]byte, error)
}

// StoragePath returns where a feed's quotes are published.
func StoragePath(feed string) string {
	return "published.priceFeed." + feed + "_price_feed"
}

// Decoder fetches and decodes feed quotes.
type Decoder struct {
	reader Reader
	logger *slog.Logger
}

// NewDecoder creates a decoder reading through reader.
func NewDecoder(reader Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{reader: reader, logger: logger}
}

// Decode returns the feed's latest quote. Ledger failures are returned as
// is; a record of the wrong shape is a *DecodeError.
func (d *Decoder) Decode(ctx context.Context, feed string) (Quote, error) {
	raw, err := d.reader.ReadLatest(ctx, StoragePath(feed))
	if err != nil {
		return Quote{}, err
	}

	q, err := DecodeQuote(feed, raw)
	if err != nil {
		return Quote{}, err
	}

	d.logger.Debug("decoded feed quote",
		"feed", feed,
		"price", q.Price.String(),
		"amount_in", q.AmountIn.String(),
		"height", q.BlockHeight,
	)
	return q, nil
}

// DecodeQuote unwraps a raw data envelope into a Quote:
// envelope value -> stream cell values[0] -> capdata body -> amounts.
func DecodeQuote(feed string, raw []byte) (Quote, error) {
	fail := func(stage string, err error) (Quote, error) {
		return Quote{}, &DecodeError{Feed: feed, Stage: stage, Err: err}
	}

	if !gjson.ValidBytes(raw) {
		return fail("envelope", errors.New("not JSON"))
	}
	value := gjson.GetBytes(raw, "value")
	if value.Type != gjson.String || value.String() == "" {
		return fail("envelope", errors.New("missing value"))
	}

	cell := value.String()
	first := gjson.Get(cell, "values.0")
	if !first.Exists() {
		return fail("stream cell", errors.New("no values"))
	}

	body := gjson.Get(first.String(), "body")
	if body.Type != gjson.String {
		return fail("capdata", errors.New("missing body"))
	}
	record := strings.ReplaceAll(body.String(), `\`, "")
	record = strings.TrimPrefix(record, "#")
	if !gjson.Valid(record) {
		return fail("capdata", errors.New("body is not JSON"))
	}

	amountIn, err := amountValue(record, "amountIn")
	if err != nil {
		return fail("amountIn", err)
	}
	amountOut, err := amountValue(record, "amountOut")
	if err != nil {
		return fail("amountOut", err)
	}

	price, err := model.Ratio(amountOut, amountIn)
	if err != nil {
		return fail("price", err)
	}

	return Quote{
		Feed:        feed,
		Price:       price,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		BlockHeight: gjson.Get(cell, "blockHeight").Int(),
	}, nil
}

// amountValue reads an amount's value in either the legacy
// {"@qclass":"bigint","digits":"..."} or the smallcaps "+digits" form.
func amountValue(record, field string) (math.Int, error) {
	v := gjson.Get(record, field+".value")

	var digits string
	switch {
	case v.IsObject():
		digits = v.Get("digits").String()
	case v.Type == gjson.String:
		digits = strings.TrimPrefix(v.String(), "+")
	case v.Type == gjson.Number:
		digits = v.Raw
	default:
		return math.Int{}, errors.New("missing value")
	}

	n, ok := math.NewIntFromString(digits)
	if !ok {
		return math.Int{}, fmt.Errorf("bad digits %q", digits)
	}
	return n, nil
}
