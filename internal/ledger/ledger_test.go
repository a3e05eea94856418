package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/oracle-monitor/internal/capdata"
	"github.com/rickgao/oracle-monitor/internal/model"
)

// fakeChain serves vstorage abci queries from in-memory stream cells.
type fakeChain struct {
	mu       sync.Mutex
	cells    map[string][]StreamCell // path -> cells, ascending height
	codes    map[string]int64        // path -> forced abci error code
	failures int                     // number of 503s to return first
	requests atomic.Int32
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		cells: make(map[string][]StreamCell),
		codes: make(map[string]int64),
	}
}

func (f *fakeChain) publish(path string, height int64, values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[path] = append(f.cells[path], StreamCell{BlockHeight: height, Values: values})
}

func (f *fakeChain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if r.URL.Path != "/abci_query" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	full, err := strconv.Unquote(r.URL.Query().Get("path"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	path := strings.TrimPrefix(full, "/custom/vstorage/data/")
	height, _ := strconv.ParseInt(r.URL.Query().Get("height"), 10, 64)

	if code, ok := f.codes[path]; ok {
		writeABCI(w, code, nil)
		return
	}

	var found *StreamCell
	for i, cell := range f.cells[path] {
		if height == 0 || cell.BlockHeight <= height {
			found = &f.cells[path][i]
		}
	}

	envelope := map[string]string{"value": ""}
	if found != nil {
		inner, _ := json.Marshal(map[string]any{
			"blockHeight": strconv.FormatInt(found.BlockHeight, 10),
			"values":      found.Values,
		})
		envelope["value"] = string(inner)
	}
	data, _ := json.Marshal(envelope)
	writeABCI(w, 0, data)
}

func writeABCI(w http.ResponseWriter, code int64, value []byte) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      -1,
		"result": map[string]any{
			"response": map[string]any{
				"code":  code,
				"log":   "",
				"value": base64.StdEncoding.EncodeToString(value),
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// capJSON renders a capdata document.
func capJSON(t *testing.T, body string, slots ...string) string {
	t.Helper()
	if slots == nil {
		slots = []string{}
	}
	data, err := json.Marshal(capdata.CapData{Body: body, Slots: slots})
	require.NoError(t, err)
	return string(data)
}

func newTestClient(t *testing.T, chain *fakeChain) *Client {
	t.Helper()
	server := httptest.NewServer(chain)
	t.Cleanup(server.Close)
	return NewClient(server.URL, WithRetries(2, time.Millisecond))
}

func TestClient_ReadLatest(t *testing.T) {
	chain := newFakeChain()
	chain.publish("published.priceFeed.ATOM-USD_price_feed", 7, `{"body":"#1","slots":[]}`)
	client := newTestClient(t, chain)

	raw, err := client.ReadLatest(context.Background(), "published.priceFeed.ATOM-USD_price_feed")
	require.NoError(t, err)

	cell, err := ParseStreamCell(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cell.BlockHeight)
	assert.Equal(t, []string{`{"body":"#1","slots":[]}`}, cell.Values)
}

func TestClient_ABCIErrorNotRetried(t *testing.T) {
	chain := newFakeChain()
	chain.codes["published.missing"] = 38
	client := newTestClient(t, chain)

	_, err := client.ReadLatest(context.Background(), "published.missing")

	var ledgerErr *Error
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, int64(38), ledgerErr.Code)
	assert.False(t, ledgerErr.IsRetryable())
	assert.Equal(t, int32(1), chain.requests.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	chain := newFakeChain()
	chain.failures = 2
	chain.publish("published.x", 1, "{}")
	client := newTestClient(t, chain)

	_, err := client.ReadLatest(context.Background(), "published.x")
	require.NoError(t, err)
	assert.Equal(t, int32(3), chain.requests.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	chain := newFakeChain()
	chain.failures = 10
	client := newTestClient(t, chain)

	_, err := client.ReadLatest(context.Background(), "published.x")

	var ledgerErr *Error
	require.ErrorAs(t, err, &ledgerErr)
	assert.Equal(t, http.StatusServiceUnavailable, ledgerErr.StatusCode)
	assert.Equal(t, "published.x", ledgerErr.Path)
	assert.Equal(t, int32(3), chain.requests.Load())
}

func TestErrorIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{name: "server error", err: &Error{StatusCode: 502}, want: true},
		{name: "rate limited", err: &Error{StatusCode: 429}, want: true},
		{name: "bad request", err: &Error{StatusCode: 400}, want: false},
		{name: "abci code", err: &Error{Code: 6}, want: false},
		{name: "transport", err: &Error{Err: assert.AnError}, want: true},
		{name: "canceled", err: &Error{Err: context.Canceled}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
		})
	}
}

func TestParseStreamCell(t *testing.T) {
	t.Run("empty value", func(t *testing.T) {
		_, err := ParseStreamCell([]byte(`{"value":""}`))
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("unframed value", func(t *testing.T) {
		cell, err := ParseStreamCell([]byte(`{"value":"{\"body\":\"#1\",\"slots\":[]}"}`))
		require.NoError(t, err)
		assert.Zero(t, cell.BlockHeight)
		assert.Len(t, cell.Values, 1)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseStreamCell([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestFollower_WalksBackAndCaches(t *testing.T) {
	chain := newFakeChain()
	path := "published.wallet.agoric1abc"
	chain.publish(path, 10, "a")
	chain.publish(path, 20, "b", "c")
	chain.publish(path, 30, "d")
	client := newTestClient(t, chain)
	ctx := context.Background()

	values, err := client.Follower().Values(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, values)
	assert.Equal(t, int32(4), chain.requests.Load())

	chain.publish(path, 40, "e")
	chain.requests.Store(0)

	values, err = client.Follower().Values(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, values)
	assert.Equal(t, int32(2), chain.requests.Load(), "only the new cell and its predecessor are read")

	chain.requests.Store(0)
	_, err = client.Follower().Values(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int32(1), chain.requests.Load())
}

func TestFollower_DropsCacheWhenHeightGoesBackwards(t *testing.T) {
	chain := newFakeChain()
	path := "published.wallet.agoric1abc"
	chain.publish(path, 100, "old")
	client := newTestClient(t, chain)
	ctx := context.Background()

	_, err := client.Follower().Values(ctx, path)
	require.NoError(t, err)

	chain.mu.Lock()
	chain.cells[path] = []StreamCell{{BlockHeight: 5, Values: []string{"new"}}}
	chain.mu.Unlock()

	values, err := client.Follower().Values(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, values)
}

func TestFollower_EmptyPath(t *testing.T) {
	client := newTestClient(t, newFakeChain())

	history, err := client.Follower().History(context.Background(), "published.wallet.nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func pushStatus(id, previousOffer string, unitPrice string, round int, satisfied bool) string {
	wants := ""
	if satisfied {
		wants = `,"numWantsSatisfied":1`
	}
	return `#{"status":{"id":` + id + `,"invitationSpec":{"invitationArgs":[{"roundId":` + strconv.Itoa(round) +
		`,"unitPrice":"+` + unitPrice + `"}],"invitationMakerName":"PushPrice","previousOffer":"` + previousOffer +
		`","source":"continuing"}` + wants + `},"updated":"offerStatus"}`
}

func TestWalletSnapshot(t *testing.T) {
	chain := newFakeChain()
	addr := "agoric1oracle"
	path := WalletPath(addr)

	chain.publish(path, 10,
		capJSON(t, `#{"status":{"id":"oracle-invite-1","invitationSpec":{"instancePath":["ATOM-USD price feed"],"source":"purse"}},"updated":"offerStatus"}`),
		capJSON(t, `#{"currentAmount":{"brand":"$0.Alleged: BLD brand","value":"+1000000"},"updated":"balance"}`, "board0074"),
	)
	chain.publish(path, 20,
		capJSON(t, pushStatus("1700000000001", "oracle-invite-1", "500", 3, false)),
		capJSON(t, `#{"currentAmount":{"brand":"$0.Alleged: IST brand","value":"+250"},"updated":"balance"}`, "board0257"),
		capJSON(t, `#{"updated":"walletAction","status":{"error":"boom"}}`),
	)
	chain.publish(path, 30,
		capJSON(t, pushStatus("1700000000001", "oracle-invite-1", "500", 3, true)),
		capJSON(t, pushStatus("1700000000001", "oracle-invite-1", "999", 9, false)),
		capJSON(t, `#{"currentAmount":{"brand":"$0.Alleged: BLD brand","value":"+900000"},"updated":"balance"}`, "board0074"),
		capJSON(t, `#{"currentAmount":{"brand":"$0.Alleged: FOO brand","value":"+1"},"updated":"balance"}`, "board0999"),
		`not capdata`,
	)

	client := newTestClient(t, chain)
	snap, err := client.WalletSnapshot(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, addr, snap.Address)
	assert.Equal(t, int64(30), snap.BlockHeight)

	require.Len(t, snap.Offers, 2)
	assert.Equal(t, 0, snap.Offers[0].Index)
	assert.Equal(t, "oracle-invite-1", snap.Offers[0].ID)
	assert.False(t, snap.Offers[0].IsPricePush())

	push := snap.Offers[1]
	assert.Equal(t, 1, push.Index)
	assert.Equal(t, "1700000000001", push.ID)
	assert.True(t, push.IsPricePush())
	assert.Equal(t, "oracle-invite-1", push.PreviousOffer)
	require.NotNil(t, push.Push)
	assert.Equal(t, "500", push.Push.UnitPrice.String(), "a satisfied offer is not overwritten")
	assert.Equal(t, int64(3), push.Push.RoundID)

	require.Len(t, snap.Balances, 3)
	assert.Equal(t, "BLD", snap.Balances[0].Brand)
	assert.Equal(t, "900000", snap.Balances[0].Value.String())
	assert.Equal(t, "IST", snap.Balances[1].Brand)
	assert.Equal(t, "FOO", snap.Balances[2].Brand)
}

func TestWalletSnapshot_LegacyEncoding(t *testing.T) {
	chain := newFakeChain()
	addr := "agoric1legacy"
	body := `{"status":{"id":{"@qclass":"bigint","digits":"1700000000002"},"invitationSpec":{"invitationArgs":[{"roundId":{"@qclass":"bigint","digits":"12"},"unitPrice":{"@qclass":"bigint","digits":"12345"}}],"invitationMakerName":"PushPrice","previousOffer":"7"}},"updated":"offerStatus"}`
	chain.publish(WalletPath(addr), 3, capJSON(t, body))

	client := newTestClient(t, chain)
	snap, err := client.WalletSnapshot(context.Background(), addr)
	require.NoError(t, err)

	require.Len(t, snap.Offers, 1)
	require.NotNil(t, snap.Offers[0].Push)
	assert.Equal(t, "1700000000002", snap.Offers[0].ID)
	assert.Equal(t, "12345", snap.Offers[0].Push.UnitPrice.String())
	assert.Equal(t, int64(12), snap.Offers[0].Push.RoundID)
}

func TestWalletSnapshot_OversizedIntegers(t *testing.T) {
	huge := "1" + strings.Repeat("0", 90)

	co := newCoalescer()
	require.NotPanics(t, func() {
		require.NoError(t, co.add(capJSON(t, pushStatus("1700000000003", "oracle-invite-1", huge, 4, false))))
		require.NoError(t, co.add(capJSON(t, pushStatus("1700000000004", "oracle-invite-1", "600", 5, false))))
		err := co.add(capJSON(t, `#{"currentAmount":{"brand":"$0.Alleged: BLD brand","value":"+`+huge+`"},"updated":"balance"}`, "board0074"))
		assert.Error(t, err)
	})

	var snap *model.WalletSnapshot
	require.NotPanics(t, func() { snap = co.snapshot() })

	require.Len(t, snap.Offers, 2)
	assert.True(t, snap.Offers[0].IsPricePush())
	assert.Nil(t, snap.Offers[0].Push, "an oversized unit price leaves the push unusable")
	require.NotNil(t, snap.Offers[1].Push)
	assert.Equal(t, "600", snap.Offers[1].Push.UnitPrice.String())
	assert.Empty(t, snap.Balances)
}

func TestWalletCurrent(t *testing.T) {
	invitation := func(slot int) string {
		return `{"brand":"$0.Alleged: Zoe Invitation brand","value":[{"description":"oracle invitation","instance":"$` + strconv.Itoa(slot) + `.Alleged: InstanceHandle"}]}`
	}

	t.Run("entries form", func(t *testing.T) {
		chain := newFakeChain()
		body := `#{"offerToUsedInvitation":[["oracle-invite-1",` + invitation(1) + `],["oracle-invite-2",` + invitation(2) + `]],"purses":[]}`
		chain.publish(WalletPath("agoric1abc")+".current", 5, capJSON(t, body, "board0074", "board04542", "board05555"))

		client := newTestClient(t, chain)
		current, err := client.WalletCurrent(context.Background(), "agoric1abc")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"oracle-invite-1": "board04542",
			"oracle-invite-2": "board05555",
		}, current.UsedInvitations)
	})

	t.Run("record form", func(t *testing.T) {
		chain := newFakeChain()
		body := `#{"offerToUsedInvitation":{"oracle-invite-1":` + invitation(1) + `}}`
		chain.publish(WalletPath("agoric1abc")+".current", 5, capJSON(t, body, "board0074", "board04542"))

		client := newTestClient(t, chain)
		current, err := client.WalletCurrent(context.Background(), "agoric1abc")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"oracle-invite-1": "board04542"}, current.UsedInvitations)
	})

	t.Run("missing wallet", func(t *testing.T) {
		client := newTestClient(t, newFakeChain())
		_, err := client.WalletCurrent(context.Background(), "agoric1none")
		var ledgerErr *Error
		assert.ErrorAs(t, err, &ledgerErr)
	})
}

func TestInstanceNames(t *testing.T) {
	chain := newFakeChain()
	body := `#[["ATOM-USD price feed","$0.Alleged: InstanceHandle"],["VaultFactory","$1.Alleged: InstanceHandle"]]`
	chain.publish(InstancesPath, 8, capJSON(t, body, "board04542", "board00282"))

	client := newTestClient(t, chain)
	names, err := client.InstanceNames(context.Background())
	require.NoError(t, err)

	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"board00282", "board04542"}, keys)
	assert.Equal(t, "ATOM-USD price feed", names["board04542"])
}

func TestResolveNetwork(t *testing.T) {
	ctx := context.Background()

	t.Run("local uses configured rpc", func(t *testing.T) {
		rpc, err := ResolveNetwork(ctx, nil, "local", "http://0.0.0.0:26657", "")
		require.NoError(t, err)
		assert.Equal(t, "http://0.0.0.0:26657", rpc)
	})

	t.Run("public network config", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"chainName":"agoriclocal","rpcAddrs":["https://main.rpc.agoric.net:443","https://backup"]}`))
		}))
		defer server.Close()

		rpc, err := ResolveNetwork(ctx, server.Client(), "main", "", server.URL)
		require.NoError(t, err)
		assert.Equal(t, "https://main.rpc.agoric.net:443", rpc)
	})

	t.Run("bare host gets a scheme", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rpcAddrs":["node.example:26657"]}`))
		}))
		defer server.Close()

		rpc, err := ResolveNetwork(ctx, server.Client(), "devnet", "", server.URL)
		require.NoError(t, err)
		assert.Equal(t, "http://node.example:26657", rpc)
	})

	t.Run("no rpc addresses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rpcAddrs":[]}`))
		}))
		defer server.Close()

		_, err := ResolveNetwork(ctx, server.Client(), "emerynet", "", server.URL)
		var ledgerErr *Error
		assert.ErrorAs(t, err, &ledgerErr)
	})

	assert.Equal(t, "https://emerynet.agoric.net/network-config", NetworkConfigURL("emerynet"))
}
