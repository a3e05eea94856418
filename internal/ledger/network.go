package ledger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// LocalNetwork selects the RPC endpoint given directly in configuration.
const LocalNetwork = "local"

// NetworkConfigURL returns where a public network publishes its config.
func NetworkConfigURL(network string) string {
	return fmt.Sprintf("https://%s.agoric.net/network-config", network)
}

// ResolveNetwork returns the RPC endpoint to use. For the local network it
// returns localRPC; otherwise it fetches configURL (NetworkConfigURL when
// empty) and takes the first entry of rpcAddrs.
func ResolveNetwork(ctx context.Context, hc *http.Client, network, localRPC, configURL string) (string, error) {
	if network == "" || network == LocalNetwork {
		return localRPC, nil
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if configURL == "" {
		configURL = NetworkConfigURL(network)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return "", &Error{Op: "network_config", Path: configURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Op: "network_config", Path: configURL, Message: "read response", Err: err}
	}
	if resp.StatusCode >= 400 {
		return "", &Error{Op: "network_config", Path: configURL, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	addr := gjson.GetBytes(body, "rpcAddrs.0").String()
	if addr == "" {
		return "", &Error{Op: "network_config", Path: configURL, Message: "no rpcAddrs"}
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr, nil
}
