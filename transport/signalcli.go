package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/wispy/log"
)

// SignalCLI sends messages through the JSON-RPC HTTP endpoint of a
// signal-cli daemon. Message ids are the timestamps signal assigns to the
// sent messages, which is also how replies quote them.
type SignalCLI struct {
	url     string
	account string
	client  *http.Client
}

// NewSignalCLI returns a signal-cli transport for the daemon at url (for
// example http://127.0.0.1:8080/api/v1/rpc) sending as account.
func NewSignalCLI(url, account string, timeout time.Duration) *SignalCLI {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SignalCLI{url: url, account: account, client: &http.Client{Timeout: timeout}}
}

// Name implements Transport.
func (s *SignalCLI) Name() string { return "signal-cli" }

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result *struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"result,omitempty"`
	Error *rpcError `json:"error,omitempty"`
	ID    string    `json:"id"`
}

// Deliver implements Transport. A MetaQuote metadata entry makes the
// message quote the one with that timestamp, authored by the relay
// account.
func (s *SignalCLI) Deliver(ctx context.Context, groupID, content string, metadata map[string]string) (string, error) {
	params := map[string]any{
		"account": s.account,
		"groupId": groupID,
		"message": content,
	}
	if quote := metadata[MetaQuote]; quote != "" {
		ts, err := strconv.ParseInt(quote, 10, 64)
		if err != nil {
			return "", failed(s.Name(), fmt.Errorf("invalid quote timestamp %q", quote))
		}
		params["quoteTimestamp"] = ts
		params["quoteAuthor"] = s.account
		params["quoteMessage"] = ""
	}
	req := rpcRequest{JSONRPC: "2.0", Method: "send", Params: params, ID: uuid.NewString()}
	body, err := json.Marshal(req)
	if err != nil {
		return "", failed(s.Name(), err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", failed(s.Name(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", failed(s.Name(), err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("error closing response body", "error", err.Error())
		}
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", failed(s.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", failed(s.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return "", failed(s.Name(), fmt.Errorf("decode response: %w", err))
	}
	if rpcResp.Error != nil {
		return "", failed(s.Name(), fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}
	if rpcResp.Result == nil || rpcResp.Result.Timestamp == 0 {
		return "", failed(s.Name(), fmt.Errorf("response without timestamp"))
	}
	id := strconv.FormatInt(rpcResp.Result.Timestamp, 10)
	log.Debugw("message sent through signal-cli", "group", groupID, "timestamp", id)
	return id, nil
}
