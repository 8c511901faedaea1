package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// maxLineBytes bounds a single request line. Backup payloads travel as
// file paths, not inline data, so a megabyte is generous.
const maxLineBytes = 1024 * 1024

// conn is one client connection. Requests from the client run in their
// own goroutines; responses to daemon-initiated elicitations are routed
// back through pending.
type conn struct {
	srv *Server

	writeMu sync.Mutex
	w       io.Writer

	pendingMu sync.Mutex
	pending   map[string]chan *message

	// elicitSlot keeps at most one confirmation in flight per client.
	elicitSlot chan struct{}
	nextID     atomic.Int64

	wg sync.WaitGroup
}

func newConn(srv *Server, w io.Writer) *conn {
	return &conn{
		srv:        srv,
		w:          w,
		pending:    make(map[string]chan *message),
		elicitSlot: make(chan struct{}, 1),
	}
}

// serve reads newline-delimited messages until EOF or ctx cancellation.
func (c *conn) serve(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.wg.Wait()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		c.srv.touch()

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.reply(nil, nil, &wireError{Code: codeParse, Message: "parse error: " + err.Error()})
			continue
		}
		if msg.isRequest() {
			c.wg.Add(1)
			go func(m message) {
				defer c.wg.Done()
				c.dispatch(ctx, &m)
			}(msg)
			continue
		}
		c.routeResponse(&msg)
	}
	if err := sc.Err(); err != nil {
		return halerr.Wrap(err, "reading connection")
	}
	return nil
}

func (c *conn) dispatch(ctx context.Context, m *message) {
	if m.JSONRPC != jsonrpcVersion {
		c.reply(m.ID, nil, &wireError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version"})
		return
	}
	h, ok := c.srv.handlers[m.Method]
	if !ok {
		c.reply(m.ID, nil, &wireError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", m.Method)})
		return
	}
	start := c.srv.now()
	result, err := h(ctx, c, m.Params)
	c.srv.stats.RecordRequest(c.srv.now().Sub(start), err)
	if m.ID == nil {
		// Notification: nothing to answer even on failure.
		return
	}
	if err != nil {
		c.reply(m.ID, nil, toWireError(err))
		return
	}
	c.reply(m.ID, result, nil)
}

func (c *conn) reply(id json.RawMessage, result any, werr *wireError) {
	resp := struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  any             `json:"result,omitempty"`
		Error   *wireError      `json:"error,omitempty"`
	}{JSONRPC: jsonrpcVersion, ID: id, Result: result, Error: werr}
	c.write(&resp)
}

func (c *conn) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.srv.log.Error("encoding rpc message: %v", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		c.srv.log.Error("writing rpc message: %v", err)
	}
}

func (c *conn) routeResponse(m *message) {
	id := string(m.ID)
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.srv.log.Debug("response for unknown id %s dropped", id)
		return
	}
	ch <- m
}

// elicitation is the payload of an elicitation/create request.
type elicitation struct {
	Token    string   `json:"token"`
	Reason   string   `json:"reason"`
	Detail   string   `json:"detail,omitempty"`
	Summary  opFacts  `json:"operation"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type opFacts struct {
	Kind     string   `json:"kind"`
	Wallet   string   `json:"wallet"`
	Chain    string   `json:"chain"`
	To       string   `json:"to,omitempty"`
	Amount   string   `json:"amount"`
	Asset    string   `json:"asset"`
	USDValue *float64 `json:"usd_value,omitempty"`
}

type elicitResponse struct {
	Action string `json:"action"`
}

// elicit sends an elicitation/create request and blocks until the
// client answers or ctx is done. Returns true on accept. One at a time
// per connection; concurrent confirmations queue here.
func (c *conn) elicit(ctx context.Context, e *elicitation) (bool, error) {
	select {
	case c.elicitSlot <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-c.elicitSlot }()

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	// Responses echo the id as raw JSON; a string id comes back quoted.
	key := `"` + id + `"`
	ch := make(chan *message, 1)
	c.pendingMu.Lock()
	c.pending[key] = ch
	c.pendingMu.Unlock()

	req := struct {
		JSONRPC string       `json:"jsonrpc"`
		ID      string       `json:"id"`
		Method  string       `json:"method"`
		Params  *elicitation `json:"params"`
	}{JSONRPC: jsonrpcVersion, ID: id, Method: "elicitation/create", Params: e}
	c.srv.stats.RecordElicitation()
	c.write(&req)

	select {
	case m := <-ch:
		if m.Error != nil {
			return false, halerr.Wrap(halerr.ErrUserDeclined, "confirmation failed: %s", m.Error.Message)
		}
		var resp elicitResponse
		if err := json.Unmarshal(m.Result, &resp); err != nil {
			return false, halerr.Wrap(halerr.ErrInvalidRequest, "malformed elicitation response: %v", err)
		}
		return resp.Action == "accept", nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, key)
		c.pendingMu.Unlock()
		return false, ctx.Err()
	}
}
