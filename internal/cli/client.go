package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"os"
	"time"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// daemonClient is a one-shot JSON-RPC client for the daemon socket.
// Commands that manage the live daemon (session, approvals) go through
// here; everything else works on the keystore files directly.
type daemonClient struct {
	conn   net.Conn
	sc     *bufio.Scanner
	nextID int64
}

type clientMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *clientError    `json:"error,omitempty"`
}

type clientError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Code       string            `json:"code,omitempty"`
		Suggestion string            `json:"suggestion,omitempty"`
		Details    map[string]string `json:"details,omitempty"`
	} `json:"data,omitempty"`
}

// dialDaemon connects to the daemon socket under the configured home.
func dialDaemon() (*daemonClient, error) {
	conn, err := net.DialTimeout("unix", socketPath(), 5*time.Second)
	if err != nil {
		if os.IsNotExist(err) || isConnRefused(err) {
			return nil, halerr.WithSuggestion(
				halerr.Wrap(halerr.ErrGeneral, "halyard daemon is not running"),
				"start it with: halyard serve",
			)
		}
		return nil, halerr.Wrap(err, "connecting to daemon")
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &daemonClient{conn: conn, sc: sc}, nil
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (c *daemonClient) Close() error {
	return c.conn.Close()
}

// call sends one request and decodes the matching response into result.
// Server-initiated requests that arrive in between are declined, since
// a one-shot CLI invocation has no human attached.
func (c *daemonClient) call(method string, params, result any) error {
	c.nextID++
	id, _ := json.Marshal(c.nextID)
	req := clientMessage{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(&req)
	if err != nil {
		return halerr.Wrap(err, "encoding request")
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return halerr.Wrap(err, "writing request")
	}

	for c.sc.Scan() {
		line := c.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return halerr.Wrap(err, "decoding response")
		}
		if msg.Method != "" {
			c.declineRequest(msg.ID)
			continue
		}
		if string(msg.ID) != string(id) {
			continue
		}
		if msg.Error != nil {
			return msg.Error.toError()
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return halerr.Wrap(err, "decoding result")
			}
		}
		return nil
	}
	if err := c.sc.Err(); err != nil {
		return halerr.Wrap(err, "reading response")
	}
	return halerr.Wrap(halerr.ErrGeneral, "daemon closed the connection")
}

func (c *daemonClient) declineRequest(id json.RawMessage) {
	resp := clientMessage{JSONRPC: "2.0", ID: id, Result: json.RawMessage(`{"action":"decline"}`)}
	if data, err := json.Marshal(&resp); err == nil {
		_, _ = c.conn.Write(append(data, '\n'))
	}
}

// toError rebuilds a HalyardError from the wire taxonomy so exit codes
// and suggestions survive the socket hop.
func (e *clientError) toError() error {
	he := &halerr.HalyardError{
		Code:     "rpc_error",
		Message:  e.Message,
		ExitCode: halerr.ExitGeneral,
	}
	if e.Code <= -32000 && e.Code > -32100 {
		he.ExitCode = -32000 - e.Code
	}
	if e.Data != nil {
		if e.Data.Code != "" {
			he.Code = e.Data.Code
		}
		he.Suggestion = e.Data.Suggestion
		he.Details = e.Data.Details
	}
	return he
}
