package supervisor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikey-austin/np_relay/internal/ports"
)

// DefaultURL is supervisord's stock inet_http_server endpoint.
const DefaultURL = "http://127.0.0.1:9001/RPC2"

// Options configures the supervisord client.
type Options struct {
	URL      string
	Username string
	Password string
	// Process, when set, is checked with getProcessInfo instead of the
	// supervisor's own state.
	Process string
	Timeout time.Duration
}

// Client asks supervisord whether the relayed streaming servers are up.
type Client struct {
	exec ports.Executor
	opts Options
}

var _ ports.ProcessMonitor = (*Client)(nil)

// New creates a client that issues XML-RPC calls through exec.
func New(exec ports.Executor, opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	return &Client{exec: exec, opts: opts}
}

// IsRunning reports whether the supervisor, or the configured process, is in
// the RUNNING state.
func (c *Client) IsRunning(ctx context.Context) (bool, error) {
	method := "supervisor.getState"
	var params []string
	if c.opts.Process != "" {
		method = "supervisor.getProcessInfo"
		params = []string{c.opts.Process}
	}
	value, err := c.call(ctx, method, params...)
	if err != nil {
		return false, err
	}
	return value.member("statename").text() == "RUNNING", nil
}

func (c *Client) call(ctx context.Context, method string, params ...string) (rpcValue, error) {
	body, err := encodeCall(method, params)
	if err != nil {
		return rpcValue{}, err
	}
	header := http.Header{}
	header.Set("Content-Type", "text/xml")
	if c.opts.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(c.opts.Username + ":" + c.opts.Password))
		header.Set("Authorization", "Basic "+token)
	}
	resp, err := c.exec.Execute(ctx, ports.Request{
		Method:  http.MethodPost,
		URL:     c.opts.URL,
		Header:  header,
		Body:    body,
		Timeout: c.opts.Timeout,
	})
	if err != nil {
		return rpcValue{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return rpcValue{}, fmt.Errorf("%s: status %d", method, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := xml.Unmarshal(resp.Body, &decoded); err != nil {
		return rpcValue{}, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Fault != nil {
		return rpcValue{}, fmt.Errorf("%s: fault %s: %s", method,
			decoded.Fault.Value.member("faultCode").text(),
			decoded.Fault.Value.member("faultString").text())
	}
	if len(decoded.Params) == 0 {
		return rpcValue{}, fmt.Errorf("%s: empty response", method)
	}
	return decoded.Params[0].Value, nil
}

type rpcCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName string     `xml:"methodName"`
	Params     []rpcParam `xml:"params>param"`
}

type rpcParam struct {
	Value rpcValue `xml:"value"`
}

type rpcResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []rpcParam `xml:"params>param"`
	Fault   *rpcParam  `xml:"fault"`
}

type rpcMember struct {
	Name  string   `xml:"name"`
	Value rpcValue `xml:"value"`
}

// rpcValue covers the scalar and struct shapes supervisord returns.
type rpcValue struct {
	String  *string     `xml:"string,omitempty"`
	Int     *string     `xml:"int,omitempty"`
	I4      *string     `xml:"i4,omitempty"`
	Boolean *string     `xml:"boolean,omitempty"`
	Members []rpcMember `xml:"struct>member,omitempty"`
	Raw     string      `xml:",chardata"`
}

func (v rpcValue) member(name string) rpcValue {
	for _, m := range v.Members {
		if m.Name == name {
			return m.Value
		}
	}
	return rpcValue{}
}

func (v rpcValue) text() string {
	for _, s := range []*string{v.String, v.Int, v.I4, v.Boolean} {
		if s != nil {
			return strings.TrimSpace(*s)
		}
	}
	return strings.TrimSpace(v.Raw)
}

func encodeCall(method string, params []string) ([]byte, error) {
	call := rpcCall{MethodName: method}
	for _, p := range params {
		p := p
		call.Params = append(call.Params, rpcParam{Value: rpcValue{String: &p}})
	}
	out, err := xml.Marshal(call)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), bytes.TrimSpace(out)...), nil
}
