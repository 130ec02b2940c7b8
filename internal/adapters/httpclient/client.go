package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/ports"
)

const (
	// DefaultTimeout bounds every request that does not carry its own timeout.
	DefaultTimeout   = 3 * time.Second
	defaultUserAgent = "np-relay/1.0"
	maxBodyBytes     = 1 << 20
)

// Options configures the client.
type Options struct {
	Roots     Roots
	Timeout   time.Duration
	UserAgent string
	Logger    *zap.Logger
	Transport http.RoundTripper
}

// Client executes HTTP requests for every poll. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	http      *http.Client
	log       *zap.Logger
	timeout   time.Duration
	userAgent string
}

var _ ports.Executor = (*Client)(nil)

// New builds a client verifying servers against the resolved roots.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(opts.Roots)
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			// Redirects are followed; the timeout comes from the request context.
		},
		log:       opts.Logger,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
}

// NewTransport returns a pooled transport verifying servers against roots.
func NewTransport(roots Roots) *http.Transport {
	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    roots.Pool,
		MinVersion: tls.VersionTLS12,
	}
	return transport
}

// Execute performs req. Every non-2xx status is returned as a response; only
// transport failures produce a *core.TransportError. A body over 1 MiB is
// dropped and reported as ports.ErrBodyTooLarge.
func (c *Client) Execute(ctx context.Context, req ports.Request) (ports.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.do(ctx, method, req)
	elapsed := time.Since(start)
	if errors.Is(err, ports.ErrBodyTooLarge) {
		c.log.Debug("http client call",
			zap.String("method", method),
			zap.String("uri", req.URL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return resp, err
	}
	if err != nil {
		terr := &core.TransportError{Kind: classify(ctx, err), Method: method, URI: req.URL, Err: err}
		c.log.Debug("http client call failed",
			zap.String("method", method),
			zap.String("uri", req.URL),
			zap.String("kind", terr.Kind.String()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return ports.Response{}, terr
	}
	c.log.Debug("http client call",
		zap.String("method", method),
		zap.String("uri", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, req ports.Request) (ports.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return ports.Response{}, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ports.Response{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return ports.Response{}, err
	}
	out := ports.Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if len(payload) > maxBodyBytes {
		return out, fmt.Errorf("%s %s: %w (limit %d bytes)", method, req.URL, ports.ErrBodyTooLarge, maxBodyBytes)
	}
	out.Body = payload
	return out, nil
}

func classify(ctx context.Context, err error) core.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return core.KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.KindTimeout
	}
	if isTLSError(err) {
		return core.KindTLSFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return core.KindConnectionRefused
	}
	// DNS failures, resets and premature EOFs all mean no usable exchange.
	return core.KindConnectionRefused
}

func isTLSError(err error) bool {
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	var verification *tls.CertificateVerificationError
	var header tls.RecordHeaderError
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &hostname),
		errors.As(err, &invalid),
		errors.As(err, &verification),
		errors.As(err, &header):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}
