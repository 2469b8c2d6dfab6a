// Package apiclient provides the HTTP client used to reach the external key
// manager: JSON bodies, bounded connection pool, idle-connection timeouts and
// optional mutual TLS.
package apiclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cardvault/locker/internal/errors"
)

// Client error taxonomy. Callers collapse these into a single key manager
// error class at the call site.
var (
	// ErrRequestConstruction indicates the request could not be built.
	ErrRequestConstruction = errors.New("failed to construct api request")

	// ErrTransport indicates the request could not be delivered.
	ErrTransport = errors.New("failed to send api request")

	// ErrBadStatus indicates the peer answered with a non-2xx status.
	ErrBadStatus = errors.New("unexpected api response status")

	// ErrUnauthorized indicates the peer rejected the credentials (401).
	ErrUnauthorized = errors.Wrap(errors.ErrUnauthorized, "api request unauthorized")

	// ErrDecoding indicates the response body could not be decoded.
	ErrDecoding = errors.New("failed to decode api response")
)

// Config tunes the underlying HTTP transport.
type Config struct {
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxConnsPerHost int

	// PEM material enabling mutual TLS when all three are set.
	CACert     string
	ClientCert string
	ClientKey  string
}

// Client wraps resty with the vault's defaults.
type Client struct {
	resty *resty.Client
}

// New creates a Client. When the config carries client identity and CA
// material, the transport performs mutual TLS against the peer.
func New(cfg Config) (*Client, error) {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" && cfg.CACert != "" {
		identity, err := tls.X509KeyPair([]byte(cfg.ClientCert), []byte(cfg.ClientKey))
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidInput, "invalid client identity for mTLS")
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, errors.Wrap(errors.ErrInvalidInput, "invalid CA certificate for mTLS")
		}

		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{identity},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		}
	}

	client := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{resty: client}, nil
}

// Post sends a JSON POST and decodes a 2xx JSON response into result.
// Headers are applied on top of the client defaults.
func (c *Client) Post(
	ctx context.Context,
	url string,
	headers map[string]string,
	body any,
	result any,
) error {
	request := c.resty.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body)
	if result != nil {
		request.SetResult(result)
	}

	response, err := request.Post(url)

	return c.verdict(response, err)
}

// Get sends a GET with the given headers and decodes a 2xx JSON response into
// result (pass nil to discard the body).
func (c *Client) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	result any,
) error {
	request := c.resty.R().
		SetContext(ctx).
		SetHeaders(headers)
	if result != nil {
		request.SetResult(result)
	}

	response, err := request.Get(url)

	return c.verdict(response, err)
}

// verdict maps a resty outcome to the client error taxonomy.
func (c *Client) verdict(response *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}

	switch {
	case response.IsSuccess():
		return nil
	case response.StatusCode() == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return errors.Wrap(ErrBadStatus, response.Status())
	}
}
