// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"time"

	log "github.com/golang/glog"
	"github.com/gorilla/rpc/v2/json2"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// Option configures a single request.
type Option func(*Options)

// Options are the headers and query parameters sent with a request.
type Options struct {
	headers     http.Header
	queryParams url.Values
}

// NewOptions applies opts to empty options.
func NewOptions(opts []Option) *Options {
	o := &Options{
		headers:     http.Header{},
		queryParams: url.Values{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(o *Options) { o.headers.Add(key, value) }
}

// WithQueryParam adds a URL query parameter.
func WithQueryParam(key, value string) Option {
	return func(o *Options) { o.queryParams.Add(key, value) }
}

// catalogHTTP posts with keep-alives off; each call is a short request to
// a node that may restart between calls.
var catalogHTTP = &http.Client{
	Timeout:   30 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

// drain discards the rest of body and closes it.
func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

// transient reports whether a failed call may succeed if repeated: the
// node was not accepting yet or dropped the connection mid-call.
func transient(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// SendJSONRequest calls method on the JSON-RPC 2.0 endpoint at uri and
// decodes the result into reply. Transient connection failures are retried
// up to maxRetries times, doubling the wait each time. A catalog miss is
// reported as ErrNotFound.
func SendJSONRequest(
	ctx context.Context,
	uri *url.URL,
	method string,
	params any,
	reply any,
	options ...Option,
) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	ops := NewOptions(options)
	target := *uri
	target.RawQuery = ops.queryParams.Encode()

	wait := retryBaseWait
	for attempt := 1; ; attempt++ {
		err := post(ctx, target.String(), body, ops.headers, reply)
		if err == nil || !transient(err) {
			return err
		}
		if attempt == maxRetries {
			return fmt.Errorf("%s after %d attempts: %w", method, attempt, err)
		}
		log.Warningf("catalog %s on %s, attempt %d: %v", method, uri.Host, attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func post(ctx context.Context, target string, body []byte, headers http.Header, reply any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = headers.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := catalogHTTP.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("catalog: HTTP %d from %s", resp.StatusCode, target)
	}

	err = json2.DecodeClientResponse(resp.Body, reply)
	var jerr *json2.Error
	if errors.As(err, &jerr) && jerr.Code == codeNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, jerr.Message)
	}
	return err
}

// Client calls a catalog endpoint.
type Client struct {
	uri     *url.URL
	options []Option
}

// NewClient returns a client for the catalog at rawURL, e.g.
// "http://127.0.0.1:9650/catalog".
func NewClient(rawURL string, options ...Option) (*Client, error) {
	uri, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{uri: uri, options: options}, nil
}

// List returns the served protocol names.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var reply ListReply
	if err := SendJSONRequest(ctx, c.uri, "Catalog.List", &ListArgs{}, &reply, c.options...); err != nil {
		return nil, err
	}
	return reply.Protocols, nil
}

// Describe returns the description of the named protocol.
func (c *Client) Describe(ctx context.Context, name string) (*Protocol, error) {
	var reply Protocol
	if err := SendJSONRequest(ctx, c.uri, "Catalog.Describe", &DescribeArgs{Name: name}, &reply, c.options...); err != nil {
		return nil, err
	}
	return &reply, nil
}
