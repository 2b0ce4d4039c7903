package emodul

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// get issues a GET for path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, header http.Header, out any) error {
	return c.do(ctx, http.MethodGet, path, header, nil, out)
}

// post marshals body as JSON, POSTs it to path and decodes the reply into out.
func (c *Client) post(ctx context.Context, path string, header http.Header, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, header, payload, out)
}

// do is the single request path. The URL is baseURL+path with no
// normalisation. Cookies from every response are merged into the store
// before the status is checked.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, payload []byte, out any) error {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request for %s: %w", method, path, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.cookies.apply(req)

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending emodul request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if n := c.cookies.Merge(resp.Cookies()); n > 0 {
		c.logger.WithField("cookies", n).Debug("Updated emodul session cookies")
	}

	raw, err := readBody(resp)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return &ProtocolError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("read response body of %s: %w", path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"status_code":   resp.StatusCode,
		"response_size": len(raw),
		"path":          path,
	}).Debug("Received emodul response")

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"path":        path,
		}).Warn("Invalid response from emodul API")
		return &ProtocolError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		out = new(json.RawMessage)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// readBody reads the body, inflating it when the server honoured our
// explicit gzip Accept-Encoding (net/http only does that transparently when
// it set the header itself).
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return io.ReadAll(r)
}
