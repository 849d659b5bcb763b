package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request describes a JSON call to a provider API.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    any
	Service string
}

// DoJSON encodes r.Body as JSON, executes the call and decodes a 2xx response
// into out (skipped when out is nil). Non-2xx responses are translated by
// ParseResponseError.
func DoJSON(ctx context.Context, d Doer, r Request, out any) error {
	var body []byte
	if r.Body != nil {
		buf, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.Service, err)
		}
		body = buf
	}
	return do(ctx, d, r, body, "application/json", out)
}

// DoForm sends form as an application/x-www-form-urlencoded body and decodes
// the JSON response like DoJSON. r.Body is ignored.
func DoForm(ctx context.Context, d Doer, r Request, form url.Values, out any) error {
	return do(ctx, d, r, []byte(form.Encode()), "application/x-www-form-urlencoded", out)
}

func do(ctx context.Context, d Doer, r Request, payload []byte, contentType string, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.Service, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseResponseError(resp, r.Service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.Service, err)
	}
	return nil
}
