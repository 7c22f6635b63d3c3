package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one logical API call. Path is relative to the client's base URL.
//
// Body may be nil, []byte, string, io.Reader or any JSON-encodable value. Readers
// are consumed once so the request can be replayed after a token refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   any
}

// Response is a successful (2xx) API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response into out, unwrapping the {"data": ...} envelope
// when present.
func (r *Response) Decode(out any) error {
	if out == nil || r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.Body, &env); err == nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// attempt is the replayable form of a Request plus its retry marker.
type attempt struct {
	req         *Request
	id          string
	body        []byte
	contentType string
	retried     bool
}

func (c *Client) newAttempt(req *Request) (*attempt, error) {
	if req == nil {
		return nil, fmt.Errorf("apiclient: nil request")
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	a := &attempt{req: req, id: c.requestIDFunc()}

	switch b := req.Body.(type) {
	case nil:
	case []byte:
		a.body = b
	case string:
		a.body = []byte(b)
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		a.body = data
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		a.body = data
		a.contentType = "application/json"
	}
	return a, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
