package events

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// SSETransport reads a text/event-stream over HTTP GET.
type SSETransport struct {
	url    string
	client *http.Client
}

// NewSSETransport returns a transport for the stream at url. A nil client
// uses a client without timeout, since the response never ends.
func NewSSETransport(url string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{url: url, client: client}
}

// Open starts the request. The response body is bound to ctx.
func (t *SSETransport) Open(ctx context.Context, token string) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, errors.CreateWithCause(errors.CodeRequestBuild, err)
	}
	req.Header = authHeader(token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.CreateWithCause(errors.CodeConnectionFailed, err).WithPath(t.url)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, statusError(t.url, resp.StatusCode)
	}
	return &sseStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

type sseStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

// Next returns the data of the next non-empty event. Multi-line data is
// joined with "\n"; comments and fields other than data are skipped.
func (s *sseStream) Next() ([]byte, error) {
	var data bytes.Buffer
	hasData := false
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// A partial event at end of stream is discarded.
			return nil, errors.CreateWithCause(errors.CodeConnectionDropped, err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData && data.Len() > 0 {
				return data.Bytes(), nil
			}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
