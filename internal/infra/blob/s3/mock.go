package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store backed by an in-memory fake HTTP transport.
// Only the S3 operations used by core.Store are implemented.
func NewMockForTests() *Store {
	rt := &mockRoundTripper{state: make(map[string]mockObj)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}
}

// mockRoundTripper handles Head/Get (with Range)/Put/Delete/ListObjectsV2.
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]mockObj
}

type mockObj struct {
	body        []byte
	contentType string
	meta        map[string]string
}

const metaHeaderPrefix = "X-Amz-Meta-"

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix")), nil
	}
	st, exists := m.state[key]
	switch req.Method {
	case http.MethodHead:
		if !exists {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		return respond(http.StatusOK, nil, st.header(len(st.body))), nil
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if isChunked(req.Header) {
			if dec, ok := decodeChunked(body); ok {
				body = dec
			}
		}
		if !exists {
			obj := mockObj{body: body, contentType: req.Header.Get("Content-Type"), meta: map[string]string{}}
			for h, v := range req.Header {
				if strings.HasPrefix(h, metaHeaderPrefix) && len(v) > 0 {
					obj.meta[strings.ToLower(strings.TrimPrefix(h, metaHeaderPrefix))] = v[0]
				}
			}
			m.state[key] = obj
		}
		return respond(http.StatusOK, nil, http.Header{"Etag": {"\"etag\""}}), nil
	case http.MethodGet:
		if !exists {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		rng := req.Header.Get("Range")
		if rng == "" {
			return respond(http.StatusOK, st.body, st.header(len(st.body))), nil
		}
		start, end, valid := parseRange(rng, int64(len(st.body)))
		if !valid {
			return respond(http.StatusRequestedRangeNotSatisfiable, []byte("<Error><Code>InvalidRange</Code></Error>"), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		chunk := st.body[start : end+1]
		h := st.header(len(chunk))
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(st.body)))
		return respond(http.StatusPartialContent, chunk, h), nil
	case http.MethodDelete:
		delete(m.state, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockRoundTripper) list(prefix string) *http.Response {
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult><IsTruncated>false</IsTruncated>")
	for _, k := range keys {
		b.WriteString("<Contents><Key>")
		_ = xml.EscapeText(&b, []byte(k))
		fmt.Fprintf(&b, "</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func (o mockObj) header(n int) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(n)},
		"Content-Type":   {o.contentType},
		"Etag":           {"\"etag123\""},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range o.meta {
		h.Set(metaHeaderPrefix+k, v)
	}
	return h
}

func respond(code int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(bytes.NewReader(body)), Header: h, ContentLength: int64(len(body))}
}

// parseRange handles the single "bytes=a-b" form the store sends.
func parseRange(h string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(h, "bytes=")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(a, 10, 64)
	if err != nil || start >= size {
		return 0, 0, false
	}
	end, err = strconv.ParseInt(b, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, min(end, size-1), true
}

func isChunked(h http.Header) bool {
	return strings.Contains(h.Get("Content-Encoding"), "aws-chunked") || h.Get("X-Amz-Decoded-Content-Length") != ""
}

// decodeChunked decodes an aws-chunked payload: a sequence of
// "<hex>[;ext]\r\n<data>\r\n" chunks ending with a zero-length chunk.
func decodeChunked(b []byte) ([]byte, bool) {
	var out []byte
	for {
		line, rest, found := bytes.Cut(b, []byte("\r\n"))
		if !found {
			return nil, false
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		sz, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || sz < 0 || int64(len(rest)) < sz {
			return nil, false
		}
		if sz == 0 {
			return out, true
		}
		out = append(out, rest[:sz]...)
		b = bytes.TrimPrefix(rest[sz:], []byte("\r\n"))
	}
}
