// Package httpclient provides basic http functions
package httpclient

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// FeedFetch holds the payload and response metadata from one retrieval of a feed url
type FeedFetch struct {
	Payload      []byte
	ETag         string
	LastModified int64
	RetrievedAt  time.Time
}

// IsDifferent returns true when the response metadata indicates the feed content changed
// since the provided etag and lastModified values
func (f *FeedFetch) IsDifferent(etag string, lastModified int64) bool {
	if len(f.ETag) > 0 {
		return f.ETag != etag
	}
	return f.LastModified != lastModified
}

// RetrieveFeedBytes pulls bytes from url using simple GET request, capturing ETag and
// Last-Modified headers when the source provides them
func RetrieveFeedBytes(url string) (*FeedFetch, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d retrieving %s", resp.StatusCode, url)
	}

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	if err != nil {
		return nil, err
	}

	result := FeedFetch{
		Payload:     buf.Bytes(),
		ETag:        resp.Header.Get("ETag"),
		RetrievedAt: time.Now(),
	}
	lastModifiedString := resp.Header.Get("Last-Modified")
	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModified = parsedTime.Unix()
		}
	}
	return &result, nil
}
