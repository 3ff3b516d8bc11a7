package pagination

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("page size = %d, want %d", params.PageSize, DefaultPageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("page token = %q, want empty", params.PageToken)
	}
}

func TestParseRespectsOptions(t *testing.T) {
	values := url.Values{}
	params, err := Parse(values, Options{DefaultPageSize: 10, MaxPageSize: 25})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageSize != 10 {
		t.Fatalf("page size = %d, want 10", params.PageSize)
	}

	values.Set("pageSize", "25")
	params, err = Parse(values, Options{DefaultPageSize: 10, MaxPageSize: 25})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageSize != 25 {
		t.Fatalf("page size = %d, want 25", params.PageSize)
	}
}

func TestParseRejectsInvalidPageSize(t *testing.T) {
	cases := map[string]string{
		"non-numeric": "abc",
		"zero":        "0",
		"negative":    "-3",
		"too large":   "500",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			values := url.Values{}
			values.Set("pageSize", raw)
			if _, err := Parse(values, Options{MaxPageSize: 100}); !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("err = %v, want ErrInvalidPageSize", err)
			}
		})
	}
}

func TestParseTrimsPageToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "  abc123  ")
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageToken != "abc123" {
		t.Fatalf("page token = %q, want abc123", params.PageToken)
	}
}

func TestParseRejectsOversizedToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", strings.Repeat("x", maxPageTokenLength+1))
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("err = %v, want ErrInvalidPageToken", err)
	}
}
