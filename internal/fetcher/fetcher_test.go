package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"freegames_bot/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/giveaways.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantItems: 6,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			entries, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrFetch) {
					t.Errorf("expected ErrFetch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantItems, len(entries)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	xml := loadFixture(t, "../../testdata/giveaways.xml")
	body := xml + "<!--" + strings.Repeat("x", maxBodySize) + "-->"

	_, err := New(&mockTransport{body: body, statusCode: 200}).Fetch(context.Background(), "https://example.com/rss")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if !strings.Contains(err.Error(), "feed too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestFetchMapsEntries(t *testing.T) {
	xml := loadFixture(t, "../../testdata/giveaways.xml")
	f := New(&mockTransport{body: xml, statusCode: 200})

	entries, err := f.Fetch(context.Background(), "https://example.com/rss")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	want := model.RawEntry{
		GUID:  "gp-1",
		Title: "Hades (Epic Games) Giveaway",
		Link:  "https://www.gamerpower.com/hades-epic",
	}
	if diff := cmp.Diff(want, entries[0]); diff != "" {
		t.Errorf("first entry mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("", entries[5].Link); diff != "" {
		t.Errorf("linkless entry mismatch (-want +got):\n%s", diff)
	}
}

func TestNewHTTPClient(t *testing.T) {
	if c := NewHTTPClient(false, 10*time.Second); c == nil {
		t.Fatal("expected plain client")
	}
	if c := NewHTTPClient(true, 10*time.Second); c == nil {
		t.Fatal("expected safe client")
	}
}
