package azblob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/intunedeploy/internal/common"
	"github.com/dmitrijs2005/intunedeploy/internal/logging"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeBlobStore emulates the block-blob write protocol: staged blocks by id,
// materialized on blocklist commit in list order.
type fakeBlobStore struct {
	mu        sync.Mutex
	staged    map[string][]byte
	committed []byte
	listCT    string
	sasSeen   bool
}

func (s *fakeBlobStore) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		s.mu.Lock()
		defer s.mu.Unlock()

		if r.URL.Query().Get("sas") == "token" {
			s.sasSeen = true
		}

		switch r.URL.Query().Get("comp") {
		case "block":
			id := r.URL.Query().Get("blockid")
			require.NotEmpty(t, id)
			s.staged[id] = body
		case "blocklist":
			s.listCT = r.Header.Get("Content-Type")
			var list struct {
				Latest []string `xml:"Latest"`
			}
			require.NoError(t, xml.Unmarshal(body, &list))
			s.committed = nil
			for _, id := range list.Latest {
				block, ok := s.staged[id]
				require.True(t, ok, "blocklist references unknown block %s", id)
				s.committed = append(s.committed, block...)
			}
		default:
			t.Errorf("unexpected comp parameter %q", r.URL.Query().Get("comp"))
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func writePayload(t *testing.T, size int) (string, []byte) {
	t.Helper()
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, payload, 0o600))
	return path, payload
}

func TestUpload_SingleBlock(t *testing.T) {
	store := &fakeBlobStore{staged: map[string][]byte{}}
	srv := httptest.NewServer(store.handler(t))
	t.Cleanup(srv.Close)

	path, payload := writePayload(t, 100)

	u := NewUploader(nil, testLogger(), 0, 0)
	require.NoError(t, u.Upload(context.Background(), path, srv.URL+"/container/blob?sas=token"))

	require.Equal(t, payload, store.committed)
	require.Equal(t, "application/xml", store.listCT)
	require.True(t, store.sasSeen, "SAS query parameters must be preserved")
}

func TestUpload_MultiBlockReconstruction(t *testing.T) {
	store := &fakeBlobStore{staged: map[string][]byte{}}
	srv := httptest.NewServer(store.handler(t))
	t.Cleanup(srv.Close)

	// 5 full blocks plus a 17-byte tail, uploaded concurrently
	path, payload := writePayload(t, 5*64+17)

	u := NewUploader(nil, testLogger(), 64, 3)
	require.NoError(t, u.Upload(context.Background(), path, srv.URL+"/c/b?sas=token"))

	require.Len(t, store.staged, 6)
	require.Equal(t, payload, store.committed, "content must equal block-list order regardless of upload order")
}

func TestUpload_EmptyPayloadCommitsEmptyList(t *testing.T) {
	store := &fakeBlobStore{staged: map[string][]byte{}}
	srv := httptest.NewServer(store.handler(t))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	u := NewUploader(nil, testLogger(), 64, 1)
	require.NoError(t, u.Upload(context.Background(), path, srv.URL+"/c/b"))
	require.Empty(t, store.staged)
	require.Empty(t, store.committed)
}

func TestUpload_BlockFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "SAS expired", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	path, _ := writePayload(t, 100)

	u := NewUploader(nil, testLogger(), 64, 1)
	err := u.Upload(context.Background(), path, srv.URL+"/c/b")
	require.ErrorIs(t, err, common.ErrUploadFailed)
	require.Contains(t, err.Error(), "403")
}

func TestUpload_BlockListFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("comp") == "blocklist" {
			http.Error(w, "bad list", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	path, _ := writePayload(t, 10)

	u := NewUploader(nil, testLogger(), 64, 1)
	err := u.Upload(context.Background(), path, srv.URL+"/c/b")
	require.ErrorIs(t, err, common.ErrUploadFailed)
}

// failingReader yields one block of data, then a read error.
type failingReader struct {
	data []byte
	err  error
	used bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.used {
		return 0, r.err
	}
	r.used = true
	return copy(p, r.data), nil
}

func TestUpload_ReadFailureWaitsForInFlightBlocks(t *testing.T) {
	var finished atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		finished.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	rdr := &failingReader{data: bytes.Repeat([]byte{0xAB}, 64), err: errors.New("payload vanished")}

	u := NewUploader(nil, testLogger(), 64, 2)
	err := u.upload(context.Background(), rdr, srv.URL+"/c/b")
	require.ErrorIs(t, err, common.ErrUploadFailed)
	require.Contains(t, err.Error(), "read payload")

	// the block PUT started before the read error must have completed
	require.Equal(t, int32(1), finished.Load())
}

func TestUpload_MissingPayload(t *testing.T) {
	u := NewUploader(nil, testLogger(), 0, 0)
	err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), "http://unused")
	require.ErrorIs(t, err, common.ErrUploadFailed)
}

func TestBlockID(t *testing.T) {
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("00000")), blockID(0))
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("00042")), blockID(42))

	// ids sort in generation order
	require.True(t, bytes.Compare([]byte(blockID(1)), []byte(blockID(2))) < 0)
}
