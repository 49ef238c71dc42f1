package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv"
	"reduction.dev/mergekv/dkv/storage"
	"reduction.dev/mergekv/server"
)

type client struct {
	t   *testing.T
	url string
}

func newClient(t *testing.T) (client, *dkv.DB) {
	db, err := dkv.Open(dkv.DBOptions{FileSystem: storage.NewMemoryFilesystem()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := httptest.NewServer(server.New(db, nil).Handler())
	t.Cleanup(ts.Close)
	return client{t: t, url: ts.URL}, db
}

func (c client) do(method, path, body string) (int, string) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.url+path, strings.NewReader(body))
	require.NoError(c.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, string(b)
}

type scanResponse struct {
	Entries []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"entries"`
	More bool `json:"more"`
}

func (c client) scan(query string) scanResponse {
	c.t.Helper()
	status, body := c.do(http.MethodGet, "/scan?"+query, "")
	require.Equal(c.t, http.StatusOK, status, body)
	var resp scanResponse
	require.NoError(c.t, json.Unmarshal([]byte(body), &resp))
	return resp
}

func TestPutGetDelete(t *testing.T) {
	c, _ := newClient(t)

	status, _ := c.do(http.MethodPut, "/kv/user:1", "ada")
	assert.Equal(t, http.StatusNoContent, status)

	status, body := c.do(http.MethodGet, "/kv/user:1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ada", body)

	status, _ = c.do(http.MethodDelete, "/kv/user:1", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = c.do(http.MethodGet, "/kv/user:1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPutEmptyBodyDeletes(t *testing.T) {
	c, _ := newClient(t)

	c.do(http.MethodPut, "/kv/a", "1")
	c.do(http.MethodPut, "/kv/a", "")

	status, _ := c.do(http.MethodGet, "/kv/a", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestKeysWithSlashesAndEscapes(t *testing.T) {
	c, db := newClient(t)

	c.do(http.MethodPut, "/kv/dir/file", "1")
	c.do(http.MethodPut, "/kv/"+url.PathEscape("a/b c%"), "2")

	v, err := db.Get([]byte("dir/file"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	v, err = db.Get([]byte("a/b c%"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	status, body := c.do(http.MethodGet, "/kv/"+url.PathEscape("a/b c%"), "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2", body)
}

func TestMissingKey(t *testing.T) {
	c, _ := newClient(t)

	status, _ := c.do(http.MethodGet, "/kv/", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScan(t *testing.T) {
	c, db := newClient(t)
	for _, k := range []string{"b:1", "a:2", "a:1", "a:3", "c:1"} {
		db.Put([]byte(k), []byte("v"+k))
	}
	db.Delete([]byte("a:2"))

	resp := c.scan("prefix=a")
	var keys []string
	for _, e := range resp.Entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a:1", "a:3"}, keys)
	assert.Equal(t, "va:1", resp.Entries[0].Value)
	assert.False(t, resp.More)

	resp = c.scan("limit=2")
	assert.Len(t, resp.Entries, 2)
	assert.True(t, resp.More)

	resp = c.scan("prefix=zzz")
	assert.Empty(t, resp.Entries)

	status, _ := c.do(http.MethodGet, "/scan?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdmin(t *testing.T) {
	c, db := newClient(t)
	c.do(http.MethodPut, "/kv/a", "1")

	status, _ := c.do(http.MethodPost, "/admin/flush", "")
	assert.Equal(t, http.StatusAccepted, status)
	require.NoError(t, db.WaitOnTasks())

	status, body := c.do(http.MethodGet, "/admin/tables", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"tableCounts":[1,0]}`, body)

	status, _ = c.do(http.MethodPost, "/admin/compact", "")
	assert.Equal(t, http.StatusAccepted, status)
	require.NoError(t, db.WaitOnTasks())
	assert.Equal(t, []int{0, 1}, db.TableCounts())

	status, body = c.do(http.MethodGet, "/admin/diagnostics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "000001.sst")
}

func TestHealthAndMetrics(t *testing.T) {
	c, _ := newClient(t)

	status, body := c.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, body = c.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "table_rows_read")

	status, body = c.do(http.MethodGet, "/metrics/http", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `route="/health"`)
}
