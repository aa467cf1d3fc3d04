package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-pool/pkg/simplepool"
	"github.com/tendant/simple-pool/pkg/simplepool/api"
	"github.com/tendant/simple-pool/pkg/simplepool/fingerprint"
	"github.com/tendant/simple-pool/pkg/simplepool/idalloc"
	storagememory "github.com/tendant/simple-pool/pkg/simplepool/storage/memory"
	storememory "github.com/tendant/simple-pool/pkg/simplepool/store/memory"
)

func newTestServer(t *testing.T, moderated bool) *httptest.Server {
	t.Helper()
	store := storememory.New()
	media := storagememory.New()
	alloc := idalloc.New(store, idalloc.Config{
		ApprovedPath: "approved.json",
		PendingPath:  "pending.json",
		StatusPath:   "status.json",
	})
	index := fingerprint.New(store, media, fingerprint.Config{Path: "fingerprints.json"})

	svc, err := simplepool.New(
		simplepool.WithCollectionStore(store),
		simplepool.WithMediaStore(media),
		simplepool.WithAllocator(alloc),
		simplepool.WithFingerprintIndex(index),
		simplepool.WithModeration(moderated),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))

	server := httptest.NewServer(api.NewHandler(svc).Routes())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func submitText(t *testing.T, server *httptest.Server, text, contributor string) simplepool.IngestResult {
	t.Helper()
	resp := postJSON(t, server.URL+"/submissions", simplepool.IngestRequest{
		Elements:      []simplepool.IngestElement{{Type: simplepool.ElementText, Content: text}},
		ContributorID: contributor,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[simplepool.IngestResult](t, resp)
}

func TestIngestEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	result := submitText(t, server, "hello over http", "alice")
	require.NotNil(t, result.Record)
	assert.Equal(t, int64(1), result.Record.ID)
	assert.False(t, result.Pending)
}

func TestIngestEndpointDuplicateAnswers409(t *testing.T) {
	server := newTestServer(t, false)
	submitText(t, server, "only once", "alice")

	resp := postJSON(t, server.URL+"/submissions", simplepool.IngestRequest{
		Elements:      []simplepool.IngestElement{{Type: simplepool.ElementText, Content: "Only   ONCE"}},
		ContributorID: "bob",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	result := decode[simplepool.IngestResult](t, resp)
	require.NotNil(t, result.Duplicate)
	assert.Equal(t, int64(1), result.Duplicate.RecordID)
}

func TestIngestEndpointEmptyAnswers400(t *testing.T) {
	server := newTestServer(t, false)

	resp := postJSON(t, server.URL+"/submissions", simplepool.IngestRequest{ContributorID: "alice"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEndpointMalformedBody(t *testing.T) {
	server := newTestServer(t, false)

	resp, err := http.Post(server.URL+"/submissions", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModerationEndpoints(t *testing.T) {
	server := newTestServer(t, true)
	result := submitText(t, server, "awaiting review", "alice")
	assert.True(t, result.Pending)

	resp, err := http.Post(fmt.Sprintf("%s/moderation/%d/approve", server.URL, result.Record.ID), "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moderation := decode[simplepool.ModerationResult](t, resp)
	assert.Equal(t, 1, moderation.Processed)

	resp, err = http.Get(server.URL + "/approved")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decode[[]simplepool.Record](t, resp)
	assert.Len(t, approved, 1)
}

func TestModerateAllEndpoint(t *testing.T) {
	server := newTestServer(t, true)
	submitText(t, server, "one", "alice")
	submitText(t, server, "two", "alice")

	resp, err := http.Post(server.URL+"/moderation/all/reject", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moderation := decode[simplepool.ModerationResult](t, resp)
	assert.Equal(t, 2, moderation.Processed)
}

func TestModerationEndpointBadAction(t *testing.T) {
	server := newTestServer(t, true)

	resp, err := http.Post(server.URL+"/moderation/1/destroy", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModerationEndpointUnknownID(t *testing.T) {
	server := newTestServer(t, true)

	resp, err := http.Post(server.URL+"/moderation/42/approve", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryDuplicatesEndpoint(t *testing.T) {
	server := newTestServer(t, false)
	submitText(t, server, "known text", "alice")

	resp := postJSON(t, server.URL+"/duplicates/query", simplepool.QueryDuplicatesRequest{
		Texts: []string{"known text"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[simplepool.DuplicateReport](t, resp)
	require.Len(t, report.Texts, 1)
	require.NotNil(t, report.Texts[0])
	assert.Equal(t, int64(1), report.Texts[0].RecordID)
}

func TestGetRecordEndpoint(t *testing.T) {
	server := newTestServer(t, false)
	submitText(t, server, "fetch me", "alice")

	resp, err := http.Get(server.URL + "/records/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := decode[simplepool.Record](t, resp)
	assert.Equal(t, "fetch me", record.Elements[0].Content)

	resp, err = http.Get(server.URL + "/records/99")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/records/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRandomEndpoint(t *testing.T) {
	server := newTestServer(t, false)

	resp, err := http.Get(server.URL + "/records/random")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "empty pool has nothing to pick")

	submitText(t, server, "the only record", "alice")

	resp, err = http.Get(server.URL + "/records/random")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	record := decode[simplepool.Record](t, resp)
	assert.Equal(t, "the only record", record.Elements[0].Content)
}

func TestDeleteEndpointPermissions(t *testing.T) {
	server := newTestServer(t, false)
	submitText(t, server, "protected", "alice")

	doDelete := func(query string) int {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/records/1"+query, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, doDelete("?requesterId=mallory"))
	assert.Equal(t, http.StatusNoContent, doDelete("?requesterId=alice"))
	assert.Equal(t, http.StatusNotFound, doDelete(""))
}

func TestContributorRecordsEndpoint(t *testing.T) {
	server := newTestServer(t, false)
	submitText(t, server, "by alice", "alice")
	submitText(t, server, "by bob", "bob")

	resp, err := http.Get(server.URL + "/contributors/alice/records")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]simplepool.Record](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].ContributorID)
}

func TestListPendingEndpoint(t *testing.T) {
	server := newTestServer(t, true)
	submitText(t, server, "queued", "alice")

	resp, err := http.Get(server.URL + "/pending")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]simplepool.Record](t, resp)
	assert.Len(t, records, 1)
}
