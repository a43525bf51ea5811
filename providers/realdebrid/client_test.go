package realdebrid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedl/internal"
	"onedl/utils"
)

type fakeAPI struct {
	mu       sync.Mutex
	status   string
	selected string
	deleted  []string
	calls    map[string]int
	infoCode int
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) setStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeAPI) selection() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

func (f *fakeAPI) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{status: "waiting_files_selection", calls: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /torrents/addMagnet", func(w http.ResponseWriter, r *http.Request) {
		api.hit("addMagnet")
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad_token","error_code":8}`))
			return
		}
		if r.FormValue("magnet") == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"parameter_missing","error_code":2}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"T1","uri":"https://real-debrid.com/torrents/T1"}`))
	})
	mux.HandleFunc("GET /torrents/info/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.hit("info")
		api.mu.Lock()
		status, code := api.status, api.infoCode
		api.mu.Unlock()
		if code != 0 {
			w.WriteHeader(code)
			return
		}
		switch status {
		case "downloaded":
			w.Write([]byte(`{"id":"T1","filename":"Show","status":"downloaded","progress":100,
				"files":[{"id":1,"path":"/Show/e01.mkv","bytes":100,"selected":1},
				         {"id":2,"path":"/Show/sample.mkv","bytes":5,"selected":0},
				         {"id":3,"path":"/Show/e02.mkv","bytes":200,"selected":1}],
				"links":["https://real-debrid.com/d/A","https://real-debrid.com/d/B"]}`))
		default:
			w.Write([]byte(`{"id":"T1","filename":"Show","status":"` + status + `","progress":42.5,"speed":2048,"seeders":7,
				"files":[{"id":1,"path":"/Show/e01.mkv","bytes":100,"selected":0},
				         {"id":2,"path":"/Show/sample.mkv","bytes":5,"selected":0},
				         {"id":3,"path":"/Show/e02.mkv","bytes":200,"selected":0}],
				"links":[]}`))
		}
	})
	mux.HandleFunc("POST /torrents/selectFiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.hit("selectFiles")
		api.mu.Lock()
		api.selected = r.FormValue("files")
		api.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /torrents/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.deleted = append(api.deleted, r.PathValue("id"))
		api.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /unrestrict/link", func(w http.ResponseWriter, r *http.Request) {
		api.hit("unrestrict")
		switch r.FormValue("link") {
		case "https://unsupported.example/f":
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"hoster_unsupported","error_code":16}`))
		case "https://dead.example/f":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unavailable_file","error_code":19}`))
		default:
			w.Write([]byte(`{"id":"U1","filename":"movie.mkv","filesize":1234,
				"link":"` + r.FormValue("link") + `","download":"https://dl.real-debrid.com/U1/movie.mkv"}`))
		}
	})
	mux.HandleFunc("POST /unrestrict/check", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("link") == "https://unsupported.example/f" {
			w.Write([]byte(`{"host":"unsupported.example","supported":0}`))
			return
		}
		w.Write([]byte(`{"host":"host.example","link":"https://host.example/f","filename":"f.bin","filesize":10,"supported":1}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	httpClient := utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:     5 * time.Second,
		RetryConfig: &utils.RetryConfig{MaxAttempts: 1},
	})
	client := New("secret", httpClient)
	client.baseURL = server.URL
	return client, api
}

var testMagnet = internal.NewMagnet("magnet:?xt=urn:btih:abc", "abc", "Show")

func TestClient_MagnetFlow(t *testing.T) {
	client, api := newTestClient(t)
	ctx := context.Background()

	job, err := client.Submit(ctx, testMagnet)
	require.NoError(t, err)
	assert.Equal(t, "T1", job.RemoteID)
	assert.Equal(t, internal.StateSubmitted, job.State)

	result, err := client.Poll(ctx, job)
	require.NoError(t, err)
	require.Equal(t, internal.StateAwaitingSelection, result.State)
	require.Len(t, result.Files, 3)
	assert.Equal(t, "Show/e01.mkv", result.Files[0].Name)
	assert.Equal(t, "3", result.Files[2].ID)

	require.NoError(t, client.Select(ctx, job, result.Files, internal.SelectionSet{1, 3}))
	assert.Equal(t, "1,3", api.selection())

	api.setStatus("downloading")
	result, err = client.Poll(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, internal.StateProcessing, result.State)
	assert.Equal(t, 42.5, result.Progress.Percent)
	assert.Equal(t, int64(2048), result.Progress.RateBytesPerSec)
	assert.Equal(t, 7, result.Progress.Peers)

	api.setStatus("downloaded")
	result, err = client.Poll(ctx, job)
	require.NoError(t, err)
	require.Equal(t, internal.StateReady, result.State)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "Show/e01.mkv", result.Files[0].Name)
	assert.Equal(t, "https://real-debrid.com/d/A", result.Files[0].Link)
	assert.Equal(t, "Show/e02.mkv", result.Files[1].Name)
	assert.Equal(t, "https://real-debrid.com/d/B", result.Files[1].Link)

	url, err := client.Unlock(ctx, result.Files[0])
	require.NoError(t, err)
	assert.Equal(t, "https://dl.real-debrid.com/U1/movie.mkv", url)

	require.NoError(t, client.Remove(ctx, job))
	assert.Equal(t, []string{"T1"}, api.deletedIDs())
}

func TestClient_ErrorState(t *testing.T) {
	client, api := newTestClient(t)
	api.setStatus("dead")

	job, err := client.Submit(context.Background(), testMagnet)
	require.NoError(t, err)

	result, err := client.Poll(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, internal.StateError, result.State)
	assert.Contains(t, result.Message, "dead")
}

func TestMapStatus(t *testing.T) {
	tests := map[string]internal.JobState{
		"magnet_conversion":       internal.StateSubmitted,
		"waiting_files_selection": internal.StateAwaitingSelection,
		"waiting_files":           internal.StateAwaitingSelection,
		"queued":                  internal.StateProcessing,
		"downloading":             internal.StateProcessing,
		"compressing":             internal.StateProcessing,
		"uploading":               internal.StateProcessing,
		"downloaded":              internal.StateReady,
		"magnet_error":            internal.StateError,
		"error":                   internal.StateError,
		"virus":                   internal.StateError,
		"dead":                    internal.StateError,
	}
	for status, want := range tests {
		assert.Equal(t, want, mapStatus(status), status)
	}
}

func TestClient_HosterSubmitIsReady(t *testing.T) {
	client, api := newTestClient(t)
	ctx := context.Background()

	job, err := client.Submit(ctx, internal.NewHosterLink("https://host.example/f"))
	require.NoError(t, err)
	assert.Equal(t, internal.StateReady, job.State)

	before := api.count("unrestrict")
	result, err := client.Poll(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, before, api.count("unrestrict"), "polling a hoster job makes no request")
	require.Len(t, result.Files, 1)
	assert.Equal(t, "movie.mkv", result.Files[0].Name)
	assert.Equal(t, "https://dl.real-debrid.com/U1/movie.mkv", result.Files[0].URL)

	url, err := client.Unlock(ctx, result.Files[0])
	require.NoError(t, err)
	assert.Equal(t, result.Files[0].URL, url)
	assert.Equal(t, before, api.count("unrestrict"))

	require.NoError(t, client.Remove(ctx, job))
	assert.Empty(t, api.deletedIDs())
}

func TestClient_Errors(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Submit(ctx, internal.NewHosterLink("https://unsupported.example/f"))
	assert.True(t, internal.IsType(err, internal.ErrNotSupported), "got %v", err)

	_, err = client.Submit(ctx, internal.NewHosterLink("https://dead.example/f"))
	assert.True(t, internal.IsType(err, internal.ErrSubmission), "got %v", err)

	_, err = client.Submit(ctx, internal.NewCloudFolder("https://mega.nz/folder/a#b", "a", "b"))
	assert.True(t, internal.IsType(err, internal.ErrNotSupported))

	_, err = client.Submit(ctx, internal.Resource{Kind: internal.KindContainerFile, Container: internal.ContainerNZB})
	assert.True(t, internal.IsType(err, internal.ErrNotSupported))

	_, err = client.Unlock(ctx, internal.RemoteFile{Link: "https://dead.example/f"})
	assert.True(t, internal.IsType(err, internal.ErrUnlock), "got %v", err)

	client.token = "wrong"
	_, err = client.Submit(ctx, testMagnet)
	require.Error(t, err)
	assert.True(t, internal.IsType(err, internal.ErrAuthRequired), "got %v", err)

	var pe *internal.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "8", pe.RemoteCode)
}

func TestClient_ProbeMagnet(t *testing.T) {
	client, api := newTestClient(t)

	result := client.Probe(context.Background(), testMagnet)
	assert.Equal(t, internal.ProbeNotCached, result)
	assert.Equal(t, "all", api.selection())
	assert.Equal(t, []string{"T1"}, api.deletedIDs())

	api.setStatus("downloaded")
	assert.Equal(t, internal.ProbeCached, client.Probe(context.Background(), testMagnet))
	assert.Len(t, api.deletedIDs(), 2)
}

func TestClient_ProbeDeletesOnFailure(t *testing.T) {
	client, api := newTestClient(t)
	api.mu.Lock()
	api.infoCode = http.StatusInternalServerError
	api.mu.Unlock()

	assert.Equal(t, internal.ProbeUnknown, client.Probe(context.Background(), testMagnet))
	assert.Equal(t, []string{"T1"}, api.deletedIDs(), "the probe torrent is deleted even when inspection fails")
}

func TestClient_ProbeCancelledStillDeletes(t *testing.T) {
	client, api := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	client.cleanup(ctx, "T9")
	cancel()
	client.cleanup(ctx, "T10")

	assert.Equal(t, []string{"T9", "T10"}, api.deletedIDs())
}

func TestClient_ProbeHoster(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	assert.Equal(t, internal.ProbeCached, client.Probe(ctx, internal.NewHosterLink("https://host.example/f")))
	assert.Equal(t, internal.ProbeNotSupported, client.Probe(ctx, internal.NewHosterLink("https://unsupported.example/f")))
	assert.Equal(t, internal.ProbeNotSupported, client.Probe(ctx, internal.Resource{Kind: internal.KindContainerFile}))
}
