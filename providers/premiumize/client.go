// Package premiumize implements the Premiumize.me API as a provider and
// cloud folder lister.
package premiumize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"onedl/internal"
	"onedl/resolver"
	"onedl/utils"
)

const (
	defaultBaseURL = "https://www.premiumize.me/api"

	channelTransfer = "transfer"
	channelDirect   = "directdl"
)

var (
	speedPattern = regexp.MustCompile(`([\d.]+)\s*(GB|MB|KB|B)/s`)
	peersPattern = regexp.MustCompile(`from (\d+) peer`)
)

// Client implements internal.Provider and internal.FolderLister for
// Premiumize.me.
type Client struct {
	token   string
	baseURL string
	http    *utils.HTTPClient
	logger  *internal.SecureLogger
}

var (
	_ internal.Provider     = (*Client)(nil)
	_ internal.FolderLister = (*Client)(nil)
)

// New creates a Premiumize client
func New(token string, httpClient *utils.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    httpClient,
		logger:  internal.GetLogger().WithComponent(internal.ProviderPremiumize),
	}
}

func (c *Client) Name() string { return internal.ProviderPremiumize }

type baseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type createResponse struct {
	baseResponse
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type transfer struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	FolderID string   `json:"folder_id"`
	FileID   string   `json:"file_id"`
}

type transferList struct {
	baseResponse
	Transfers []transfer `json:"transfers"`
}

type folderItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Link string `json:"link"`
}

type folderList struct {
	baseResponse
	Content []folderItem `json:"content"`
}

type itemDetails struct {
	baseResponse
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Link string `json:"link"`
}

type directContent struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Link string `json:"link"`
}

type directResponse struct {
	baseResponse
	Type     string            `json:"type"`
	Location string            `json:"location"`
	Filename string            `json:"filename"`
	Filesize int64             `json:"filesize"`
	Content  []json.RawMessage `json:"content"`
}

type cacheResponse struct {
	baseResponse
	Response []bool `json:"response"`
}

func (r *baseResponse) base() *baseResponse { return r }

type response interface{ base() *baseResponse }

func errorType(message string) internal.ErrorType {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "not logged in"), strings.Contains(m, "apikey"),
		strings.Contains(m, "customer_id"), strings.Contains(m, "auth"):
		return internal.ErrAuthRequired
	case strings.Contains(m, "not supported"), strings.Contains(m, "unsupported"):
		return internal.ErrNotSupported
	case strings.Contains(m, "premium"), strings.Contains(m, "limit"), strings.Contains(m, "fair use"):
		return internal.ErrQuotaExceeded
	case strings.Contains(m, "not found"):
		return internal.ErrNotFound
	default:
		return internal.ErrUnexpectedResponse
	}
}

func (c *Client) endpoint(path string, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.token)
	return c.baseURL + path + "?" + q.Encode()
}

// finish decodes resp into out and turns status "error" into a ProviderError
func (c *Client) finish(resp *http.Response, out response) error {
	if resp.StatusCode >= 300 {
		data, err := utils.ReadBody(resp)
		if err != nil {
			return err
		}
		var body baseResponse
		if json.Unmarshal(data, &body) == nil && body.Message != "" {
			return internal.NewProviderError(resp.StatusCode, body.Message, errorType(body.Message)).WithProvider(c.Name())
		}
		return utils.StatusError(c.Name(), resp)
	}

	if err := utils.ReadJSON(resp, out); err != nil {
		return err
	}
	if b := out.base(); b.Status != "success" {
		msg := b.Message
		if msg == "" {
			msg = "request failed"
		}
		return internal.NewProviderError(resp.StatusCode, msg, errorType(msg)).WithProvider(c.Name())
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out response) error {
	resp, err := c.http.Get(ctx, c.endpoint(path, params), nil)
	if err != nil {
		return err
	}
	return c.finish(resp, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out response) error {
	resp, err := c.http.PostForm(ctx, c.endpoint(path, nil), form, nil)
	if err != nil {
		return err
	}
	return c.finish(resp, out)
}

func (c *Client) submissionError(err error) error {
	typ, ok := internal.ErrorTypeOf(err)
	if (ok && typ != internal.ErrUnexpectedResponse) || internal.IsTransient(err) {
		return err
	}
	return internal.NewSubmissionError(c.Name(), "request rejected").WithCause(err)
}

// Submit creates a transfer for magnets and NZB files. Hoster links and
// folders go through directdl and come back as a READY job.
func (c *Client) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	switch res.Kind {
	case internal.KindMagnet:
		var created createResponse
		if err := c.post(ctx, "/transfer/create", url.Values{"src": {res.URI}}, &created); err != nil {
			return nil, c.submissionError(err)
		}
		return c.transferJob(created, res)

	case internal.KindContainerFile:
		if res.Container != internal.ContainerNZB {
			return nil, internal.NewNotSupportedError(c.Name(), res.Kind)
		}
		if len(res.Data) == 0 {
			return nil, internal.NewInvalidInputError(res.Path, "container has not been loaded")
		}
		resp, err := c.http.PostMultipart(ctx, c.endpoint("/transfer/create", nil), nil,
			&utils.FormFile{Field: "file", Filename: filepath.Base(res.Path), Data: res.Data}, nil)
		if err != nil {
			return nil, c.submissionError(err)
		}
		var created createResponse
		if err := c.finish(resp, &created); err != nil {
			return nil, c.submissionError(err)
		}
		return c.transferJob(created, res)

	case internal.KindHosterLink, internal.KindCloudFolder:
		files, err := c.directDownload(ctx, res.URL)
		if err != nil {
			return nil, c.submissionError(err)
		}
		job := internal.NewProviderJob(c.Name(), "", res)
		job.Channel = channelDirect
		job.State = internal.StateReady
		job.Files = files
		return job, nil
	}
	return nil, internal.NewNotSupportedError(c.Name(), res.Kind)
}

func (c *Client) transferJob(created createResponse, res internal.Resource) (*internal.ProviderJob, error) {
	if created.ID == "" {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "transfer/create returned no id")
	}
	job := internal.NewProviderJob(c.Name(), created.ID, res)
	job.Channel = channelTransfer
	return job, nil
}

// directDownload resolves src with transfer/directdl. Containers yield one
// file per entry; entries that are bare links still need unlocking.
func (c *Client) directDownload(ctx context.Context, src string) ([]internal.RemoteFile, error) {
	var dl directResponse
	if err := c.post(ctx, "/transfer/directdl", url.Values{"src": {src}}, &dl); err != nil {
		return nil, err
	}

	var files []internal.RemoteFile
	for i, raw := range dl.Content {
		id := strconv.Itoa(i + 1)
		var link string
		if json.Unmarshal(raw, &link) == nil {
			files = append(files, internal.RemoteFile{ID: id, Name: utils.FilenameFromURL(link), Link: link})
			continue
		}
		var entry directContent
		if err := json.Unmarshal(raw, &entry); err != nil || entry.Link == "" {
			continue
		}
		files = append(files, internal.RemoteFile{
			ID:   id,
			Name: strings.TrimPrefix(entry.Path, "/"),
			Size: entry.Size,
			Link: entry.Link,
			URL:  entry.Link,
		})
	}
	if len(files) > 0 {
		return files, nil
	}

	if dl.Location != "" {
		name := dl.Filename
		if name == "" {
			name = utils.FilenameFromURL(dl.Location)
		}
		return []internal.RemoteFile{{ID: "1", Name: name, Size: dl.Filesize, Link: src, URL: dl.Location}}, nil
	}
	return nil, internal.NewUnexpectedResponseError(c.Name(), "directdl returned no links")
}

// Poll finds the transfer in transfer/list. Finished transfers are
// expanded through their folder or file.
func (c *Client) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	if job.Channel == channelDirect {
		return &internal.PollResult{State: internal.StateReady, Files: job.Files}, nil
	}

	var list transferList
	if err := c.get(ctx, "/transfer/list", nil, &list); err != nil {
		return nil, err
	}

	var t *transfer
	for i := range list.Transfers {
		if list.Transfers[i].ID == job.RemoteID {
			t = &list.Transfers[i]
			break
		}
	}
	if t == nil {
		return &internal.PollResult{State: internal.StateError, Message: "transfer not found"}, nil
	}

	result := &internal.PollResult{
		State:    mapStatus(t.Status),
		Progress: parseProgress(t),
	}

	switch result.State {
	case internal.StateReady:
		files, err := c.transferFiles(ctx, t)
		if err != nil {
			return nil, err
		}
		result.Files = files
	case internal.StateError:
		result.Message = t.Message
		if result.Message == "" {
			result.Message = "transfer " + t.Status
		}
	}
	return result, nil
}

func mapStatus(status string) internal.JobState {
	switch status {
	case "waiting", "queued", "running":
		return internal.StateProcessing
	case "finished", "seeding":
		return internal.StateReady
	default:
		return internal.StateError
	}
}

// parseProgress reads progress (0-1) and the speed and peer count embedded
// in messages like "12.3 MB/s from 7 peers"
func parseProgress(t *transfer) internal.Progress {
	p := internal.Progress{Phase: t.Status}
	switch {
	case t.Progress != nil:
		p.Percent = *t.Progress * 100
	case t.Status == "finished":
		p.Percent = 100
	}
	if t.Message != "" {
		p.Phase = t.Message
	}

	if m := speedPattern.FindStringSubmatch(t.Message); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			switch m[2] {
			case "GB":
				v *= 1 << 30
			case "MB":
				v *= 1 << 20
			case "KB":
				v *= 1 << 10
			}
			p.RateBytesPerSec = int64(v)
		}
	}
	if m := peersPattern.FindStringSubmatch(t.Message); m != nil {
		p.Peers, _ = strconv.Atoi(m[1])
	}
	return p
}

func (c *Client) transferFiles(ctx context.Context, t *transfer) ([]internal.RemoteFile, error) {
	if t.FolderID != "" {
		return resolver.ExpandFolder(ctx, c, t.FolderID)
	}
	if t.FileID == "" {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "finished transfer has no folder or file")
	}

	var item itemDetails
	if err := c.get(ctx, "/item/details", url.Values{"id": {t.FileID}}, &item); err != nil {
		return nil, err
	}
	return []internal.RemoteFile{{ID: item.ID, Name: item.Name, Size: item.Size, Link: item.Link, URL: item.Link}}, nil
}

// ListFolder lists a cloud folder URL through directdl, or a Premiumize
// folder id through folder/list.
func (c *Client) ListFolder(ctx context.Context, ref string) ([]internal.FolderEntry, error) {
	if utils.IsHTTPURL(ref) {
		files, err := c.directDownload(ctx, ref)
		if err != nil {
			return nil, err
		}
		entries := make([]internal.FolderEntry, len(files))
		for i, f := range files {
			entries[i] = internal.FolderEntry{Ref: f.ID, Name: f.Name, Size: f.Size, Link: f.Link, URL: f.URL}
		}
		return entries, nil
	}

	var list folderList
	if err := c.get(ctx, "/folder/list", url.Values{"id": {ref}}, &list); err != nil {
		return nil, err
	}
	entries := make([]internal.FolderEntry, 0, len(list.Content))
	for _, item := range list.Content {
		switch item.Type {
		case "folder":
			entries = append(entries, internal.FolderEntry{Ref: item.ID, Name: item.Name, IsFolder: true})
		case "file":
			if item.Link == "" {
				continue
			}
			entries = append(entries, internal.FolderEntry{
				Ref:  item.ID,
				Name: item.Name,
				Size: item.Size,
				Link: item.Link,
				URL:  item.Link,
			})
		}
	}
	return entries, nil
}

// Select is a no-op; transfers always fetch everything
func (c *Client) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	return nil
}

// Unlock returns the file's direct URL, resolving bare links via directdl
func (c *Client) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	if file.URL != "" {
		return file.URL, nil
	}
	files, err := c.directDownload(ctx, file.Link)
	if err != nil {
		return "", internal.NewUnlockError(c.Name(), file.Link, "directdl failed").WithCause(err)
	}
	if files[0].URL == "" {
		return "", internal.NewUnlockError(c.Name(), file.Link, "no direct link returned")
	}
	return files[0].URL, nil
}

// Probe uses cache/check for magnets and a directdl dry run for links.
// Neither creates anything remotely.
func (c *Client) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	switch res.Kind {
	case internal.KindMagnet:
		var cache cacheResponse
		if err := c.get(ctx, "/cache/check", url.Values{"items[]": {res.URI}}, &cache); err != nil {
			return c.probeFailure(err)
		}
		if len(cache.Response) == 0 {
			return internal.ProbeUnknown
		}
		if cache.Response[0] {
			return internal.ProbeCached
		}
		return internal.ProbeNotCached

	case internal.KindHosterLink:
		if _, err := c.directDownload(ctx, res.URL); err != nil {
			return c.probeFailure(err)
		}
		return internal.ProbeCached
	}
	return internal.ProbeNotSupported
}

func (c *Client) probeFailure(err error) internal.CacheProbeResult {
	if internal.IsType(err, internal.ErrNotSupported) {
		return internal.ProbeNotSupported
	}
	c.logger.Debug("Probe failed: %v", err)
	return internal.ProbeUnknown
}

// Remove deletes a transfer. directdl jobs hold nothing remotely.
func (c *Client) Remove(ctx context.Context, job *internal.ProviderJob) error {
	if job.Channel != channelTransfer || job.RemoteID == "" {
		return nil
	}
	var resp baseResponse
	if err := c.post(ctx, "/transfer/delete", url.Values{"id": {job.RemoteID}}, &resp); err != nil {
		return fmt.Errorf("failed to delete transfer %s: %w", job.RemoteID, err)
	}
	return nil
}
