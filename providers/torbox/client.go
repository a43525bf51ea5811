// Package torbox implements the TorBox API as a provider for torrents,
// usenet downloads and web downloads.
package torbox

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"onedl/internal"
	"onedl/resolver"
	"onedl/utils"
)

const defaultBaseURL = "https://api.torbox.app/v1/api"

// channel describes one TorBox download family
type channel struct {
	name    string // URL prefix and ProviderJob.Channel
	idParam string // id parameter of requestdl and control
	control string // control endpoint
}

var (
	torrents = channel{name: "torrents", idParam: "torrent_id", control: "controltorrent"}
	usenet   = channel{name: "usenet", idParam: "usenet_id", control: "controlusenetdownload"}
	webdl    = channel{name: "webdl", idParam: "web_id", control: "controlwebdownload"}
)

func channelByName(name string) (channel, bool) {
	switch name {
	case torrents.name:
		return torrents, true
	case usenet.name:
		return usenet, true
	case webdl.name:
		return webdl, true
	}
	return channel{}, false
}

// Client implements internal.Provider for TorBox.
type Client struct {
	token   string
	baseURL string
	http    *utils.HTTPClient
	logger  *internal.SecureLogger
}

var _ internal.Provider = (*Client)(nil)

// New creates a TorBox client
func New(token string, httpClient *utils.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    httpClient,
		logger:  internal.GetLogger().WithComponent(internal.ProviderTorBox),
	}
}

func (c *Client) Name() string { return internal.ProviderTorBox }

type envelope struct {
	Success bool            `json:"success"`
	Error   *string         `json:"error"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

type createData struct {
	TorrentID     int64  `json:"torrent_id"`
	UsenetID      int64  `json:"usenetdownload_id"`
	WebDownloadID int64  `json:"webdownload_id"`
	Hash          string `json:"hash"`
}

type downloadFile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	Size      int64  `json:"size"`
}

type download struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Size             int64          `json:"size"`
	Progress         float64        `json:"progress"`
	DownloadSpeed    int64          `json:"download_speed"`
	Seeds            int            `json:"seeds"`
	DownloadState    string         `json:"download_state"`
	DownloadFinished bool           `json:"download_finished"`
	DownloadPresent  bool           `json:"download_present"`
	Files            []downloadFile `json:"files"`
}

func errorType(code string) internal.ErrorType {
	switch code {
	case "NO_AUTH", "BAD_TOKEN", "AUTH_ERROR":
		return internal.ErrAuthRequired
	case "ACTIVE_LIMIT", "MONTHLY_LIMIT", "COOLDOWN_LIMIT", "PLAN_RESTRICTED_FEATURE", "DOWNLOAD_TOO_LARGE":
		return internal.ErrQuotaExceeded
	case "ITEM_NOT_FOUND", "DOWNLOAD_NOT_CACHED":
		return internal.ErrNotFound
	case "UNSUPPORTED_HOSTER", "INVALID_OPTION", "BAD_REQUEST":
		return internal.ErrNotSupported
	default:
		return internal.ErrUnexpectedResponse
	}
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// finish reads the envelope and decodes data into out
func (c *Client) finish(resp *http.Response, out interface{}) error {
	var env envelope
	if err := utils.ReadJSON(resp, &env); err != nil {
		if resp.StatusCode >= 300 {
			return utils.StatusError(c.Name(), resp)
		}
		return err
	}
	if !env.Success {
		code := ""
		if env.Error != nil {
			code = *env.Error
		}
		if code == "" && resp.StatusCode >= 300 {
			return utils.StatusError(c.Name(), resp)
		}
		msg := env.Detail
		if msg == "" {
			msg = code
		}
		return internal.NewProviderError(resp.StatusCode, msg, errorType(code)).
			WithProvider(c.Name()).
			WithRemoteCode(code)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return internal.NewProviderError(resp.StatusCode, "unexpected data payload", internal.ErrUnexpectedResponse).
			WithProvider(c.Name()).WithCause(err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	resp, err := c.http.Get(ctx, c.baseURL+path+"?"+params.Encode(), c.authHeaders())
	if err != nil {
		return err
	}
	return c.finish(resp, out)
}

func (c *Client) create(ctx context.Context, path string, fields map[string]string, file *utils.FormFile) (*createData, error) {
	resp, err := c.http.PostMultipart(ctx, c.baseURL+path, fields, file, c.authHeaders())
	if err != nil {
		return nil, err
	}
	var data createData
	if err := c.finish(resp, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) submissionError(err error) error {
	typ, ok := internal.ErrorTypeOf(err)
	if (ok && typ != internal.ErrUnexpectedResponse) || internal.IsTransient(err) {
		return err
	}
	return internal.NewSubmissionError(c.Name(), "request rejected").WithCause(err)
}

// Submit creates a torrent, usenet or web download depending on the
// resource kind
func (c *Client) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	var (
		ch   channel
		data *createData
		err  error
	)
	switch {
	case res.Kind == internal.KindMagnet:
		ch = torrents
		data, err = c.create(ctx, "/torrents/createtorrent", map[string]string{"magnet": res.URI}, nil)
	case res.Kind == internal.KindContainerFile && res.Container == internal.ContainerNZB:
		if len(res.Data) == 0 {
			return nil, internal.NewInvalidInputError(res.Path, "container has not been loaded")
		}
		ch = usenet
		data, err = c.create(ctx, "/usenet/createusenetdownload", nil,
			&utils.FormFile{Field: "file", Filename: filepath.Base(res.Path), Data: res.Data})
	case res.Kind == internal.KindHosterLink:
		ch = webdl
		data, err = c.create(ctx, "/webdl/createwebdownload", map[string]string{"link": res.URL}, nil)
	default:
		return nil, internal.NewNotSupportedError(c.Name(), res.Kind)
	}
	if err != nil {
		return nil, c.submissionError(err)
	}

	id := data.TorrentID
	switch ch {
	case usenet:
		id = data.UsenetID
	case webdl:
		id = data.WebDownloadID
	}
	if id == 0 {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "create returned no download id")
	}

	job := internal.NewProviderJob(c.Name(), strconv.FormatInt(id, 10), res)
	job.Channel = ch.name
	return job, nil
}

// Poll reads the download from {channel}/mylist
func (c *Client) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	ch, ok := channelByName(job.Channel)
	if !ok {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "unknown channel "+job.Channel)
	}

	var d download
	params := url.Values{"id": {job.RemoteID}, "bypass_cache": {"true"}}
	if err := c.get(ctx, "/"+ch.name+"/mylist", params, &d); err != nil {
		return nil, err
	}

	result := &internal.PollResult{
		State: mapState(&d),
		Progress: internal.Progress{
			Percent:         d.Progress * 100,
			RateBytesPerSec: d.DownloadSpeed,
			Peers:           d.Seeds,
			Phase:           d.DownloadState,
		},
	}

	switch result.State {
	case internal.StateReady:
		result.Files = make([]internal.RemoteFile, len(d.Files))
		for i, f := range d.Files {
			result.Files[i] = internal.RemoteFile{
				ID:   strconv.FormatInt(f.ID, 10),
				Name: f.Name,
				Size: f.Size,
				Link: fileRef(ch, job.RemoteID, f.ID),
			}
		}
	case internal.StateError:
		result.Message = d.DownloadState
	}
	return result, nil
}

func mapState(d *download) internal.JobState {
	state := strings.ToLower(d.DownloadState)
	switch {
	case d.DownloadFinished && d.DownloadPresent:
		return internal.StateReady
	case strings.Contains(state, "error"), strings.Contains(state, "fail"), strings.Contains(state, "expired"):
		return internal.StateError
	case state == "metadl", strings.HasPrefix(state, "checking"), state == "queued":
		return internal.StateSubmitted
	default:
		return internal.StateProcessing
	}
}

// fileRef encodes the channel, download id and file id that requestdl needs
func fileRef(ch channel, downloadID string, fileID int64) string {
	return ch.name + ":" + downloadID + ":" + strconv.FormatInt(fileID, 10)
}

func parseFileRef(ref string) (channel, string, string, bool) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return channel{}, "", "", false
	}
	ch, ok := channelByName(parts[0])
	return ch, parts[1], parts[2], ok
}

// Select is a no-op; downloads always include every file
func (c *Client) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	return nil
}

// Unlock asks requestdl for a direct link to one file
func (c *Client) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	if file.URL != "" {
		return file.URL, nil
	}
	ch, downloadID, fileID, ok := parseFileRef(file.Link)
	if !ok {
		return "", internal.NewUnlockError(c.Name(), file.Link, "not a TorBox file reference")
	}

	params := url.Values{
		"token":    {c.token},
		ch.idParam: {downloadID},
		"file_id":  {fileID},
	}
	var link string
	if err := c.get(ctx, "/"+ch.name+"/requestdl", params, &link); err != nil {
		return "", internal.NewUnlockError(c.Name(), file.Link, "requestdl failed").WithCause(err)
	}
	if link == "" {
		return "", internal.NewUnlockError(c.Name(), file.Link, "no download link returned")
	}
	return link, nil
}

// Probe asks checkcached; it never creates a download
func (c *Client) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	switch res.Kind {
	case internal.KindMagnet:
		hash, ok := resolver.NormalizeInfoHash(res.InfoHash)
		if !ok || hash == "" {
			return internal.ProbeUnknown
		}
		return c.checkCached(ctx, torrents, hash)
	case internal.KindHosterLink:
		sum := md5.Sum([]byte(res.URL))
		return c.checkCached(ctx, webdl, hex.EncodeToString(sum[:]))
	case internal.KindContainerFile:
		if res.Container == internal.ContainerNZB {
			return internal.ProbeUnknown
		}
	}
	return internal.ProbeNotSupported
}

func (c *Client) checkCached(ctx context.Context, ch channel, hash string) internal.CacheProbeResult {
	var found []json.RawMessage
	params := url.Values{"hash": {hash}, "format": {"list"}}
	if err := c.get(ctx, "/"+ch.name+"/checkcached", params, &found); err != nil {
		if internal.IsType(err, internal.ErrNotSupported) {
			return internal.ProbeNotSupported
		}
		c.logger.Debug("Probe failed: %v", err)
		return internal.ProbeUnknown
	}
	if len(found) > 0 {
		return internal.ProbeCached
	}
	return internal.ProbeNotCached
}

// Remove deletes the download through its control endpoint
func (c *Client) Remove(ctx context.Context, job *internal.ProviderJob) error {
	ch, ok := channelByName(job.Channel)
	if !ok || job.RemoteID == "" {
		return nil
	}
	id, err := strconv.ParseInt(job.RemoteID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid download id %q: %w", job.RemoteID, err)
	}

	body, err := json.Marshal(map[string]interface{}{ch.idParamControl(): id, "operation": "delete"})
	if err != nil {
		return err
	}
	req, err := c.http.NewRequest(ctx, http.MethodPost, c.baseURL+"/"+ch.name+"/"+ch.control, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Send(req)
	if err != nil {
		return err
	}
	if err := c.finish(resp, nil); err != nil {
		return fmt.Errorf("failed to delete %s download %s: %w", ch.name, job.RemoteID, err)
	}
	return nil
}

// idParamControl is the id key of control requests, which differs from
// requestdl for web downloads
func (ch channel) idParamControl() string {
	if ch.name == webdl.name {
		return "webdl_id"
	}
	return ch.idParam
}
