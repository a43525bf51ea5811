// Package realdebrid implements the Real-Debrid REST API as a provider.
package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"onedl/internal"
	"onedl/utils"
)

const (
	defaultBaseURL = "https://api.real-debrid.com/rest/1.0"
	cleanupTimeout = 15 * time.Second

	channelTorrents = "torrents"
	channelHoster   = "hoster"
)

// Client implements internal.Provider for Real-Debrid.
type Client struct {
	token   string
	baseURL string
	http    *utils.HTTPClient
	logger  *internal.SecureLogger
}

var _ internal.Provider = (*Client)(nil)

// New creates a Real-Debrid client
func New(token string, httpClient *utils.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    httpClient,
		logger:  internal.GetLogger().WithComponent(internal.ProviderRealDebrid),
	}
}

func (c *Client) Name() string { return internal.ProviderRealDebrid }

type apiError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

type addResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type torrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

type torrentInfo struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Status   string        `json:"status"`
	Progress float64       `json:"progress"`
	Speed    int64         `json:"speed"`
	Seeders  int           `json:"seeders"`
	Files    []torrentFile `json:"files"`
	Links    []string      `json:"links"`
}

type unrestrictResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Download string `json:"download"`
}

type checkResponse struct {
	Host      string `json:"host"`
	Link      string `json:"link"`
	Filename  string `json:"filename"`
	Filesize  int64  `json:"filesize"`
	Supported int    `json:"supported"`
}

// errorTypes maps Real-Debrid error_code values onto the error taxonomy
var errorTypes = map[int]internal.ErrorType{
	8:  internal.ErrAuthRequired,
	9:  internal.ErrAuthRequired,
	14: internal.ErrAuthRequired,
	16: internal.ErrNotSupported,
	21: internal.ErrQuotaExceeded,
	23: internal.ErrQuotaExceeded,
	34: internal.ErrRateLimit,
	36: internal.ErrQuotaExceeded,
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.token}
}

// call performs one API request and decodes a 2xx body into out
func (c *Client) call(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = c.http.Get(ctx, c.baseURL+path, c.authHeaders())
	case http.MethodPost:
		resp, err = c.http.PostForm(ctx, c.baseURL+path, form, c.authHeaders())
	default:
		var req *http.Request
		req, err = c.http.NewRequest(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		resp, err = c.http.Send(req)
	}
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		return c.errorFrom(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, err := utils.ReadBody(resp)
		return err
	}
	return utils.ReadJSON(resp, out)
}

func (c *Client) errorFrom(resp *http.Response) error {
	data, err := utils.ReadBody(resp)
	if err != nil {
		return err
	}

	var body apiError
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		return utils.StatusError(c.Name(), resp)
	}

	typ, ok := errorTypes[body.ErrorCode]
	if !ok {
		typ = utils.StatusError(c.Name(), resp).Type
	}
	return internal.NewProviderError(resp.StatusCode, body.Error, typ).
		WithProvider(c.Name()).
		WithRemoteCode(strconv.Itoa(body.ErrorCode))
}

// submissionError keeps typed failures and turns the rest into SubmissionErrors
func (c *Client) submissionError(err error) error {
	typ, ok := internal.ErrorTypeOf(err)
	if (ok && typ != internal.ErrUnexpectedResponse) || internal.IsTransient(err) {
		return err
	}
	return internal.NewSubmissionError(c.Name(), "request rejected").WithCause(err)
}

// Submit adds a magnet or unrestricts a hoster link. Hoster links come
// back as a READY job.
func (c *Client) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	switch res.Kind {
	case internal.KindMagnet:
		id, err := c.addMagnet(ctx, res.URI)
		if err != nil {
			return nil, c.submissionError(err)
		}
		job := internal.NewProviderJob(c.Name(), id, res)
		job.Channel = channelTorrents
		return job, nil

	case internal.KindHosterLink:
		var u unrestrictResponse
		if err := c.call(ctx, http.MethodPost, "/unrestrict/link", url.Values{"link": {res.URL}}, &u); err != nil {
			return nil, c.submissionError(err)
		}
		job := internal.NewProviderJob(c.Name(), u.ID, res)
		job.Channel = channelHoster
		job.State = internal.StateReady
		job.Files = []internal.RemoteFile{{
			ID:   u.ID,
			Name: u.Filename,
			Size: u.Filesize,
			Link: u.Link,
			URL:  u.Download,
		}}
		return job, nil
	}
	return nil, internal.NewNotSupportedError(c.Name(), res.Kind)
}

func (c *Client) addMagnet(ctx context.Context, magnet string) (string, error) {
	var added addResponse
	if err := c.call(ctx, http.MethodPost, "/torrents/addMagnet", url.Values{"magnet": {magnet}}, &added); err != nil {
		return "", err
	}
	if added.ID == "" {
		return "", internal.NewUnexpectedResponseError(c.Name(), "addMagnet returned no torrent id")
	}
	return added.ID, nil
}

func (c *Client) info(ctx context.Context, id string) (*torrentInfo, error) {
	var info torrentInfo
	if err := c.call(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Poll queries torrents/info and maps the torrent status
func (c *Client) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	if job.Channel == channelHoster {
		return &internal.PollResult{State: internal.StateReady, Files: job.Files}, nil
	}

	info, err := c.info(ctx, job.RemoteID)
	if err != nil {
		return nil, err
	}

	result := &internal.PollResult{
		State: mapStatus(info.Status),
		Progress: internal.Progress{
			Percent:         info.Progress,
			RateBytesPerSec: info.Speed,
			Peers:           info.Seeders,
			Phase:           info.Status,
		},
	}

	switch result.State {
	case internal.StateAwaitingSelection:
		result.Files = make([]internal.RemoteFile, len(info.Files))
		for i, f := range info.Files {
			result.Files[i] = toRemoteFile(f)
		}
	case internal.StateReady:
		result.Files = readyFiles(info)
	case internal.StateError:
		result.Message = "torrent " + info.Status
	}
	return result, nil
}

func mapStatus(status string) internal.JobState {
	switch status {
	case "magnet_conversion":
		return internal.StateSubmitted
	case "waiting_files", "waiting_files_selection":
		return internal.StateAwaitingSelection
	case "queued", "downloading", "compressing", "uploading":
		return internal.StateProcessing
	case "downloaded":
		return internal.StateReady
	case "magnet_error", "error", "virus", "dead":
		return internal.StateError
	default:
		return internal.StateProcessing
	}
}

func toRemoteFile(f torrentFile) internal.RemoteFile {
	return internal.RemoteFile{
		ID:   strconv.Itoa(f.ID),
		Name: strings.TrimPrefix(f.Path, "/"),
		Size: f.Bytes,
	}
}

// readyFiles pairs the hoster links with the selected files in order.
// Extra links (archives) are named after the torrent.
func readyFiles(info *torrentInfo) []internal.RemoteFile {
	var selected []torrentFile
	for _, f := range info.Files {
		if f.Selected == 1 {
			selected = append(selected, f)
		}
	}

	files := make([]internal.RemoteFile, 0, len(info.Links))
	for i, link := range info.Links {
		rf := internal.RemoteFile{ID: strconv.Itoa(i + 1), Name: info.Filename}
		if i < len(selected) && len(selected) == len(info.Links) {
			rf = toRemoteFile(selected[i])
		}
		rf.Link = link
		files = append(files, rf)
	}
	return files
}

// Select sends the chosen candidate ids to selectFiles
func (c *Client) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	var ids []string
	for _, i := range set {
		if i >= 1 && i <= len(candidates) {
			ids = append(ids, candidates[i-1].ID)
		}
	}
	if len(ids) == 0 {
		return internal.NewInvalidInputError(job.RemoteID, "no files selected")
	}
	return c.selectFiles(ctx, job.RemoteID, strings.Join(ids, ","))
}

func (c *Client) selectFiles(ctx context.Context, id, files string) error {
	return c.call(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(id), url.Values{"files": {files}}, nil)
}

// Unlock unrestricts a hoster link into a direct URL
func (c *Client) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	if file.URL != "" {
		return file.URL, nil
	}
	var u unrestrictResponse
	if err := c.call(ctx, http.MethodPost, "/unrestrict/link", url.Values{"link": {file.Link}}, &u); err != nil {
		return "", internal.NewUnlockError(c.Name(), file.Link, "unrestrict failed").WithCause(err)
	}
	if u.Download == "" {
		return "", internal.NewUnlockError(c.Name(), file.Link, "no download link returned")
	}
	return u.Download, nil
}

// Probe checks availability. Magnets are added, fully selected and
// inspected, then deleted again.
func (c *Client) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	switch res.Kind {
	case internal.KindMagnet:
		return c.probeMagnet(ctx, res.URI)
	case internal.KindHosterLink:
		return c.probeHoster(ctx, res.URL)
	}
	return internal.ProbeNotSupported
}

func (c *Client) probeMagnet(ctx context.Context, magnet string) internal.CacheProbeResult {
	id, err := c.addMagnet(ctx, magnet)
	if err != nil {
		return c.probeFailure(err)
	}
	defer c.cleanup(ctx, id)

	info, err := c.info(ctx, id)
	if err != nil {
		return c.probeFailure(err)
	}

	if mapStatus(info.Status) == internal.StateAwaitingSelection {
		if err := c.selectFiles(ctx, id, "all"); err != nil {
			return c.probeFailure(err)
		}
		if info, err = c.info(ctx, id); err != nil {
			return c.probeFailure(err)
		}
	}

	if info.Status == "downloaded" {
		return internal.ProbeCached
	}
	return internal.ProbeNotCached
}

func (c *Client) probeHoster(ctx context.Context, link string) internal.CacheProbeResult {
	var check checkResponse
	if err := c.call(ctx, http.MethodPost, "/unrestrict/check", url.Values{"link": {link}}, &check); err != nil {
		return c.probeFailure(err)
	}
	if check.Supported == 1 {
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

func (c *Client) cleanup(ctx context.Context, id string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.deleteTorrent(cctx, id); err != nil {
		c.logger.Warn("Failed to delete probe torrent %s: %v", id, err)
	}
}

func (c *Client) deleteTorrent(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(id), nil, nil)
}

// Remove deletes a torrent job. Hoster jobs hold nothing remotely.
func (c *Client) Remove(ctx context.Context, job *internal.ProviderJob) error {
	if job.Channel == channelHoster || job.RemoteID == "" {
		return nil
	}
	if err := c.deleteTorrent(ctx, job.RemoteID); err != nil {
		return fmt.Errorf("failed to delete torrent %s: %w", job.RemoteID, err)
	}
	return nil
}
