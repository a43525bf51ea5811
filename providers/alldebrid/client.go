// Package alldebrid implements the AllDebrid v4 API as a provider.
package alldebrid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"onedl/internal"
	"onedl/utils"
)

const (
	defaultBaseURL = "https://api.alldebrid.com"
	agent          = "onedl"
	cleanupTimeout = 15 * time.Second

	// link/delayed is polled this many times, delayInterval apart
	delayedAttempts = 20
	delayInterval   = 5 * time.Second

	channelMagnet = "magnet"
	channelHoster = "hoster"
)

// Client implements internal.Provider for AllDebrid.
type Client struct {
	token         string
	baseURL       string
	delayInterval time.Duration
	http          *utils.HTTPClient
	logger        *internal.SecureLogger
}

var _ internal.Provider = (*Client)(nil)

// New creates an AllDebrid client
func New(token string, httpClient *utils.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient()
	}
	return &Client{
		token:         token,
		baseURL:       defaultBaseURL,
		delayInterval: delayInterval,
		http:          httpClient,
		logger:        internal.GetLogger().WithComponent(internal.ProviderAllDebrid),
	}
}

func (c *Client) Name() string { return internal.ProviderAllDebrid }

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *apiError       `json:"error"`
}

type uploadedMagnet struct {
	ID    int64     `json:"id"`
	Hash  string    `json:"hash"`
	Name  string    `json:"name"`
	Size  int64     `json:"size"`
	Ready bool      `json:"ready"`
	Error *apiError `json:"error"`
}

type uploadData struct {
	Magnets []uploadedMagnet `json:"magnets"`
}

type magnetStatus struct {
	ID             int64  `json:"id"`
	Filename       string `json:"filename"`
	Size           int64  `json:"size"`
	Status         string `json:"status"`
	StatusCode     int    `json:"statusCode"`
	Downloaded     int64  `json:"downloaded"`
	DownloadSpeed  int64  `json:"downloadSpeed"`
	Seeders        int    `json:"seeders"`
	ProcessingPerc int    `json:"processingPerc"`
}

type statusData struct {
	// an object when queried by id, a list otherwise
	Magnets json.RawMessage `json:"magnets"`
}

// fileNode is one entry of the magnet file tree; folders carry e
type fileNode struct {
	Name    string     `json:"n"`
	Size    int64      `json:"s"`
	Link    string     `json:"l"`
	Entries []fileNode `json:"e"`
}

type filesData struct {
	Magnets []struct {
		ID    string     `json:"id"`
		Files []fileNode `json:"files"`
		Error *apiError  `json:"error"`
	} `json:"magnets"`
}

type unlockData struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	ID       string `json:"id"`
	Delayed  int64  `json:"delayed"`
}

type delayedData struct {
	Status   int    `json:"status"`
	TimeLeft int    `json:"time_left"`
	Link     string `json:"link"`
}

type infosData struct {
	Infos []struct {
		Link     string    `json:"link"`
		Filename string    `json:"filename"`
		Size     int64     `json:"size"`
		Host     string    `json:"host"`
		Error    *apiError `json:"error"`
	} `json:"infos"`
}

// errorType maps AllDebrid error codes onto the error taxonomy
func errorType(code string) internal.ErrorType {
	switch {
	case strings.HasPrefix(code, "AUTH_"):
		return internal.ErrAuthRequired
	case code == "LINK_HOST_NOT_SUPPORTED", code == "MAGNET_INVALID_URI", code == "NO_SERVER":
		return internal.ErrNotSupported
	case strings.Contains(code, "MUST_BE_PREMIUM"), code == "FREE_TRIAL_LIMIT_REACHED",
		code == "MAGNET_TOO_MANY_ACTIVE", code == "MAGNET_TOO_MANY", code == "LINK_TOO_MANY_DOWNLOADS":
		return internal.ErrQuotaExceeded
	case code == "MAGNET_INVALID_ID", code == "LINK_DOWN", code == "LINK_IS_MISSING":
		return internal.ErrNotFound
	case strings.HasPrefix(code, "TOO_MANY_REQUESTS"):
		return internal.ErrRateLimit
	default:
		return internal.ErrUnexpectedResponse
	}
}

func (c *Client) toError(e *apiError, httpStatus int) error {
	return internal.NewProviderError(httpStatus, e.Message, errorType(e.Code)).
		WithProvider(c.Name()).
		WithRemoteCode(e.Code)
}

// call POSTs params to endpoint and decodes the data member of the answer
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	query := url.Values{"agent": {agent}}
	resp, err := c.http.PostForm(ctx, c.baseURL+endpoint+"?"+query.Encode(), params,
		map[string]string{"Authorization": "Bearer " + c.token})
	if err != nil {
		return err
	}

	data, err := utils.ReadBody(resp)
	if err != nil {
		return err
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		if resp.StatusCode >= 300 {
			return utils.StatusError(c.Name(), resp)
		}
		return internal.NewProviderError(resp.StatusCode, "invalid JSON response", internal.ErrUnexpectedResponse).
			WithProvider(c.Name()).WithCause(err)
	}
	if env.Status != "success" {
		if env.Error != nil {
			return c.toError(env.Error, resp.StatusCode)
		}
		return utils.StatusError(c.Name(), resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return internal.NewProviderError(resp.StatusCode, "unexpected data payload", internal.ErrUnexpectedResponse).
			WithProvider(c.Name()).WithCause(err)
	}
	return nil
}

// decodeEnvelope returns the first JSON object in data that carries a
// status. Some endpoints answer with several concatenated objects.
func decodeEnvelope(data []byte) (*envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var lastErr error = errors.New("empty response")
	for {
		var env envelope
		err := dec.Decode(&env)
		if errors.Is(err, io.EOF) {
			return nil, lastErr
		}
		if err != nil {
			return nil, err
		}
		if env.Status != "" {
			return &env, nil
		}
		lastErr = errors.New("response without status")
	}
}

func (c *Client) submissionError(err error) error {
	typ, ok := internal.ErrorTypeOf(err)
	if (ok && typ != internal.ErrUnexpectedResponse) || internal.IsTransient(err) {
		return err
	}
	return internal.NewSubmissionError(c.Name(), "request rejected").WithCause(err)
}

func (c *Client) upload(ctx context.Context, magnet string) (*uploadedMagnet, error) {
	var data uploadData
	if err := c.call(ctx, "/v4/magnet/upload", url.Values{"magnets[]": {magnet}}, &data); err != nil {
		return nil, err
	}
	if len(data.Magnets) == 0 {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "upload returned no magnets")
	}
	m := data.Magnets[0]
	if m.Error != nil {
		return nil, c.toError(m.Error, http.StatusOK)
	}
	return &m, nil
}

// Submit uploads a magnet or unlocks a hoster link. Hoster links come back
// as a READY job.
func (c *Client) Submit(ctx context.Context, res internal.Resource) (*internal.ProviderJob, error) {
	switch res.Kind {
	case internal.KindMagnet:
		m, err := c.upload(ctx, res.URI)
		if err != nil {
			return nil, c.submissionError(err)
		}
		job := internal.NewProviderJob(c.Name(), strconv.FormatInt(m.ID, 10), res)
		job.Channel = channelMagnet
		return job, nil

	case internal.KindHosterLink:
		u, err := c.unlock(ctx, res.URL)
		if err != nil {
			return nil, c.submissionError(err)
		}
		job := internal.NewProviderJob(c.Name(), u.ID, res)
		job.Channel = channelHoster
		job.State = internal.StateReady
		job.Files = []internal.RemoteFile{{
			ID:   u.ID,
			Name: u.Filename,
			Size: u.Filesize,
			Link: res.URL,
			URL:  u.Link,
		}}
		return job, nil
	}
	return nil, internal.NewNotSupportedError(c.Name(), res.Kind)
}

// Poll reads magnet/status and, once ready, the magnet's file tree
func (c *Client) Poll(ctx context.Context, job *internal.ProviderJob) (*internal.PollResult, error) {
	if job.Channel == channelHoster {
		return &internal.PollResult{State: internal.StateReady, Files: job.Files}, nil
	}

	var data statusData
	if err := c.call(ctx, "/v4.1/magnet/status", url.Values{"id": {job.RemoteID}}, &data); err != nil {
		return nil, err
	}
	m, err := c.findMagnet(data.Magnets, job.RemoteID)
	if err != nil {
		return nil, err
	}

	result := &internal.PollResult{
		State: mapStatus(m.StatusCode),
		Progress: internal.Progress{
			RateBytesPerSec: m.DownloadSpeed,
			Peers:           m.Seeders,
			Phase:           m.Status,
		},
	}
	if m.Size > 0 {
		result.Progress.Percent = float64(m.Downloaded) * 100 / float64(m.Size)
	}

	switch result.State {
	case internal.StateReady:
		files, err := c.files(ctx, job.RemoteID)
		if err != nil {
			return nil, err
		}
		result.Files = files
	case internal.StateError:
		result.Message = m.Status
	}
	return result, nil
}

func (c *Client) findMagnet(raw json.RawMessage, id string) (*magnetStatus, error) {
	var single magnetStatus
	if err := json.Unmarshal(raw, &single); err == nil && single.ID != 0 {
		return &single, nil
	}
	var list []magnetStatus
	if err := json.Unmarshal(raw, &list); err == nil {
		for i := range list {
			if strconv.FormatInt(list[i].ID, 10) == id {
				return &list[i], nil
			}
		}
	}
	return nil, internal.NewUnexpectedResponseError(c.Name(), fmt.Sprintf("magnet %s missing from status", id))
}

func mapStatus(code int) internal.JobState {
	switch {
	case code >= 0 && code <= 3:
		return internal.StateProcessing
	case code == 4:
		return internal.StateReady
	default:
		return internal.StateError
	}
}

func (c *Client) files(ctx context.Context, id string) ([]internal.RemoteFile, error) {
	var data filesData
	if err := c.call(ctx, "/v4/magnet/files", url.Values{"id[]": {id}}, &data); err != nil {
		return nil, err
	}
	for _, m := range data.Magnets {
		if m.ID != id {
			continue
		}
		if m.Error != nil {
			return nil, c.toError(m.Error, http.StatusOK)
		}
		var out []internal.RemoteFile
		flatten(m.Files, "", &out)
		return out, nil
	}
	return nil, internal.NewUnexpectedResponseError(c.Name(), fmt.Sprintf("no files for magnet %s", id))
}

// flatten walks the nested file tree depth first
func flatten(nodes []fileNode, dir string, out *[]internal.RemoteFile) {
	for _, n := range nodes {
		name := path.Join(dir, n.Name)
		if len(n.Entries) > 0 {
			flatten(n.Entries, name, out)
			continue
		}
		if n.Link == "" {
			continue
		}
		*out = append(*out, internal.RemoteFile{
			ID:   strconv.Itoa(len(*out) + 1),
			Name: name,
			Size: n.Size,
			Link: n.Link,
		})
	}
}

// Select is a no-op; magnets are downloaded whole and filtered at READY
func (c *Client) Select(ctx context.Context, job *internal.ProviderJob, candidates []internal.RemoteFile, set internal.SelectionSet) error {
	return nil
}

func (c *Client) unlock(ctx context.Context, link string) (*unlockData, error) {
	var data unlockData
	if err := c.call(ctx, "/v4/link/unlock", url.Values{"link": {link}}, &data); err != nil {
		return nil, err
	}
	if data.Link == "" && data.Delayed != 0 {
		direct, err := c.waitDelayed(ctx, data.Delayed)
		if err != nil {
			return nil, err
		}
		data.Link = direct
	}
	if data.Link == "" {
		return nil, internal.NewUnexpectedResponseError(c.Name(), "unlock returned no link")
	}
	return &data, nil
}

// waitDelayed polls link/delayed until the generated link is available
func (c *Client) waitDelayed(ctx context.Context, id int64) (string, error) {
	params := url.Values{"id": {strconv.FormatInt(id, 10)}}
	for attempt := 0; attempt < delayedAttempts; attempt++ {
		var data delayedData
		if err := c.call(ctx, "/v4/link/delayed", params, &data); err != nil {
			return "", err
		}
		switch data.Status {
		case 2:
			return data.Link, nil
		case 3:
			return "", internal.NewUnexpectedResponseError(c.Name(), "delayed link generation failed")
		}

		timer := time.NewTimer(c.delayInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", internal.NewUnexpectedResponseError(c.Name(), "delayed link not ready in time")
}

// Unlock turns a hoster link into a direct URL
func (c *Client) Unlock(ctx context.Context, file internal.RemoteFile) (string, error) {
	if file.URL != "" {
		return file.URL, nil
	}
	data, err := c.unlock(ctx, file.Link)
	if err != nil {
		return "", internal.NewUnlockError(c.Name(), file.Link, "unlock failed").WithCause(err)
	}
	return data.Link, nil
}

// Probe uploads magnets to read their ready flag and deletes them again.
// Hoster links are checked with link/infos.
func (c *Client) Probe(ctx context.Context, res internal.Resource) internal.CacheProbeResult {
	switch res.Kind {
	case internal.KindMagnet:
		m, err := c.upload(ctx, res.URI)
		if err != nil {
			return c.probeFailure(err)
		}
		defer c.cleanup(ctx, strconv.FormatInt(m.ID, 10))
		if m.Ready {
			return internal.ProbeCached
		}
		return internal.ProbeNotCached

	case internal.KindHosterLink:
		var data infosData
		if err := c.call(ctx, "/v4/link/infos", url.Values{"link[]": {res.URL}}, &data); err != nil {
			return c.probeFailure(err)
		}
		if len(data.Infos) == 0 {
			return internal.ProbeUnknown
		}
		if e := data.Infos[0].Error; e != nil {
			return c.probeFailure(c.toError(e, http.StatusOK))
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

func (c *Client) cleanup(ctx context.Context, id string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.deleteMagnet(cctx, id); err != nil {
		c.logger.Warn("Failed to delete probe magnet %s: %v", id, err)
	}
}

func (c *Client) deleteMagnet(ctx context.Context, id string) error {
	return c.call(ctx, "/v4/magnet/delete", url.Values{"id": {id}}, nil)
}

// Remove deletes a magnet job. Hoster jobs hold nothing remotely.
func (c *Client) Remove(ctx context.Context, job *internal.ProviderJob) error {
	if job.Channel == channelHoster || job.RemoteID == "" {
		return nil
	}
	if err := c.deleteMagnet(ctx, job.RemoteID); err != nil {
		return fmt.Errorf("failed to delete magnet %s: %w", job.RemoteID, err)
	}
	return nil
}
