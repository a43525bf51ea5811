package internal

import (
	"time"

	"github.com/google/uuid"
)

// ResourceKind is the tag of a Resource
type ResourceKind int

const (
	KindMagnet ResourceKind = iota
	KindHosterLink
	KindCloudFolder
	KindContainerFile
)

func (k ResourceKind) String() string {
	switch k {
	case KindMagnet:
		return "Magnet"
	case KindHosterLink:
		return "HosterLink"
	case KindCloudFolder:
		return "CloudFolder"
	case KindContainerFile:
		return "ContainerFile"
	default:
		return "Unknown"
	}
}

// ContainerKind distinguishes uploaded container files
type ContainerKind int

const (
	ContainerNone ContainerKind = iota
	ContainerTorrent
	ContainerNZB
)

func (c ContainerKind) String() string {
	switch c {
	case ContainerTorrent:
		return "torrent"
	case ContainerNZB:
		return "nzb"
	default:
		return "none"
	}
}

// Resource is what the user asked to resolve. Only the fields that belong
// to Kind are meaningful. Treat it as immutable once classified.
type Resource struct {
	Kind ResourceKind
	Raw  string

	// Magnet
	URI         string
	InfoHash    string
	DisplayName string

	// HosterLink and CloudFolder
	URL       string
	FolderID  string
	FolderKey string

	// ContainerFile
	Path      string
	Container ContainerKind
	Data      []byte
}

// NewMagnet builds a Magnet resource
func NewMagnet(uri, infoHash, displayName string) Resource {
	return Resource{Kind: KindMagnet, Raw: uri, URI: uri, InfoHash: infoHash, DisplayName: displayName}
}

// NewHosterLink builds a HosterLink resource
func NewHosterLink(url string) Resource {
	return Resource{Kind: KindHosterLink, Raw: url, URL: url}
}

// NewCloudFolder builds a CloudFolder resource
func NewCloudFolder(url, id, key string) Resource {
	return Resource{Kind: KindCloudFolder, Raw: url, URL: url, FolderID: id, FolderKey: key}
}

// NewContainerFile builds a ContainerFile resource that has not been read yet
func NewContainerFile(path string, kind ContainerKind) Resource {
	return Resource{Kind: KindContainerFile, Raw: path, Path: path, Container: kind}
}

// Label returns a short human readable description
func (r Resource) Label() string {
	switch r.Kind {
	case KindMagnet:
		if r.DisplayName != "" {
			return r.DisplayName
		}
		return r.InfoHash
	case KindHosterLink, KindCloudFolder:
		return r.URL
	case KindContainerFile:
		return r.Path
	}
	return r.Raw
}

// JobState is the provider-independent state of a remote job
type JobState int

const (
	StateSubmitted JobState = iota
	StateAwaitingSelection
	StateProcessing
	StateReady
	StateError
)

func (s JobState) String() string {
	switch s {
	case StateSubmitted:
		return "SUBMITTED"
	case StateAwaitingSelection:
		return "AWAITING_SELECTION"
	case StateProcessing:
		return "PROCESSING"
	case StateReady:
		return "READY"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further polling is needed
func (s JobState) IsTerminal() bool {
	return s == StateReady || s == StateError
}

// ProviderJob is one in-flight remote task. It is owned by a single
// resolution and dropped once it reaches a terminal state.
type ProviderJob struct {
	LocalID         string
	Provider        string
	RemoteID        string
	Channel         string
	State           JobState
	Progress        float64
	RateBytesPerSec int64
	Peers           int
	Message         string
	Files           []RemoteFile
	Resource        Resource
	CreatedAt       time.Time
}

// NewProviderJob creates a job in the SUBMITTED state
func NewProviderJob(provider, remoteID string, res Resource) *ProviderJob {
	return &ProviderJob{
		LocalID:   uuid.NewString(),
		Provider:  provider,
		RemoteID:  remoteID,
		State:     StateSubmitted,
		Resource:  res,
		CreatedAt: time.Now(),
	}
}

// Apply copies a poll result into the job's last-known fields
func (j *ProviderJob) Apply(r *PollResult) {
	j.State = r.State
	j.Progress = r.Progress.Percent
	j.RateBytesPerSec = r.Progress.RateBytesPerSec
	j.Peers = r.Progress.Peers
	if r.Message != "" {
		j.Message = r.Message
	}
}

// RemoteFile is one file inside a job's result set
type RemoteFile struct {
	ID   string
	Name string
	Size int64
	// Link is the provider-internal reference that Unlock consumes.
	Link string
	// URL is set once the file is directly fetchable.
	URL string
}

// Progress is a transient snapshot handed to the progress renderer
type Progress struct {
	Percent         float64
	RateBytesPerSec int64
	Peers           int
	Phase           string
}

// PollResult is the outcome of a single status query
type PollResult struct {
	State    JobState
	Files    []RemoteFile
	Progress Progress
	Message  string
}

// CacheProbeResult is the closed set of cache-probe answers. Declaration
// order is ranking order.
type CacheProbeResult int

const (
	ProbeCached CacheProbeResult = iota
	ProbeNotCached
	ProbeNotSupported
	ProbeUnknown
)

func (p CacheProbeResult) String() string {
	switch p {
	case ProbeCached:
		return "cached"
	case ProbeNotCached:
		return "not cached"
	case ProbeNotSupported:
		return "not supported"
	default:
		return "unknown"
	}
}

// Supported reports whether the provider can handle the resource at all
func (p CacheProbeResult) Supported() bool {
	return p == ProbeCached || p == ProbeNotCached
}

// SelectionSet holds ascending, unique, 1-based indices
type SelectionSet []int

// Contains reports whether index i is selected
func (s SelectionSet) Contains(i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
		if v > i {
			return false
		}
	}
	return false
}

// Link is a resolved (display name, URL) pair handed to the downloader
type Link struct {
	Name string
	URL  string
}

// FolderEntry is one item returned by a folder listing. Folders carry a Ref
// to list next; files carry a Link and optionally an already direct URL.
type FolderEntry struct {
	Ref      string
	Name     string
	Size     int64
	IsFolder bool
	Link     string
	URL      string
}

// ProviderCredential is one configured (name, token) pair
type ProviderCredential struct {
	Name  string
	Token string
}
