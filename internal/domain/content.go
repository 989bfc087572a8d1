package domain

// ReferenceKind tells which form of content reference a summary was resolved from.
type ReferenceKind string

const (
	KindMagnet     ReferenceKind = "magnet"
	KindDescriptor ReferenceKind = "descriptor"
	KindURL        ReferenceKind = "url"
)

// Category is a heuristic content classification derived from the display name.
type Category string

const (
	CategoryMovie Category = "movie"
	CategoryTV    Category = "tv"
	CategoryVideo Category = "video"
	CategoryOther Category = "other"
)

// MediaKind classifies a manifest entry by filename extension.
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// FileEntry describes one file inside a torrent. Immutable once computed.
type FileEntry struct {
	Name string
	Path string
	Size int64
	Kind MediaKind
}

// ContentSummary is the result of resolving a content reference. For KindURL
// summaries the manifest is always empty and InfoHash is empty as well.
type ContentSummary struct {
	Kind      ReferenceKind
	InfoHash  string
	Title     string
	TotalSize int64
	Trackers  []string
	Files     []FileEntry
	Category  Category
	SourceURL string // set for KindURL only
	MagnetURI string // original or synthesized magnet form
}

// TransportSupport is the outcome of the one-shot peer transport probe.
type TransportSupport struct {
	Supported bool
	Reason    string
}
