package resolver

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"streambridge/internal/domain"
)

// Resolver turns magnet strings, torrent descriptor bytes, and direct media
// URLs into ContentSummary values. It performs no network I/O.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

var (
	mediaURLPattern = regexp.MustCompile(`(?i)\.(mp4|mkv|mov|avi|webm)(\?.*)?$`)
	unsafeNameChars = regexp.MustCompile(`[^\w\s.-]`)
	qualityTokens   = regexp.MustCompile(`(?i)\b(1080p|720p|bluray|brrip|dvdrip)\b`)
	episodeTokens   = regexp.MustCompile(`(?i)s\d{2}e\d{2}`)
)

// Resolve classifies a string reference. Raw descriptor bytes go through
// ResolveDescriptor instead.
func (r *Resolver) Resolve(input string) (domain.ContentSummary, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.ContentSummary{}, fmt.Errorf("%w: empty input", domain.ErrInvalidReference)
	}

	if strings.HasPrefix(input, "magnet:") {
		return r.resolveMagnet(input)
	}
	if mediaURLPattern.MatchString(input) {
		return r.resolveMediaURL(input)
	}
	return domain.ContentSummary{}, fmt.Errorf("%w: not a magnet link or media URL", domain.ErrInvalidReference)
}

func (r *Resolver) resolveMediaURL(input string) (domain.ContentSummary, error) {
	parsed, err := url.Parse(input)
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("%w: %v", domain.ErrInvalidReference, err)
	}

	name := path.Base(parsed.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = "video"
	}

	return domain.ContentSummary{
		Kind:      domain.KindURL,
		Title:     name,
		Category:  detectCategory(name),
		SourceURL: input,
	}, nil
}

func (r *Resolver) resolveMagnet(input string) (domain.ContentSummary, error) {
	parsed, err := url.Parse(input)
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("%w: %v", domain.ErrInvalidReference, err)
	}
	values, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("%w: %v", domain.ErrInvalidReference, err)
	}

	infoHash, err := infoHashFromTopics(values["xt"])
	if err != nil {
		return domain.ContentSummary{}, err
	}

	title := strings.TrimSpace(values.Get("dn"))
	var totalSize int64
	if xl := values.Get("xl"); xl != "" {
		if n, parseErr := strconv.ParseInt(xl, 10, 64); parseErr == nil {
			totalSize = n
		}
	}

	summary := domain.ContentSummary{
		Kind:      domain.KindMagnet,
		InfoHash:  infoHash,
		Title:     title,
		TotalSize: totalSize,
		Trackers:  append([]string(nil), values["tr"]...),
		Category:  detectCategory(title),
		MagnetURI: input,
	}
	return summary, nil
}

// infoHashFromTopics extracts the btih info hash from the magnet xt values,
// accepting 40-char hex and 32-char base32 encodings.
func infoHashFromTopics(topics []string) (string, error) {
	for _, xt := range topics {
		if !strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			continue
		}
		hash := strings.TrimSpace(xt[len("urn:btih:"):])
		if hash == "" {
			continue
		}
		if len(hash) == 40 {
			if _, err := hex.DecodeString(hash); err == nil {
				return strings.ToLower(hash), nil
			}
		}

		encoding := base32.StdEncoding.WithPadding(base32.NoPadding)
		decoded, err := encoding.DecodeString(strings.TrimRight(strings.ToUpper(hash), "="))
		if err != nil || len(decoded) != 20 {
			continue
		}
		return hex.EncodeToString(decoded), nil
	}
	return "", fmt.Errorf("%w: btih topic missing or malformed", domain.ErrInvalidReference)
}

// ResolveDescriptor parses raw bencoded torrent descriptor bytes.
func (r *Resolver) ResolveDescriptor(raw []byte) (domain.ContentSummary, error) {
	mi, err := metainfo.Load(bytes.NewReader(raw))
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("%w: parse descriptor: %v", domain.ErrInvalidReference, err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return domain.ContentSummary{}, fmt.Errorf("%w: descriptor info: %v", domain.ErrInvalidReference, err)
	}

	name := info.BestName()
	files := make([]domain.FileEntry, 0, len(info.UpvertedFiles()))
	for _, f := range info.UpvertedFiles() {
		rel := strings.Join(f.Path, "/")
		if rel == "" {
			rel = name
		}
		files = append(files, domain.FileEntry{
			Name: path.Base(rel),
			Path: rel,
			Size: f.Length,
			Kind: ClassifyFile(rel),
		})
	}

	var trackers []string
	seen := map[string]struct{}{}
	for _, tier := range mi.UpvertedAnnounceList() {
		for _, tr := range tier {
			if _, ok := seen[tr]; ok {
				continue
			}
			seen[tr] = struct{}{}
			trackers = append(trackers, tr)
		}
	}

	return domain.ContentSummary{
		Kind:      domain.KindDescriptor,
		InfoHash:  mi.HashInfoBytes().HexString(),
		Title:     name,
		TotalSize: info.TotalLength(),
		Trackers:  trackers,
		Files:     files,
		Category:  detectCategory(name),
	}, nil
}

func detectCategory(name string) domain.Category {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "movie") || qualityTokens.MatchString(name):
		return domain.CategoryMovie
	case episodeTokens.MatchString(name) || strings.Contains(lower, "episode"):
		return domain.CategoryTV
	case name == "":
		return domain.CategoryOther
	default:
		return domain.CategoryVideo
	}
}

var mediaKinds = map[string]domain.MediaKind{
	"mp4": domain.MediaVideo, "mkv": domain.MediaVideo, "avi": domain.MediaVideo,
	"mov": domain.MediaVideo, "wmv": domain.MediaVideo, "flv": domain.MediaVideo,
	"webm": domain.MediaVideo, "m4v": domain.MediaVideo,
	"mp3": domain.MediaAudio, "wav": domain.MediaAudio, "ogg": domain.MediaAudio,
	"flac": domain.MediaAudio, "m4a": domain.MediaAudio, "aac": domain.MediaAudio,
	"jpg": domain.MediaImage, "jpeg": domain.MediaImage, "png": domain.MediaImage,
	"gif": domain.MediaImage, "bmp": domain.MediaImage, "webp": domain.MediaImage,
	"pdf": domain.MediaDocument, "doc": domain.MediaDocument, "docx": domain.MediaDocument,
	"txt": domain.MediaDocument, "rtf": domain.MediaDocument, "odt": domain.MediaDocument,
}

var mimeTypes = map[string]string{
	"mp4": "video/mp4", "mkv": "video/x-matroska", "avi": "video/x-msvideo",
	"mov": "video/quicktime", "wmv": "video/x-ms-wmv", "flv": "video/x-flv",
	"webm": "video/webm", "m4v": "video/x-m4v",
	"mp3": "audio/mpeg", "wav": "audio/wav", "ogg": "audio/ogg",
	"flac": "audio/flac", "m4a": "audio/mp4", "aac": "audio/aac",
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png",
	"gif": "image/gif", "bmp": "image/bmp", "webp": "image/webp",
	"pdf": "application/pdf", "doc": "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt": "text/plain", "rtf": "application/rtf",
	"odt": "application/vnd.oasis.opendocument.text",
}

func fileExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// ClassifyFile maps a filename to its media kind by extension.
func ClassifyFile(name string) domain.MediaKind {
	if kind, ok := mediaKinds[fileExt(name)]; ok {
		return kind
	}
	return domain.MediaOther
}

// MimeType returns the MIME type for a filename, defaulting to octet-stream.
func MimeType(name string) string {
	if mime, ok := mimeTypes[fileExt(name)]; ok {
		return mime
	}
	return "application/octet-stream"
}
