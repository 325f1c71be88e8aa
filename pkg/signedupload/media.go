package signedupload

import (
	"mime"
	"path"
	"strings"
)

// MediaKind is the embedded block type an uploaded object maps to.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// DetectContentType returns contentType when set, otherwise a type guessed
// from the file extension, falling back to application/octet-stream.
func DetectContentType(fileName, contentType string) string {
	if contentType != "" {
		return contentType
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(fileName))); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// ClassifyMedia maps a file to the media kind used for embedding.
func ClassifyMedia(fileName, contentType string) MediaKind {
	ct := DetectContentType(fileName, contentType)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaImage
	case strings.HasPrefix(ct, "audio/"):
		return MediaAudio
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo
	default:
		return MediaFile
	}
}

// AcceptFilter matches files against accept patterns in the form used by
// file inputs: "image/*", "video/mp4" or ".png". An empty filter accepts all.
type AcceptFilter []string

// ParseAccept splits a comma-separated accept list.
func ParseAccept(accept string) AcceptFilter {
	var f AcceptFilter
	for _, p := range strings.Split(accept, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			f = append(f, p)
		}
	}
	return f
}

// Allows reports whether the file matches at least one pattern.
func (f AcceptFilter) Allows(fileName, contentType string) bool {
	if len(f) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(fileName))
	ct := strings.ToLower(DetectContentType(fileName, contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	for _, p := range f {
		switch {
		case strings.HasPrefix(p, "."):
			if ext == p {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(ct, strings.TrimSuffix(p, "*")) {
				return true
			}
		case p == ct:
			return true
		}
	}
	return false
}
