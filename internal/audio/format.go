package audio

import "strings"

var extContentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".flac": "audio/flac",
	".webm": "audio/webm",
	".aac":  "audio/aac",
}

// ContentTypeFromExt returns the MIME type for a file extension (with dot),
// or application/octet-stream when unknown.
func ContentTypeFromExt(ext string) string {
	if ct, ok := extContentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ExtFromContentType is the inverse of ContentTypeFromExt. It returns ""
// for types that are not accepted.
func ExtFromContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/webm":
		return ".webm"
	case "audio/aac":
		return ".aac"
	}
	return ""
}

// IsSupportedExt reports whether uploads with this extension are accepted.
func IsSupportedExt(ext string) bool {
	_, ok := extContentTypes[strings.ToLower(ext)]
	return ok
}
