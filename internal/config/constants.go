package config

// SupportedFormats lists the ebook file extensions accepted for upload,
// without the leading dot.
var SupportedFormats = []string{
	"epub", "pdf", "mobi", "azw", "azw3", "fb2", "txt", "rtf", "djvu", "cbz", "cbr",
}

// MimeTypes maps ebook formats to the MIME types served on download and
// advertised in OPDS acquisition links.
var MimeTypes = map[string]string{
	"epub": "application/epub+zip",
	"pdf":  "application/pdf",
	"mobi": "application/x-mobipocket-ebook",
	"azw":  "application/vnd.amazon.ebook",
	"azw3": "application/vnd.amazon.ebook",
	"fb2":  "application/x-fictionbook+xml",
	"txt":  "text/plain",
	"rtf":  "application/rtf",
	"djvu": "image/vnd.djvu",
	"cbz":  "application/vnd.comicbook+zip",
	"cbr":  "application/vnd.comicbook-rar",
}

// MimeTypeFor returns the MIME type for a format, falling back to a
// generic binary type.
func MimeTypeFor(format string) string {
	if mt, ok := MimeTypes[format]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsSupportedFormat reports whether the given format (no dot, lowercase)
// is accepted for upload.
func IsSupportedFormat(format string) bool {
	_, ok := MimeTypes[format]
	return ok
}
