package autopost

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

// NewRawImage sniffs the MIME type and dimensions of encoded image bytes.
func NewRawImage(data []byte) (RawImage, error) {
	if len(data) == 0 {
		return RawImage{}, ValidationError{Component: "image", Reason: "empty image data"}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return RawImage{}, fmt.Errorf("decode image header: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/" + format
	}
	return RawImage{
		Bytes:    data,
		MimeType: mime,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// IsJPEGOrPNG reports whether data starts with a JPEG or PNG signature.
func IsJPEGOrPNG(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}) || bytes.HasPrefix(data, []byte("\x89PNG"))
}

// TruncateText shortens s to at most max runes, ending with "..." when cut.
func TruncateText(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 3 || len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
