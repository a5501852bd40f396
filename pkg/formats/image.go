package formats

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// sniffFormat detects the image format of body, returning the go image
// registry name ("jpeg", "png", "gif", "webp").
func sniffFormat(body []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("unrecognized image data: %w", err)
	}
	return format, nil
}

func extFor(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	default:
		return "." + format
	}
}

// normalize prepares a page image for a writer. Formats outside keep
// are re-encoded as JPEG, as is everything when compress is set.
// keep is the set of formats the container supports natively.
func normalize(body []byte, compress bool, keep ...string) ([]byte, string, error) {
	format, err := sniffFormat(body)
	if err != nil {
		return nil, "", err
	}

	kept := false
	for _, k := range keep {
		if format == k {
			kept = true
			break
		}
	}
	if kept && !compress {
		return body, extFor(format), nil
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to re-encode image: %w", err)
	}
	return buf.Bytes(), ".jpg", nil
}

// imageSize returns the pixel dimensions of body.
func imageSize(body []byte) (w, h int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
