package requirements

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDataURI is returned by ParseDataURI for malformed input.
var ErrInvalidDataURI = errors.New("invalid data URI")

// Image is an opaque binary image reference.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (img Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) clone() *Image {
	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	return &Image{MIMEType: img.MIMEType, Data: data}
}

// ParseDataURI decodes a base64 data URI into an Image.
func ParseDataURI(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return Image{MIMEType: mime, Data: data}, nil
}
