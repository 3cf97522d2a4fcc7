// Package imagefile loads claim photos from disk and extracts the EXIF
// subset kept alongside a submission.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanoberholster/imagemeta"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// SupportedImageExtensions maps accepted file extensions to their MIME type.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// MIMEType resolves the MIME type of name by extension. Unknown extensions
// yield an empty string.
func MIMEType(name string) string {
	return SupportedImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Load reads path as an uploaded claim image. Files larger than maxBytes are
// rejected; maxBytes <= 0 disables the check.
func Load(path string, maxBytes int64) (domain.SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := Read(f, filepath.Base(path), "", maxBytes)
	if err != nil {
		return domain.SourceImage{}, err
	}
	img.Origin = domain.OriginUpload
	return img, nil
}

// Read builds a SourceImage from r. An empty mimeType is resolved from the
// filename extension.
func Read(r io.Reader, filename, mimeType string, maxBytes int64) (domain.SourceImage, error) {
	reader := r
	if maxBytes > 0 {
		reader = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("read image: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return domain.SourceImage{}, domain.WrapError(domain.ErrInvalidInput, "read image", fmt.Errorf("image exceeds %d bytes", maxBytes))
	}
	if len(data) == 0 {
		return domain.SourceImage{}, domain.WrapError(domain.ErrInvalidInput, "read image", errors.New("image is empty"))
	}

	if strings.TrimSpace(mimeType) == "" {
		mimeType = MIMEType(filename)
	}
	return domain.SourceImage{
		Filename: filename,
		MimeType: mimeType,
		Data:     data,
		Capture:  ExtractCapture(data),
	}, nil
}

// ExtractCapture decodes EXIF from data. Images without readable metadata
// yield nil.
func ExtractCapture(data []byte) *domain.CaptureMetadata {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	capture := &domain.CaptureMetadata{}
	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		capture.Latitude = gps.Latitude()
		capture.Longitude = gps.Longitude()
		capture.HasGPS = true
	}

	switch {
	case !exifData.DateTimeOriginal().IsZero():
		capture.TakenAt = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		capture.TakenAt = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		capture.TakenAt = exifData.ModifyDate()
	}

	capture.CameraMake = strings.TrimSpace(exifData.Make)
	capture.CameraModel = strings.TrimSpace(exifData.Model)

	if !capture.HasGPS && capture.TakenAt.IsZero() && capture.CameraMake == "" && capture.CameraModel == "" {
		return nil
	}
	return capture
}
