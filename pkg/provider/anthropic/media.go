package anthropic

import (
	"fmt"
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
)

// Media ceilings, in decoded bytes.
const (
	MaxImageSize        = 5 * 1024 * 1024
	MaxPDFSize          = 32 * 1024 * 1024
	MaxTotalImageSize   = 100 * 1024 * 1024
	MaxImagesPerRequest = 100
)

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// dataURI is a parsed "data:<media type>[;base64],<payload>" URL.
type dataURI struct {
	MediaType string
	Data      string
}

// parseDataURI splits a data URI. ok is false for URLs that are not data
// URIs; err is set for data URIs without a payload separator.
func parseDataURI(url string) (uri dataURI, ok bool, err *api.APIError) {
	if !strings.HasPrefix(url, "data:") {
		return dataURI{}, false, nil
	}
	header, data, found := strings.Cut(url, ",")
	if !found {
		return dataURI{}, true, api.NewInvalidRequestError("messages", "malformed data URI: missing ',' separator")
	}
	mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return dataURI{MediaType: mediaType, Data: data}, true, nil
}

// decodedSize estimates the decoded size of a base64 payload.
func decodedSize(b64 string) float64 {
	return float64(len(b64)) * 3 / 4
}

func megabytes(n float64) float64 {
	return n / (1024 * 1024)
}

// imageBlock converts an image_url part. Data URIs are validated against
// the supported types and the single-image ceiling.
func imageBlock(part api.ContentPart) (ContentBlock, *api.APIError) {
	if part.ImageURL == nil || part.ImageURL.URL == "" {
		return ContentBlock{}, api.NewInvalidRequestError("messages", "image_url part requires image_url.url")
	}
	url := part.ImageURL.URL

	uri, isData, err := parseDataURI(url)
	if err != nil {
		return ContentBlock{}, err
	}
	if !isData {
		return ContentBlock{
			Type:         blockImage,
			Source:       rawSource(Source{Type: "url", URL: url}),
			CacheControl: part.CacheControl,
		}, nil
	}

	if !supportedImageTypes[uri.MediaType] {
		return ContentBlock{}, api.NewInvalidRequestError("messages",
			fmt.Sprintf("Unsupported media type: %s", uri.MediaType))
	}
	if size := decodedSize(uri.Data); size > MaxImageSize {
		return ContentBlock{}, api.NewInvalidRequestError("messages",
			fmt.Sprintf("Image size exceeds %.1fMB limit: %.2fMB", megabytes(MaxImageSize), megabytes(size)))
	}

	return ContentBlock{
		Type:         blockImage,
		Source:       rawSource(Source{Type: "base64", MediaType: uri.MediaType, Data: uri.Data}),
		CacheControl: part.CacheControl,
	}, nil
}

// pdfBlock converts a pdf_url part into a document block.
func pdfBlock(part api.ContentPart) (ContentBlock, *api.APIError) {
	if part.PDFURL == nil || part.PDFURL.URL == "" {
		return ContentBlock{}, api.NewInvalidRequestError("messages", "pdf_url part requires pdf_url.url")
	}
	url := part.PDFURL.URL

	uri, isData, err := parseDataURI(url)
	if err != nil {
		return ContentBlock{}, err
	}
	if !isData {
		return ContentBlock{
			Type:         blockDocument,
			Source:       rawSource(Source{Type: "url", URL: url}),
			CacheControl: part.CacheControl,
		}, nil
	}

	if uri.MediaType != "application/pdf" {
		return ContentBlock{}, api.NewInvalidRequestError("messages",
			fmt.Sprintf("Unsupported media type: %s", uri.MediaType))
	}
	if size := decodedSize(uri.Data); size > MaxPDFSize {
		return ContentBlock{}, api.NewInvalidRequestError("messages",
			fmt.Sprintf("PDF size exceeds %.1fMB limit: %.2fMB", megabytes(MaxPDFSize), megabytes(size)))
	}

	return ContentBlock{
		Type:         blockDocument,
		Source:       rawSource(Source{Type: "base64", MediaType: "application/pdf", Data: uri.Data}),
		CacheControl: part.CacheControl,
	}, nil
}

// ValidateImageTotals checks the aggregate ceilings across all messages:
// the summed decoded size of inline images and the image count. Each image
// may be within its own limit and still fail here.
func ValidateImageTotals(messages []api.ChatMessage) *api.APIError {
	var total float64
	count := 0
	for _, msg := range messages {
		for _, part := range msg.Content.Parts {
			if part.Type != api.PartImageURL || part.ImageURL == nil {
				continue
			}
			if !strings.HasPrefix(part.ImageURL.URL, "data:image") {
				continue
			}
			_, data, _ := strings.Cut(part.ImageURL.URL, ",")
			total += decodedSize(data)
			count++
		}
	}

	if total > MaxTotalImageSize {
		return api.NewInvalidRequestError("messages",
			fmt.Sprintf("Total image size exceeds %.1fMB limit: %.2fMB", megabytes(MaxTotalImageSize), megabytes(total)))
	}
	if count > MaxImagesPerRequest {
		return api.NewInvalidRequestError("messages",
			fmt.Sprintf("Too many images: %d. Maximum is %d.", count, MaxImagesPerRequest))
	}
	return nil
}
