package claimsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/infrastructure/imagefile"
)

type sampleListResponse struct {
	Images []string `json:"images"`
}

// ListSamples returns the gallery image names in server order.
func (g *SampleGallery) ListSamples(ctx context.Context) ([]string, error) {
	var out sampleListResponse
	call := func(callCtx context.Context) error {
		req, err := g.client.newRequest(callCtx, http.MethodGet, g.client.opts.SamplesURL, nil, "samples")
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := g.client.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("samples request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPStatusError("samples", resp)
		}
		out = sampleListResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode samples response: %w: %w", errMalformedResponse, err)
		}
		return nil
	}
	if err := g.client.execute(ctx, g.client.opts.GalleryExecutor, "samples.list", call); err != nil {
		return nil, wrapCallError("list samples", err, domain.ErrNetwork)
	}

	names := make([]string, 0, len(out.Images))
	for _, name := range out.Images {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// FetchSample downloads one gallery image by name.
func (g *SampleGallery) FetchSample(ctx context.Context, name string) (domain.SourceImage, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "/") {
		return domain.SourceImage{}, domain.WrapError(domain.ErrInvalidInput, "fetch sample", fmt.Errorf("invalid sample name %q", name))
	}
	if g.client.opts.SampleImageBaseURL == "" {
		return domain.SourceImage{}, domain.WrapError(domain.ErrInvalidInput, "fetch sample", errors.New("sample image endpoint is not configured"))
	}
	endpoint := g.client.opts.SampleImageBaseURL + "/" + url.PathEscape(name)

	var img domain.SourceImage
	call := func(callCtx context.Context) error {
		req, err := g.client.newRequest(callCtx, http.MethodGet, endpoint, nil, "sample image")
		if err != nil {
			return err
		}
		resp, err := g.client.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sample image request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPStatusError("sample image", resp)
		}
		mimeType := mediaType(resp.Header.Get("Content-Type"))
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = imagefile.MIMEType(name)
		}
		loaded, err := imagefile.Read(resp.Body, name, mimeType, g.client.opts.MaxImageBytes)
		if err != nil {
			return err
		}
		img = loaded
		return nil
	}
	if err := g.client.execute(ctx, g.client.opts.GalleryExecutor, "samples.fetch", call); err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return domain.SourceImage{}, fmt.Errorf("fetch sample %s: %w", name, err)
		}
		return domain.SourceImage{}, wrapCallError("fetch sample", err, domain.ErrNetwork)
	}
	img.Origin = domain.OriginSample
	return img, nil
}
