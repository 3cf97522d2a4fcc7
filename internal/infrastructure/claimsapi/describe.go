package claimsapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// StreamDescription posts img as a single-file multipart body and returns the
// raw streamed description. The caller owns closing the body.
func (d *Describer) StreamDescription(ctx context.Context, img domain.SourceImage) (io.ReadCloser, error) {
	if img.Empty() {
		return nil, domain.WrapError(domain.ErrValidation, "stream description", errors.New("no image selected"))
	}
	payload, contentType, err := buildImageForm(img)
	if err != nil {
		return nil, fmt.Errorf("build description form: %w", err)
	}
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	call := func(callCtx context.Context) error {
		req, err := d.client.newRequest(callCtx, http.MethodPost, endpoint, bytes.NewReader(payload), "description")
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "text/plain")

		r, err := d.client.streamClient.Do(req)
		if err != nil {
			return fmt.Errorf("description request: %w", err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			return newHTTPStatusError("description", r)
		}
		resp = r
		return nil
	}
	if err := d.client.execute(ctx, d.client.opts.SubmitExecutor, "description.stream", call); err != nil {
		return nil, wrapCallError("stream description", err, domain.ErrNetwork)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, domain.WrapError(domain.ErrStream, "stream description", errors.New("response has no readable body"))
	}
	return resp.Body, nil
}

func (d *Describer) endpoint() (string, error) {
	raw := d.client.opts.DescriptionURL
	if raw == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "stream description", errors.New("description endpoint is not configured"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse description endpoint", err)
	}
	q := u.Query()
	if model := strings.TrimSpace(d.client.opts.DescriptionModelID); model != "" {
		q.Set("model_id", model)
	}
	if prompt := strings.TrimSpace(d.client.opts.DescriptionPrompt); prompt != "" {
		q.Set("prompt", prompt)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func buildImageForm(img domain.SourceImage) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := img.Filename
	if strings.TrimSpace(filename) == "" {
		filename = "claim-image"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", img.MimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}
