package claimsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

const claimIDHeader = "X-Claim-Id"

// RunTriage asks the agent to triage the claim. The service derives the claim
// content server-side, so no body is sent.
func (a *TriageAgent) RunTriage(ctx context.Context, claimID string) (*domain.TriageResponse, error) {
	var out domain.TriageResponse
	call := func(callCtx context.Context) error {
		req, err := a.client.newRequest(callCtx, http.MethodPost, a.client.opts.TriageURL, http.NoBody, "triage")
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if claimID != "" {
			req.Header.Set(claimIDHeader, claimID)
		}

		resp, err := a.client.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("triage request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPStatusError("triage", resp)
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTriageBodyBytes))
		if err != nil {
			return fmt.Errorf("read triage response: %w", err)
		}
		out = domain.TriageResponse{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode triage response: %w: %w", errMalformedResponse, err)
		}
		return nil
	}

	if err := a.client.execute(ctx, a.client.opts.SubmitExecutor, "triage.run", call); err != nil {
		return nil, wrapCallError("run triage", err, domain.ErrTriage)
	}
	return &out, nil
}
