// Package claimsapi talks to the claim backends: the streaming description
// endpoint, the triage agent and the sample gallery.
package claimsapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/claim-intake/internal/infrastructure/resilience"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultMaxImageBytes = 20 << 20
	maxTriageBodyBytes   = 1 << 20
	maxErrorBodyBytes    = 2048
)

type Options struct {
	DescriptionURL     string
	DescriptionModelID string
	DescriptionPrompt  string
	TriageURL          string
	SamplesURL         string
	SampleImageBaseURL string

	Timeout       time.Duration
	MaxImageBytes int64

	// SubmitExecutor guards description and triage calls; it must not retry.
	SubmitExecutor *resilience.Executor
	// GalleryExecutor guards sample listing and fetching.
	GalleryExecutor *resilience.Executor
}

type Client struct {
	opts Options

	httpClient   *http.Client
	streamClient *http.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = defaultMaxImageBytes
	}
	opts.DescriptionURL = strings.TrimSpace(opts.DescriptionURL)
	opts.TriageURL = strings.TrimSpace(opts.TriageURL)
	opts.SamplesURL = strings.TrimSpace(opts.SamplesURL)
	opts.SampleImageBaseURL = strings.TrimRight(strings.TrimSpace(opts.SampleImageBaseURL), "/")

	// The description body streams for as long as the model generates, so
	// only the wait for response headers is bounded.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.Timeout

	return &Client{
		opts:         opts,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{Transport: transport},
	}
}

type Describer struct {
	client *Client
}

func NewDescriber(client *Client) *Describer {
	return &Describer{client: client}
}

type TriageAgent struct {
	client *Client
}

func NewTriageAgent(client *Client) *TriageAgent {
	return &TriageAgent{client: client}
}

type SampleGallery struct {
	client *Client
}

func NewSampleGallery(client *Client) *SampleGallery {
	return &SampleGallery{client: client}
}
