/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
)

// Outcome classifies a probe.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeHTTPFailure      Outcome = "http_failure"
	OutcomeTransportFailure Outcome = "transport_failure"
)

const maxDrainBytes = 64 << 10

// Result is the outcome of one probe.
type Result struct {
	StatusCode   int
	ResponseTime time.Duration
	Outcome      Outcome
	Err          error
}

// Success reports whether the probe returned a 2xx response.
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// ErrorMessage returns the error text or "".
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}

	return r.Err.Error()
}

// HTTPProber probes over HTTP with a fixed timeout.
type HTTPProber struct {
	client    *http.Client
	method    string
	userAgent string
}

// NewHTTPProber builds a prober from cfg. A nil client gets one with cfg's timeout.
func NewHTTPProber(cfg *config.HealthConfig, client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Std()}
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	return &HTTPProber{client: client, method: method, userAgent: cfg.UserAgent}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, p.method, url, http.NoBody)
	if err != nil {
		return Result{Outcome: OutcomeTransportFailure, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{
			ResponseTime: time.Since(start),
			Outcome:      OutcomeTransportFailure,
			Err:          classify(err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	res := Result{StatusCode: resp.StatusCode, ResponseTime: time.Since(start), Outcome: OutcomeSuccess}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		res.Outcome = OutcomeHTTPFailure
		res.Err = fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}

	return res
}

func classify(err error) error {
	var netErr net.Error

	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("probe timed out: %w", err)
	}

	return fmt.Errorf("probe failed: %w", err)
}
