/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rotation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/codeops-vault/vault/internal/crypto/envelope"
	"github.com/codeops-vault/vault/internal/vaulterr"
)

// StrategyExecutor produces a new plaintext value for a rotation attempt.
type StrategyExecutor interface {
	Execute(ctx context.Context, p *Policy) ([]byte, error)
}

// randomGenerateExecutor implements RANDOM_GENERATE via the envelope engine's
// uniform random-string generator.
type randomGenerateExecutor struct{}

func (randomGenerateExecutor) Execute(ctx context.Context, p *Policy) ([]byte, error) {
	if p.Params.RandomLength <= 0 {
		return nil, vaulterr.InvalidInput("randomLength must be present for RANDOM_GENERATE")
	}
	if p.Params.RandomCharset == "" {
		return nil, vaulterr.InvalidInput("randomCharset must be present for RANDOM_GENERATE")
	}
	s, err := envelope.GenerateRandomString(p.Params.RandomLength, p.Params.RandomCharset)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// externalAPIExecutor implements EXTERNAL_API: an HTTP GET against the
// configured URL, guarded by a circuit breaker so a consistently failing
// endpoint stops being hammered on every sweep.
type externalAPIExecutor struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func newExternalAPIExecutor() *externalAPIExecutor {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		},
		Timeout: 30 * time.Second,
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "rotation-external-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &externalAPIExecutor{client: client, breaker: breaker}
}

func (e *externalAPIExecutor) Execute(ctx context.Context, p *Policy) ([]byte, error) {
	if p.Params.ExternalAPIURL == "" {
		return nil, vaulterr.InvalidInput("externalApiUrl must be present for EXTERNAL_API")
	}

	return e.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Params.ExternalAPIURL, nil)
		if err != nil {
			return nil, fmt.Errorf("rotation: build external-api request: %w", err)
		}
		for k, v := range p.Params.ExternalHeaders {
			req.Header.Set(k, v)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("rotation: external-api request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("rotation: read external-api response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("rotation: external-api returned status %d", resp.StatusCode)
		}
		return []byte(strings.TrimSpace(string(body))), nil
	})
}

// customScriptExecutor implements CUSTOM_SCRIPT. Attempting a rotation with
// this strategy always fails not-implemented, per contract.
type customScriptExecutor struct{}

func (customScriptExecutor) Execute(ctx context.Context, p *Policy) ([]byte, error) {
	return nil, vaulterr.NotImplemented("CUSTOM_SCRIPT rotation is not implemented")
}

func defaultExecutors() map[Strategy]StrategyExecutor {
	return map[Strategy]StrategyExecutor{
		StrategyRandomGenerate: randomGenerateExecutor{},
		StrategyExternalAPI:    newExternalAPIExecutor(),
		StrategyCustomScript:   customScriptExecutor{},
	}
}
