package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/verity-labs/verity-go/internal/dataset"
	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/env"
)

// EvaluatorConfig locates the external evaluation collaborator.
type EvaluatorConfig struct {
	BaseURL string
	// ConnectTimeout bounds dialing and model listing. Scenario calls are
	// deliberately unbounded; the battery has no internal deadline and the
	// heartbeat is the liveness signal.
	ConnectTimeout time.Duration
}

func EvaluatorConfigFromEnv() (EvaluatorConfig, error) {
	timeout, err := env.Duration("VERITY_EVALUATOR_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return EvaluatorConfig{}, err
	}
	cfg := EvaluatorConfig{
		BaseURL:        env.String("VERITY_EVALUATOR_URL", ""),
		ConnectTimeout: timeout,
	}
	return cfg, cfg.Validate()
}

func (c EvaluatorConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("VERITY_EVALUATOR_URL is required")
	}
	return nil
}

// HTTPEvaluator talks JSON over HTTP to the evaluation collaborator. The
// candidate model list is fetched once at construction; it must not drift
// mid-sweep or the checkpoint comparison becomes meaningless.
type HTTPEvaluator struct {
	baseURL string
	client  *http.Client
	models  []string
}

func NewHTTPEvaluator(ctx context.Context, cfg EvaluatorConfig) (*HTTPEvaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &HTTPEvaluator{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{},
	}

	listCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	var listed struct {
		Models []string `json:"models"`
	}
	if err := e.call(listCtx, http.MethodGet, "/v1/models", nil, &listed); err != nil {
		return nil, fmt.Errorf("list candidate models: %w", err)
	}
	if len(listed.Models) == 0 {
		return nil, errors.New("evaluator reports no candidate models")
	}
	e.models = listed.Models
	return e, nil
}

func (e *HTTPEvaluator) CandidateModels() []string {
	return e.models
}

func (e *HTTPEvaluator) ScoreModel(ctx context.Context, model string, cfg domain.ScenarioConfig, profile dataset.Profile) (ModelScore, []string, error) {
	request := struct {
		Model   string                `json:"model"`
		Config  domain.ScenarioConfig `json:"config"`
		Profile dataset.Profile       `json:"profile"`
	}{Model: model, Config: cfg, Profile: profile}

	var response struct {
		Score    ModelScore `json:"score"`
		Warnings []string   `json:"warnings"`
	}
	if err := e.call(ctx, http.MethodPost, "/v1/score", request, &response); err != nil {
		return ModelScore{}, nil, err
	}
	return response.Score, response.Warnings, nil
}

func (e *HTTPEvaluator) RunBattery(ctx context.Context, cfg domain.ScenarioConfig, profile dataset.Profile) (BatteryOutcome, []string, error) {
	request := struct {
		Config  domain.ScenarioConfig `json:"config"`
		Profile dataset.Profile       `json:"profile"`
	}{Config: cfg, Profile: profile}

	var response struct {
		Outcome  BatteryOutcome `json:"outcome"`
		Warnings []string       `json:"warnings"`
	}
	if err := e.call(ctx, http.MethodPost, "/v1/battery", request, &response); err != nil {
		return BatteryOutcome{}, nil, err
	}
	return response.Outcome, response.Warnings, nil
}

func (e *HTTPEvaluator) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("evaluator %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("evaluator %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
