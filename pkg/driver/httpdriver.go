package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/log"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
)

// CorrelationHeader carries the correlation id on every chaos call so the
// remote side can deduplicate retries and honour targeted clears
const CorrelationHeader = "X-Chaos-Correlation-Id"

// executeBackoff is the in-driver wait schedule between transport-level retries
var executeBackoff = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond}

// ClientStats counts the remote traffic of one driver
type ClientStats struct {
	RequestsSent      int64     `json:"requests_sent"`
	ResponsesReceived int64     `json:"responses_received"`
	ErrorsEncountered int64     `json:"errors_encountered"`
	LastRequestTime   time.Time `json:"last_request_time"`
}

// HTTPDriver speaks the chaos wire contract of one target service: POST
// {base}/api/v1/chaos/{kind} injects, DELETE {base}/api/v1/chaos clears.
// 2xx is success, 4xx a non-retryable rejection, 5xx retryable.
type HTTPDriver struct {
	service string
	baseURL string
	client  *http.Client

	requestsSent      atomic.Int64
	responsesReceived atomic.Int64
	errorsEncountered atomic.Int64
	lastRequestUnix   atomic.Int64
}

// NewHTTPDriver build the driver for a known target service
func NewHTTPDriver(service, baseURL string, timeout time.Duration) (*HTTPDriver, error) {
	if !KnownService(service) {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: service, Reason: fmt.Sprintf("unknown target service '%s'", service)}
	}
	if baseURL == "" {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: service, Reason: "no base URL configured"}
	}
	return &HTTPDriver{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Validate is the pure, side-effect-free parameter check. The engine calls
// it again right before Execute as a defense against stale pre-validation.
func (d *HTTPDriver) Validate(action scenario.Action) error {
	return validateAgainstCatalog(d.service, action)
}

// Execute performs the remote chaos call. Transport failures and 5xx
// responses get one bounded in-driver retry round (100ms, 400ms); structured
// remote rejections surface immediately.
func (d *HTTPDriver) Execute(ctx context.Context, action scenario.Action, correlationID string) error {
	if err := d.Validate(action); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]interface{}{
		"kind":       action.Kind,
		"parameters": scenario.Params(action.Parameters),
	})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: "could not encode chaos request: " + err.Error()}
	}

	url := fmt.Sprintf("%s/api/v1/chaos/%s", d.baseURL, action.Kind)
	log.InfoWithValues("[Chaos]: Injecting chaos action", logrus.Fields{
		"Service":       d.service,
		"Kind":          action.Kind,
		"CorrelationID": correlationID,
	})

	var lastErr error
	for attempt := 0; attempt <= len(executeBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(executeBackoff[attempt-1]):
			case <-ctx.Done():
				return d.deadlineError(ctx)
			}
		}
		lastErr = d.post(ctx, url, body, correlationID)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return d.deadlineError(ctx)
		}
		if !cerrors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (d *HTTPDriver) post(ctx context.Context, url string, body []byte, correlationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(CorrelationHeader, correlationID)

	d.requestsSent.Add(1)
	d.lastRequestUnix.Store(time.Now().UnixNano())
	resp, err := d.client.Do(req)
	if err != nil {
		d.errorsEncountered.Add(1)
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: "transport failure: " + err.Error(), Retryable: true}
	}
	defer resp.Body.Close()
	d.responsesReceived.Add(1)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		d.errorsEncountered.Add(1)
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: fmt.Sprintf("rejected with status %d: %s", resp.StatusCode, readReason(resp.Body))}
	default:
		d.errorsEncountered.Add(1)
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: fmt.Sprintf("remote failure with status %d", resp.StatusCode), Retryable: true}
	}
}

// Clear reverses the effect of a prior Execute carrying the same correlation
// id. A 404 means nothing is left to clear and is not an error.
func (d *HTTPDriver) Clear(ctx context.Context, correlationID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.baseURL+"/api/v1/chaos", nil)
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: err.Error()}
	}
	req.Header.Set(CorrelationHeader, correlationID)

	d.requestsSent.Add(1)
	d.lastRequestUnix.Store(time.Now().UnixNano())
	resp, err := d.client.Do(req)
	if err != nil {
		d.errorsEncountered.Add(1)
		if ctx.Err() != nil {
			return d.deadlineError(ctx)
		}
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: "transport failure: " + err.Error(), Retryable: true}
	}
	defer resp.Body.Close()
	d.responsesReceived.Add(1)

	if resp.StatusCode == http.StatusNotFound || (resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil
	}
	d.errorsEncountered.Add(1)
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: fmt.Sprintf("clear failed with status %d", resp.StatusCode)}
}

// Stats return a point-in-time copy of the traffic counters
func (d *HTTPDriver) Stats() ClientStats {
	return ClientStats{
		RequestsSent:      d.requestsSent.Load(),
		ResponsesReceived: d.responsesReceived.Load(),
		ErrorsEncountered: d.errorsEncountered.Load(),
		LastRequestTime:   time.Unix(0, d.lastRequestUnix.Load()),
	}
}

func (d *HTTPDriver) deadlineError(ctx context.Context) error {
	if ctx.Err() == context.Canceled {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeCanceled, Target: d.service, Reason: "canceled"}
	}
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeActionFailed, Target: d.service, Reason: "deadline exceeded", Retryable: true}
}

func readReason(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(raw) == 0 {
		return "no reason given"
	}
	var structured struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		if structured.Error != "" {
			return structured.Error
		}
		if structured.Message != "" {
			return structured.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
