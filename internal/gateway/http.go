package gateway

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

	"github.com/zulandar/carpool/internal/models"
)

const maxBodyBytes = 1 << 20

// HTTPOpts holds parameters for creating an HTTPGateway.
type HTTPOpts struct {
	BaseURL    string        // required, e.g. http://localhost:8080
	Timeout    time.Duration // per-request timeout; default 40s
	HTTPClient *http.Client  // optional override, mainly for tests
}

// HTTPGateway talks to the trip backend over its REST API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTP creates an HTTPGateway.
func NewHTTP(opts HTTPOpts) (*HTTPGateway, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 40 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
	}, nil
}

func (g *HTTPGateway) CurrentTripForDriver(ctx context.Context, driverID int64) (*models.Trip, error) {
	return g.currentTrip(ctx, "current trip for driver", fmt.Sprintf("/viaje/conductor/%d/actual", driverID))
}

func (g *HTTPGateway) CurrentTripForPassenger(ctx context.Context, passengerID int64) (*models.Trip, error) {
	return g.currentTrip(ctx, "current trip for passenger", fmt.Sprintf("/viaje/pasajero/%d/actual", passengerID))
}

func (g *HTTPGateway) currentTrip(ctx context.Context, op, path string) (*models.Trip, error) {
	status, body, err := g.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		return nil, ErrNotFound
	case status >= 500:
		return nil, &TransientError{Op: op, StatusCode: status, Err: errors.New(reasonFrom(status, body))}
	case status >= 300:
		return nil, &TransientError{Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", reasonFrom(status, body))}
	}
	trip, err := decodeTrip(body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	if trip == nil {
		return nil, ErrNotFound
	}
	return trip, nil
}

func (g *HTTPGateway) TryStart(ctx context.Context, tripID int64) (StartResult, error) {
	const op = "start trip"
	status, body, err := g.do(ctx, op, http.MethodPut, fmt.Sprintf("/viaje/%d/iniciar", tripID), nil)
	if err != nil {
		return StartResult{}, err
	}
	switch {
	case status >= 500:
		return StartResult{}, &TransientError{Op: op, StatusCode: status, Err: errors.New(reasonFrom(status, body))}
	case status >= 400:
		return StartResult{Started: false, Reason: reasonFrom(status, body)}, nil
	}
	return StartResult{Started: true, Reason: strings.TrimSpace(string(body))}, nil
}

func (g *HTTPGateway) Cancel(ctx context.Context, tripID, actorID int64, role models.Role) (*models.Trip, error) {
	kind, err := roleToWire(role)
	if err != nil {
		return nil, err
	}
	return g.mutateTrip(ctx, "cancel trip", fmt.Sprintf("/viaje/%d/cancelar", tripID), cancelRequest{UserID: actorID, Kind: kind})
}

func (g *HTTPGateway) Finish(ctx context.Context, tripID, driverID int64) (*models.Trip, error) {
	return g.mutateTrip(ctx, "finish trip", fmt.Sprintf("/viaje/finalizar/%d/%d", tripID, driverID), nil)
}

func (g *HTTPGateway) Comment(ctx context.Context, tripID, actorID int64, text string) error {
	const op = "comment trip"
	req := commentRequest{UserID: actorID, Text: text, TripID: tripID}
	status, body, err := g.do(ctx, op, http.MethodPost, fmt.Sprintf("/comentario/viaje/%d", tripID), req)
	if err != nil {
		return err
	}
	return classifyMutation(op, status, body)
}

// mutateTrip posts a mutation whose success body is the updated trip. An
// empty success body is accepted and yields a nil trip.
func (g *HTTPGateway) mutateTrip(ctx context.Context, op, path string, payload any) (*models.Trip, error) {
	status, body, err := g.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	if err := classifyMutation(op, status, body); err != nil {
		return nil, err
	}
	trip, err := decodeTrip(body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	return trip, nil
}

func classifyMutation(op string, status int, body []byte) error {
	switch {
	case status >= 500:
		return &TransientError{Op: op, StatusCode: status, Err: errors.New(reasonFrom(status, body))}
	case status >= 400:
		return &RejectedError{Op: op, StatusCode: status, Reason: reasonFrom(status, body)}
	case status >= 300:
		return &TransientError{Op: op, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", reasonFrom(status, body))}
	}
	return nil
}

// do sends one request and reads the (bounded) response body. Transport
// failures come back as *TransientError.
func (g *HTTPGateway) do(ctx context.Context, op, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("gateway: %s: encode body: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("gateway: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &TransientError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp.StatusCode, body, nil
}

// reasonFrom extracts a human-readable reason from an error body. It
// understands JSON objects with a message/mensaje/error field and falls back
// to the raw text, then to the status text.
func reasonFrom(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var obj map[string]any
		if json.Unmarshal([]byte(text), &obj) == nil {
			for _, key := range []string{"message", "mensaje", "error"} {
				if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	if text != "" {
		return text
	}
	return http.StatusText(status)
}
