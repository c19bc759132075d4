// Package httprequest provides the HTTP request node. URL, headers and body
// support templating against the execution state.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/protocol"
	"github.com/weftworks/weft/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrHTTPRequestURLMissing is returned when the node config has no URL.
	ErrHTTPRequestURLMissing = errors.New("missing or invalid 'url' in configuration")
	// ErrHTTPMethodInvalid is returned when the HTTP method is not recognized.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Node performs a single HTTP request and emits the decoded response. The
// engine owns retries and the overall deadline; the node only honors ctx.
type Node struct {
	logger  *slog.Logger
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
	client  *http.Client
}

func NewNode(logger *slog.Logger, config map[string]any) (*Node, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrHTTPRequestURLMissing
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, method)
	}

	headers := make(map[string]string)

	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for key, value := range headersConfig {
			if strVal, ok := value.(string); ok {
				headers[key] = strVal
			}
		}
	}

	body, _ := config["body"].(string)

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Node{
		logger:  logger.With("module", "httprequest_node"),
		url:     url,
		method:  method,
		headers: headers,
		body:    body,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (n *Node) Run(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (map[string]any, error) {
	req, err := n.buildRequest(ctx, node, inputs)
	if err != nil {
		return nil, err
	}

	n.logger.DebugContext(ctx, "Sending HTTP request",
		"node_id", node.ID, "method", n.method, "url", req.URL.String())

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	result, err := n.processResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	return map[string]any{models.DefaultOutputKey: result}, nil
}

func (n *Node) buildRequest(ctx context.Context, node *models.WorkflowNode, inputs map[string]any) (*http.Request, error) {
	tmplCtx := templateContext(ctx, inputs)

	url, err := renderString(n.url, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	bodyReader, err := n.buildRequestBody(tmplCtx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, n.method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request for node %s: %w", node.ID, err)
	}

	for key, value := range n.headers {
		rendered, err := renderString(value, tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func (n *Node) buildRequestBody(tmplCtx *template.Context) (io.Reader, error) {
	if n.body == "" {
		return nil, nil
	}

	body, err := template.RenderWithContext(n.body, tmplCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	if str, ok := body.(string); ok {
		return strings.NewReader(str), nil
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}

	return strings.NewReader(string(bodyBytes)), nil
}

func (n *Node) processResponse(ctx context.Context, resp *http.Response) (map[string]any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any

	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	n.logger.DebugContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
		"success":     resp.StatusCode < http.StatusBadRequest,
	}, nil
}

func renderString(input string, tmplCtx *template.Context) (string, error) {
	rendered, err := template.RenderWithContext(input, tmplCtx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v", rendered), nil
}

func templateContext(ctx context.Context, inputs map[string]any) *template.Context {
	info, _ := protocol.ExecutionFromContext(ctx)
	triggerData, _ := inputs[models.TriggerInputKey].(map[string]any)

	return &template.Context{
		ExecutionID: info.ExecutionID,
		WorkflowID:  info.WorkflowID,
		Inputs:      inputs,
		TriggerData: triggerData,
	}
}
