package sanalpos_soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// endpoint identifies one remote service family. The ~19 operations are
// spread over three services sharing a base URL.
type endpoint struct {
	name string
	path string
}

var (
	endpointPayment   = endpoint{name: "payment", path: "/ws/payment.asmx"}
	endpointVault     = endpoint{name: "vault", path: "/ws/vault.asmx"}
	endpointReporting = endpoint{name: "reporting", path: "/ws/reporting.asmx"}
)

// soapConn is a ready-to-use client handle for one service endpoint.
type soapConn struct {
	serviceURL string
	httpClient *http.Client
}

// connManager lazily creates and caches one soapConn per endpoint. Creation
// fetches the service description once, which is the expensive step; the
// handle is then reused for the lifetime of the process. Concurrent first
// use is deduplicated through singleflight so two goroutines racing on a
// cold endpoint share a single initialization.
type connManager struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	conns map[string]*soapConn
}

func newConnManager(baseURL string, timeout time.Duration, logger *zap.Logger) *connManager {
	return &connManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		conns:  make(map[string]*soapConn),
	}
}

// get returns the cached handle for ep, initializing it on first use.
func (m *connManager) get(ctx context.Context, ep endpoint) (*soapConn, error) {
	m.mu.RLock()
	conn, ok := m.conns[ep.name]
	m.mu.RUnlock()
	if ok {
		return conn, nil
	}

	v, err, _ := m.group.Do(ep.name, func() (any, error) {
		// Re-check under the flight: a previous flight may have
		// populated the cache between the RUnlock and Do.
		m.mu.RLock()
		conn, ok := m.conns[ep.name]
		m.mu.RUnlock()
		if ok {
			return conn, nil
		}

		conn, err := m.dial(ctx, ep)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.conns[ep.name] = conn
		m.mu.Unlock()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*soapConn), nil
}

// dial fetches the endpoint's service description and builds the handle.
// The WSDL's soap:address may point the handle at a different host than the
// configured base URL (the gateway relocates services between farms).
func (m *connManager) dial(ctx context.Context, ep endpoint) (*soapConn, error) {
	serviceURL := m.baseURL + ep.path
	wsdlURL := serviceURL + "?wsdl"

	m.logger.Debug("fetching service description",
		zap.String("endpoint", ep.name),
		zap.String("url", wsdlURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wsdlURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create wsdl request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError("wsdl "+ep.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError("wsdl "+ep.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{
			Op:  "wsdl " + ep.name,
			Err: fmt.Errorf("unexpected HTTP %d fetching %s", resp.StatusCode, wsdlURL),
		}
	}

	if located := soapAddressLocation(body); located != "" {
		serviceURL = located
	}

	m.logger.Info("service endpoint ready",
		zap.String("endpoint", ep.name),
		zap.String("service_url", serviceURL),
	)

	return &soapConn{
		serviceURL: serviceURL,
		httpClient: m.httpClient,
	}, nil
}

// soapAddressLocation extracts the soap:address location from a WSDL
// document. Returns "" when the document carries none.
func soapAddressLocation(wsdl []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(wsdl); err != nil {
		return ""
	}
	root := doc.Root()
	if root == nil {
		return ""
	}
	if addr := findDescendantLocal(root, "address"); addr != nil {
		return addr.SelectAttrValue("location", "")
	}
	return ""
}

func findDescendantLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if localName(child.Tag) == local {
			return child
		}
		if found := findDescendantLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

// post sends one SOAP request and returns the raw response body. Transport
// failures come back as *NetworkError; HTTP error statuses are returned with
// the body so the caller can surface the payload in a GatewayFault.
func (c *soapConn) post(ctx context.Context, op, action string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, wrapTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, wrapTransportError(op, err)
	}
	return resp.StatusCode, body, nil
}

// wrapTransportError classifies a transport failure as a *NetworkError,
// flagging timeouts so callers can apply the ambiguous-outcome rule.
func wrapTransportError(op string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &NetworkError{Op: op, Err: err, Timeout: timeout}
}
