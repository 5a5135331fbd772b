package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Operation kinds of the three-step protocol.
const (
	opPreRegister = "preregistro"
	opPurchase    = "compra"
	opQuery       = "consulta"
)

// request is the structured payload for one protocol step. It is kept as a
// tree until the transport boundary, where it is rendered to the wire XML.
type request struct {
	XMLName     xml.Name `xml:"solicitud"`
	Operation   string   `xml:"operacion"`
	Affiliation string   `xml:"afiliacion"`
	Control     string   `xml:"control,omitempty"`
	Phone       string   `xml:"telefono,omitempty"`
	BankCode    string   `xml:"banco,omitempty"`
	NationalID  string   `xml:"cedula,omitempty"`
	Amount      string   `xml:"monto,omitempty"`
	Invoice     string   `xml:"factura,omitempty"`
	Reference   string   `xml:"referencia,omitempty"`
}

type response struct {
	XMLName xml.Name `xml:"respuesta"`
	Control string   `xml:"control"`
	Code    string   `xml:"codigo"`
	Message string   `xml:"mensaje"`
	AuthID  string   `xml:"autorizacion"`
	// Voucher is the human-readable multi-line receipt; preserved verbatim.
	Voucher string `xml:"voucher"`
}

// Transport performs one request/response exchange with the remote gateway.
// Implementations surface transport-level failures (timeouts, connection
// errors) as TransportError so the client can apply its retry policy.
type Transport interface {
	Exchange(ctx context.Context, req *request) (*response, error)
}

// TransportError marks a failure below the protocol: the request may or may
// not have reached the gateway.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type httpTransport struct {
	client  *http.Client
	baseURL string
}

func newHTTPTransport(baseURL string, timeout time.Duration) *httpTransport {
	return &httpTransport{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (t *httpTransport) Exchange(ctx context.Context, req *request) (*response, error) {
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, &TransportError{Err: fmt.Errorf("gateway returned HTTP %d", httpResp.StatusCode)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned HTTP %d", httpResp.StatusCode)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	var resp response
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &resp, nil
}
