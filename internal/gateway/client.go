package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"registration-gateway/internal/config"
	"registration-gateway/internal/logger"
)

const codeApproved = "00"

var (
	// ErrUnavailable is surfaced after the retry budget is exhausted without
	// a definitive answer from the gateway. The outcome is unknown: the
	// caller must reconcile through a status query, never assume a failure.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrNoControl means a protocol step was attempted without a session.
	ErrNoControl = errors.New("gateway control number missing")
)

// DeclineError is a definitive business rejection by the issuing bank.
// Declines are terminal for the attempt and are never retried.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("gateway declined with code %s: %s", e.Code, e.Message)
}

// Client drives the three-step P2C protocol: pre-registration issues a
// control number, purchase execution submits the payment under that control,
// and the status query re-reads the final outcome for reconciliation.
type Client struct {
	transport   Transport
	affiliation string
	maxAttempts int
	backoffBase time.Duration
	log         *logger.Logger
}

func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	return NewClientWithTransport(newHTTPTransport(cfg.BaseURL, cfg.Timeout), cfg, log)
}

func NewClientWithTransport(transport Transport, cfg config.GatewayConfig, log *logger.Logger) *Client {
	return &Client{
		transport:   transport,
		affiliation: cfg.Affiliation,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		log:         log,
	}
}

// PurchaseInput carries the buyer fields for purchase execution. Values are
// normalized and validated before anything is sent.
type PurchaseInput struct {
	Control    string
	Phone      string
	BankCode   string
	NationalID string
	Amount     float64
	Invoice    string
	Reference  string
}

// PurchaseResult is the definitive outcome of an approved attempt or a
// status query.
type PurchaseResult struct {
	Control  string
	Code     string
	Approved bool
	AuthID   string
	Voucher  string
	Message  string
}

// PreRegister requests a control number. No payment data is sent, so a
// failure here safely aborts the attempt.
func (c *Client) PreRegister(ctx context.Context) (string, error) {
	c.log.LogGateway("PREREGISTER", "-", "Requesting control number")

	resp, err := c.exchange(ctx, &request{
		Operation:   opPreRegister,
		Affiliation: c.affiliation,
	})
	if err != nil {
		return "", err
	}
	if resp.Control == "" {
		return "", fmt.Errorf("gateway pre-registration returned no control number (code %s)", resp.Code)
	}

	c.log.LogGateway("PREREGISTER", resp.Control, "Control number issued")
	return resp.Control, nil
}

// Purchase executes the payment under the given control number. A response
// code other than "00" is a bank decline and is returned as DeclineError
// without retrying; only transport failures are retried.
func (c *Client) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if in.Control == "" {
		return nil, ErrNoControl
	}

	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateBankCode(in.BankCode); err != nil {
		return nil, err
	}
	nationalID, err := NormalizeNationalID(in.NationalID)
	if err != nil {
		return nil, err
	}
	amount, err := FormatAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	c.log.LogGateway("PURCHASE", in.Control, fmt.Sprintf("Executing purchase of %s", amount))

	resp, err := c.exchange(ctx, &request{
		Operation:   opPurchase,
		Affiliation: c.affiliation,
		Control:     in.Control,
		Phone:       phone,
		BankCode:    in.BankCode,
		NationalID:  nationalID,
		Amount:      amount,
		Invoice:     in.Invoice,
		Reference:   in.Reference,
	})
	if err != nil {
		return nil, err
	}

	return c.settle(in.Control, resp)
}

// QueryStatus re-reads the final status of an attempt whose purchase
// response was ambiguous.
func (c *Client) QueryStatus(ctx context.Context, control string) (*PurchaseResult, error) {
	if control == "" {
		return nil, ErrNoControl
	}

	c.log.LogGateway("QUERY", control, "Querying final status")

	resp, err := c.exchange(ctx, &request{
		Operation:   opQuery,
		Affiliation: c.affiliation,
		Control:     control,
	})
	if err != nil {
		return nil, err
	}

	return c.settle(control, resp)
}

func (c *Client) settle(control string, resp *response) (*PurchaseResult, error) {
	if resp.Code != codeApproved {
		c.log.LogGateway("DECLINED", control, fmt.Sprintf("Code %s: %s", resp.Code, resp.Message))
		return nil, &DeclineError{Code: resp.Code, Message: resp.Message}
	}

	c.log.LogGateway("APPROVED", control, fmt.Sprintf("Authorization %s", resp.AuthID))
	return &PurchaseResult{
		Control:  control,
		Code:     resp.Code,
		Approved: true,
		AuthID:   resp.AuthID,
		Voucher:  resp.Voucher,
		Message:  resp.Message,
	}, nil
}

// exchange runs one protocol step, retrying transport failures with
// exponential backoff. Definitive responses, declines included, end the
// attempt immediately.
func (c *Client) exchange(ctx context.Context, req *request) (*response, error) {
	var lastErr error
	delay := c.backoffBase

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.transport.Exchange(ctx, req)
		if err == nil {
			return resp, nil
		}

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			return nil, err
		}
		lastErr = err

		if attempt == c.maxAttempts {
			break
		}

		c.log.Warn("GATEWAY", fmt.Sprintf("Attempt %d/%d failed (%v), retrying in %s", attempt, c.maxAttempts, err, delay))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	c.log.Error("GATEWAY", fmt.Sprintf("Exhausted %d attempts: %v", c.maxAttempts, lastErr))
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
