package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var centsFactor = decimal.NewFromInt(100)

// Client talks to a Stripe-style payments API: form-encoded POSTs with
// secret-key bearer auth. Sessions are created with manual capture so the
// admin approval flow settles funds later.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_intent_data[capture_method]", "manual")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][unit_amount]", params.UnitPrice.Mul(centsFactor).StringFixed(0))
	form.Set("line_items[0][price_data][product_data][name]", params.ItemName)
	form.Set("line_items[0][quantity]", strconv.Itoa(params.Quantity))
	form.Set("metadata[plushie_item_id]", params.ItemID.String())
	form.Set("metadata[quantity]", strconv.Itoa(params.Quantity))
	form.Set("metadata[order_ref]", params.OrderRef)
	if params.UserID != nil {
		form.Set("metadata[user_id]", params.UserID.String())
	}
	if params.GuestEmail != nil {
		form.Set("metadata[guest_email]", *params.GuestEmail)
		form.Set("customer_email", *params.GuestEmail)
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var resp struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.get(ctx, "/payment_intents/"+intentID, &resp); err != nil {
		return nil, fmt.Errorf("get intent %s: %w", intentID, err)
	}
	return &Intent{IntentID: resp.ID, Status: resp.Status, ClientSecret: resp.ClientSecret}, nil
}

func (c *Client) CaptureIntent(ctx context.Context, intentID string) error {
	if err := c.post(ctx, "/payment_intents/"+intentID+"/capture", url.Values{}, nil); err != nil {
		return fmt.Errorf("capture intent %s: %w", intentID, err)
	}
	return nil
}

func (c *Client) RefundIntent(ctx context.Context, intentID string) error {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	if err := c.post(ctx, "/refunds", form, nil); err != nil {
		return fmt.Errorf("refund intent %s: %w", intentID, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
