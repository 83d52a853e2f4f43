package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/slottrader/broker"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"
)

// BaseURL maps an environment name onto the REST endpoint.
func BaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "practice", "demo", "":
		return PracticeURL, nil
	case "live":
		return LiveURL, nil
	default:
		return "", fmt.Errorf("unknown OANDA env %q (want practice|live)", env)
	}
}

// Options configures a Client.
type Options struct {
	Env       string // practice or live
	BaseURL   string // overrides Env when set
	Token     string
	AccountID string
	// ContractSize is the number of units in one lot. OANDA trades in
	// units; the bot sizes in lots.
	ContractSize float64
	Timeout      time.Duration
}

// Client is a broker.Broker backed by the OANDA v20 REST API.
type Client struct {
	baseURL      string
	token        string
	accountID    string
	contractSize float64
	httpClient   *http.Client
}

var _ broker.Broker = (*Client)(nil)

// NewClient creates a new OANDA API client
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("oanda: token is required")
	}
	if opts.AccountID == "" {
		return nil, errors.New("oanda: account id is required")
	}
	base := opts.BaseURL
	if base == "" {
		var err error
		if base, err = BaseURL(opts.Env); err != nil {
			return nil, err
		}
	}
	if opts.ContractSize <= 0 {
		opts.ContractSize = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(base, "/"),
		token:        opts.Token,
		accountID:    opts.AccountID,
		contractSize: opts.ContractSize,
		httpClient:   &http.Client{Timeout: opts.Timeout},
	}, nil
}

// apiError carries a non-2xx response.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, strings.TrimSpace(string(e.Body)))
}

func (c *Client) accountPath(format string, args ...any) string {
	return "/v3/accounts/" + url.PathEscape(c.accountID) + fmt.Sprintf(format, args...)
}

// do sends a JSON request and decodes a JSON response into out. A 404 maps
// to broker.ErrNoData; other non-2xx statuses return *apiError.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return broker.ErrNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &apiError{Status: resp.StatusCode, Body: b}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type priceBucket struct {
	Price string `json:"price"`
}

type apiPrice struct {
	Instrument string        `json:"instrument"`
	Time       string        `json:"time"`
	Bids       []priceBucket `json:"bids"`
	Asks       []priceBucket `json:"asks"`
}

type pricingResponse struct {
	Prices []apiPrice `json:"prices"`
}

// Quote returns the current top-of-book price.
func (c *Client) Quote(ctx context.Context, instrument string) (broker.Quote, error) {
	params := url.Values{}
	params.Set("instruments", instrument)

	var resp pricingResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("/pricing"), params, nil, &resp); err != nil {
		return broker.Quote{}, fmt.Errorf("pricing %s: %w", instrument, err)
	}
	for _, p := range resp.Prices {
		if p.Instrument != instrument || len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		bid, err := parseFloat(p.Bids[0].Price)
		if err != nil {
			return broker.Quote{}, fmt.Errorf("parse bid: %w", err)
		}
		ask, err := parseFloat(p.Asks[0].Price)
		if err != nil {
			return broker.Quote{}, fmt.Errorf("parse ask: %w", err)
		}
		t, err := parseTime(p.Time)
		if err != nil {
			return broker.Quote{}, err
		}
		return broker.Quote{Instrument: instrument, Bid: bid, Ask: ask, Time: t}, nil
	}
	return broker.Quote{}, broker.ErrNoData
}

type accountSummary struct {
	Account struct {
		ID              string `json:"id"`
		Currency        string `json:"currency"`
		Balance         string `json:"balance"`
		NAV             string `json:"NAV"`
		MarginUsed      string `json:"marginUsed"`
		MarginAvailable string `json:"marginAvailable"`
	} `json:"account"`
}

// AccountInfo returns the account summary.
func (c *Client) AccountInfo(ctx context.Context) (broker.Account, error) {
	var resp accountSummary
	if err := c.do(ctx, http.MethodGet, c.accountPath("/summary"), nil, nil, &resp); err != nil {
		return broker.Account{}, fmt.Errorf("account summary: %w", err)
	}
	a := resp.Account
	out := broker.Account{ID: a.ID, Currency: a.Currency}
	var err error
	if out.Balance, err = parseFloat(a.Balance); err != nil {
		return broker.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	// Missing optional fields stay zero.
	out.Equity, _ = parseFloat(a.NAV)
	out.MarginUsed, _ = parseFloat(a.MarginUsed)
	out.FreeMargin, _ = parseFloat(a.MarginAvailable)
	return out, nil
}

type instrumentsResponse struct {
	Instruments []struct {
		Name             string `json:"name"`
		PipLocation      int    `json:"pipLocation"`
		DisplayPrecision int    `json:"displayPrecision"`
		MarginRate       string `json:"marginRate"`
	} `json:"instruments"`
}

// InstrumentMeta returns price precision and margin for the instrument.
// OANDA publishes no minimum stop distance, so StopsLevel is zero.
func (c *Client) InstrumentMeta(ctx context.Context, instrument string) (broker.InstrumentMeta, error) {
	params := url.Values{}
	params.Set("instruments", instrument)

	var resp instrumentsResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("/instruments"), params, nil, &resp); err != nil {
		return broker.InstrumentMeta{}, fmt.Errorf("instruments %s: %w", instrument, err)
	}
	for _, in := range resp.Instruments {
		if in.Name != instrument {
			continue
		}
		rate, err := parseFloat(in.MarginRate)
		if err != nil {
			return broker.InstrumentMeta{}, fmt.Errorf("parse margin rate: %w", err)
		}
		return broker.InstrumentMeta{
			Name:         in.Name,
			Point:        math.Pow10(-in.DisplayPrecision),
			Digits:       in.DisplayPrecision,
			ContractSize: c.contractSize,
			MarginRate:   rate,
		}, nil
	}
	return broker.InstrumentMeta{}, broker.ErrNoData
}

// EstimateMargin is computed locally from the instrument margin rate.
func (c *Client) EstimateMargin(ctx context.Context, instrument string, dir broker.Direction, volume, price float64) (float64, error) {
	m, err := c.InstrumentMeta(ctx, instrument)
	if err != nil {
		return 0, err
	}
	if volume < 0 {
		volume = -volume
	}
	return volume * c.contractSize * price * m.MarginRate, nil
}

// EstimateProfit assumes the quote currency is the account currency.
func (c *Client) EstimateProfit(ctx context.Context, instrument string, dir broker.Direction, volume, entry, exit float64) (float64, error) {
	return dir.Sign() * volume * c.contractSize * (exit - entry), nil
}

// parseFloat parses a string to float64
func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %s: %w", s, err)
	}
	return t.UTC(), nil
}
