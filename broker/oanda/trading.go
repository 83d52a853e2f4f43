package oanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/slottrader/broker"
)

type priceDetails struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce,omitempty"`
}

type clientExtensions struct {
	ID      string `json:"id,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Comment string `json:"comment,omitempty"`
}

type marketOrder struct {
	Type                  string            `json:"type"`
	Instrument            string            `json:"instrument"`
	Units                 string            `json:"units"`
	TimeInForce           string            `json:"timeInForce"`
	PositionFill          string            `json:"positionFill"`
	PriceBound            string            `json:"priceBound,omitempty"`
	StopLossOnFill        *priceDetails     `json:"stopLossOnFill,omitempty"`
	TakeProfitOnFill      *priceDetails     `json:"takeProfitOnFill,omitempty"`
	TradeClientExtensions *clientExtensions `json:"tradeClientExtensions,omitempty"`
}

type orderResponse struct {
	OrderFillTransaction *struct {
		ID          string `json:"id"`
		Price       string `json:"price"`
		TradeOpened *struct {
			TradeID string `json:"tradeID"`
		} `json:"tradeOpened"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
	OrderRejectTransaction *struct {
		RejectReason string `json:"rejectReason"`
	} `json:"orderRejectTransaction"`
	ErrorMessage string `json:"errorMessage"`
}

// SubmitMarketOrder places an immediate-or-cancel market order with the
// stops attached on fill. Deviation, in points, becomes a price bound.
func (c *Client) SubmitMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	units := math.Round(req.Volume * c.contractSize)
	if units < 1 {
		return broker.OrderResult{Status: broker.StatusRejected, Message: "volume below one unit"}, nil
	}

	m, err := c.InstrumentMeta(ctx, req.Instrument)
	if err != nil {
		return broker.OrderResult{Status: broker.StatusError}, err
	}

	order := marketOrder{
		Type:         "MARKET",
		Instrument:   req.Instrument,
		Units:        strconv.FormatFloat(req.Direction.Sign()*units, 'f', 0, 64),
		TimeInForce:  "IOC",
		PositionFill: "DEFAULT",
		TradeClientExtensions: &clientExtensions{
			ID:      req.Tag,
			Tag:     strconv.FormatInt(req.Magic, 10),
			Comment: req.Comment,
		},
	}
	if req.Deviation > 0 && req.Price > 0 {
		bound := req.Price + req.Direction.Sign()*float64(req.Deviation)*m.Point
		order.PriceBound = formatPrice(bound, m.Digits)
	}
	if req.StopLoss > 0 {
		order.StopLossOnFill = &priceDetails{Price: formatPrice(req.StopLoss, m.Digits), TimeInForce: "GTC"}
	}
	if req.TakeProfit > 0 {
		order.TakeProfitOnFill = &priceDetails{Price: formatPrice(req.TakeProfit, m.Digits), TimeInForce: "GTC"}
	}

	var resp orderResponse
	err = c.do(ctx, http.MethodPost, c.accountPath("/orders"), nil, map[string]any{"order": order}, &resp)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
		// Rejections come back as 400 with a reject transaction body.
		_ = json.Unmarshal(apiErr.Body, &resp)
		reason := resp.ErrorMessage
		if resp.OrderRejectTransaction != nil {
			reason = resp.OrderRejectTransaction.RejectReason
		}
		return broker.OrderResult{Status: statusForReason(reason), Message: reason}, nil
	}
	if err != nil {
		return broker.OrderResult{Status: broker.StatusError}, fmt.Errorf("submit order: %w", err)
	}

	if resp.OrderFillTransaction == nil {
		reason := "not filled"
		if resp.OrderCancelTransaction != nil {
			reason = resp.OrderCancelTransaction.Reason
		}
		return broker.OrderResult{Status: statusForReason(reason), Message: reason}, nil
	}

	fill := resp.OrderFillTransaction
	out := broker.OrderResult{Status: broker.StatusDone}
	out.DealTicket, _ = strconv.ParseInt(fill.ID, 10, 64)
	out.Price, _ = parseFloat(fill.Price)
	if fill.TradeOpened != nil {
		out.PositionTicket, _ = strconv.ParseInt(fill.TradeOpened.TradeID, 10, 64)
	}
	return out, nil
}

func statusForReason(reason string) broker.Status {
	r := strings.ToUpper(reason)
	switch {
	case strings.Contains(r, "INSUFFICIENT_MARGIN"), strings.Contains(r, "INSUFFICIENT_LIQUIDITY"):
		return broker.StatusNoMoney
	case strings.Contains(r, "MARKET_HALTED"), strings.Contains(r, "MARKET_CLOSED"):
		return broker.StatusMarketClosed
	case strings.Contains(r, "STOP_LOSS"), strings.Contains(r, "TAKE_PROFIT"):
		return broker.StatusInvalidStops
	case strings.Contains(r, "BOUND"):
		return broker.StatusRequote
	default:
		return broker.StatusRejected
	}
}

// ModifyStops replaces the trade's dependent stop loss and take profit.
func (c *Client) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (broker.Status, error) {
	body := map[string]any{}
	if stopLoss > 0 {
		body["stopLoss"] = priceDetails{Price: strconv.FormatFloat(stopLoss, 'f', -1, 64), TimeInForce: "GTC"}
	}
	if takeProfit > 0 {
		body["takeProfit"] = priceDetails{Price: strconv.FormatFloat(takeProfit, 'f', -1, 64), TimeInForce: "GTC"}
	}

	err := c.do(ctx, http.MethodPut, c.accountPath("/trades/%d/orders", ticket), nil, body, nil)
	var apiErr *apiError
	switch {
	case err == nil:
		return broker.StatusDone, nil
	case errors.Is(err, broker.ErrNoData):
		return broker.StatusRejected, fmt.Errorf("trade %d: %w", ticket, err)
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
		return broker.StatusInvalidStops, nil
	default:
		return broker.StatusError, fmt.Errorf("modify trade %d: %w", ticket, err)
	}
}

type apiTrade struct {
	ID               string            `json:"id"`
	Instrument       string            `json:"instrument"`
	Price            string            `json:"price"`
	OpenTime         string            `json:"openTime"`
	InitialUnits     string            `json:"initialUnits"`
	CurrentUnits     string            `json:"currentUnits"`
	State            string            `json:"state"`
	RealizedPL       string            `json:"realizedPL"`
	Financing        string            `json:"financing"`
	CloseTime        string            `json:"closeTime"`
	ClientExtensions *clientExtensions `json:"clientExtensions"`
	StopLossOrder    *struct {
		Price string `json:"price"`
		State string `json:"state"`
	} `json:"stopLossOrder"`
	TakeProfitOrder *struct {
		Price string `json:"price"`
		State string `json:"state"`
	} `json:"takeProfitOrder"`
}

type tradesResponse struct {
	Trades []apiTrade `json:"trades"`
}

// OpenPositions lists open trades, optionally filtered by instrument.
// The magic number travels in the trade's client extension tag.
func (c *Client) OpenPositions(ctx context.Context, instrument string) ([]broker.Position, error) {
	var resp tradesResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("/openTrades"), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}

	out := make([]broker.Position, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		if instrument != "" && t.Instrument != instrument {
			continue
		}
		p := broker.Position{Instrument: t.Instrument}
		p.Ticket, _ = strconv.ParseInt(t.ID, 10, 64)
		p.EntryPrice, _ = parseFloat(t.Price)
		units, _ := parseFloat(t.CurrentUnits)
		p.Direction = broker.Long
		if units < 0 {
			p.Direction = broker.Short
		}
		p.Volume = math.Abs(units) / c.contractSize
		if ot, err := parseTime(t.OpenTime); err == nil {
			p.OpenTime = ot
		}
		if t.StopLossOrder != nil {
			p.StopLoss, _ = parseFloat(t.StopLossOrder.Price)
		}
		if t.TakeProfitOrder != nil {
			p.TakeProfit, _ = parseFloat(t.TakeProfitOrder.Price)
		}
		if ext := t.ClientExtensions; ext != nil {
			p.Magic, _ = strconv.ParseInt(ext.Tag, 10, 64)
			p.Comment = ext.Comment
			p.Tag = ext.ID
		}
		out = append(out, p)
	}
	return out, nil
}

// HistoryDeals reports each trade closed in [start, end] as one deal whose
// PositionID is the trade id. Closes by a dependent order are marked
// "[tp]" or "[sl]" in the comment.
func (c *Client) HistoryDeals(ctx context.Context, start, end time.Time) ([]broker.Deal, error) {
	params := url.Values{}
	params.Set("state", "CLOSED")
	params.Set("count", "500")

	var resp tradesResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("/trades"), params, nil, &resp); err != nil {
		return nil, fmt.Errorf("closed trades: %w", err)
	}

	var out []broker.Deal
	for _, t := range resp.Trades {
		closed, err := parseTime(t.CloseTime)
		if err != nil || closed.Before(start) || closed.After(end) {
			continue
		}
		d := broker.Deal{Instrument: t.Instrument, Time: closed}
		d.Ticket, _ = strconv.ParseInt(t.ID, 10, 64)
		d.PositionID = d.Ticket
		pl, _ := parseFloat(t.RealizedPL)
		fin, _ := parseFloat(t.Financing)
		d.Profit = pl + fin
		if ext := t.ClientExtensions; ext != nil {
			d.Comment = ext.Comment
			d.Tag = ext.ID
		}
		switch {
		case t.TakeProfitOrder != nil && t.TakeProfitOrder.State == "FILLED":
			d.Comment = "[tp]"
		case t.StopLossOrder != nil && t.StopLossOrder.State == "FILLED":
			d.Comment = "[sl]"
		}
		out = append(out, d)
	}
	return out, nil
}

func formatPrice(p float64, digits int) string {
	if digits < 0 {
		return strconv.FormatFloat(p, 'f', -1, 64)
	}
	return strconv.FormatFloat(p, 'f', digits, 64)
}
