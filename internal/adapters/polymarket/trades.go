package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polycopy/engine/internal/domain"
)

const defaultTradeLimit = 20

// rawDataTrade is the Data API /trades row. Numeric fields arrive as either
// strings or numbers depending on endpoint revision, hence json.Number.
type rawDataTrade struct {
	TransactionHash string      `json:"transactionHash"`
	ID              string      `json:"id"`
	ConditionID     string      `json:"conditionId"`
	Outcome         string      `json:"outcome"`
	Side            string      `json:"side"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
}

// FetchRecentTrades returns the wallet's most recent fills from the public
// Data API. A 404 means the wallet has no activity and maps to
// domain.ErrNoTrades; anything else is a source failure.
func (c *Client) FetchRecentTrades(ctx context.Context, wallet domain.Wallet, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}

	url := fmt.Sprintf("%s/trades?user=%s&limit=%d", c.dataBase, wallet, limit)

	var resp []rawDataTrade
	if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
		if IsNotFound(err) {
			return nil, domain.ErrNoTrades
		}
		return nil, domain.NewFailure(domain.FailSourceUnavailable,
			fmt.Errorf("data-api.FetchRecentTrades %s: %w", wallet, err))
	}

	trades := make([]domain.Trade, 0, len(resp))
	for _, rt := range resp {
		txID := rt.TransactionHash
		if txID == "" {
			txID = rt.ID
		}
		price, _ := rt.Price.Float64()
		size, _ := rt.Size.Float64()

		trades = append(trades, domain.Trade{
			TransactionID: txID,
			MarketID:      rt.ConditionID,
			Outcome:       rt.Outcome,
			Side:          strings.ToUpper(rt.Side),
			Size:          size,
			Price:         price,
			Timestamp:     parseTradeTimestamp(rt.Timestamp),
			Title:         rt.Title,
			Slug:          rt.Slug,
		})
	}
	return trades, nil
}

// parseTradeTimestamp normalizes the API timestamp, which may arrive as unix
// seconds, unix milliseconds, a float, or an ISO string.
func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond))
		}
		return time.Unix(sec, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec)
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
