package polymarket

// orders.go — replica order submission to the CLOB order-entry endpoint.
//
// Two-level auth, as the CLOB requires: the order itself carries an EIP-712
// signature from the operator key, and the HTTP request carries HMAC-SHA256
// L2 headers built from the acting user's API credentials.

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/polycopy/engine/internal/domain"
)

// Taker address — zero address = public order.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// marketToken is a cached (tokenID, negRisk, tick) resolution for one outcome.
type marketToken struct {
	tokenID string
	negRisk bool
	tick    float64
}

// Trading implements ports.Exchange against the Polymarket CLOB.
type Trading struct {
	client *Client
	signer *Signer
	order  builder.ExchangeOrderBuilder

	tokens sync.Map // "marketID|outcome" → marketToken
}

// NewTrading creates the exchange adapter. The signer key signs every
// submitted order; per-user API credentials are passed per call.
func NewTrading(client *Client, signer *Signer) *Trading {
	return &Trading{
		client: client,
		signer: signer,
		order:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}
}

// SubmitOrder signs and posts one replica order. Any non-success response or
// transport error is classified ExchangeRejected with the upstream message
// preserved; the caller never retries.
func (t *Trading) SubmitOrder(ctx context.Context, req domain.OrderRequest, creds domain.Credentials) (domain.PlacedOrder, error) {
	tok, err := t.tokenFor(ctx, req.MarketID, req.Outcome)
	if err != nil {
		return domain.PlacedOrder{}, domain.NewFailure(domain.FailExchangeRejected,
			fmt.Errorf("resolve token for %s/%s: %w", req.MarketID, req.Outcome, err))
	}

	signed, effectivePrice, err := t.buildSignedOrder(tok.tokenID, req.Price, req.Size, tok.negRisk, tok.tick)
	if err != nil {
		return domain.PlacedOrder{}, domain.NewFailure(domain.FailInternal,
			fmt.Errorf("sign order: %w", err))
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tok.tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          domain.SideBuy,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := t.doSigned(ctx, http.MethodPost, "/order", body, creds, &resp); err != nil {
		return domain.PlacedOrder{}, domain.NewFailure(domain.FailExchangeRejected,
			fmt.Errorf("post order: %w", err))
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, domain.NewFailure(domain.FailExchangeRejected,
			fmt.Errorf("clob rejected order: %s", resp.ErrorMsg))
	}

	return domain.PlacedOrder{OrderID: resp.OrderID, Status: resp.Status, Price: effectivePrice}, nil
}

// tokenFor resolves the CLOB token for a (market, outcome) pair, caching the
// result — market metadata never changes once listed.
func (t *Trading) tokenFor(ctx context.Context, marketID, outcome string) (marketToken, error) {
	key := marketID + "|" + strings.ToLower(outcome)
	if v, ok := t.tokens.Load(key); ok {
		return v.(marketToken), nil
	}

	url := fmt.Sprintf("%s/markets/%s", t.client.clobBase, marketID)
	var m clobMarket
	if err := t.client.get(ctx, t.client.clobLimiter, url, &m); err != nil {
		return marketToken{}, fmt.Errorf("get market: %w", err)
	}

	tick, _ := m.MinimumTickSize.Float64()
	for _, token := range m.Tokens {
		if strings.EqualFold(token.Outcome, outcome) {
			mt := marketToken{tokenID: token.TokenID, negRisk: m.NegRisk, tick: tick}
			t.tokens.Store(key, mt)
			return mt, nil
		}
	}
	return marketToken{}, fmt.Errorf("market %s has no outcome %q", marketID, outcome)
}

// buildSignedOrder creates the EIP-712 signed BUY order and returns it with
// the tick-aligned price actually submitted. Integer arithmetic throughout —
// the CLOB verifies makerAmount == price × takerAmount exactly.
//
// Slippage-adjusted prices are routinely off-tick; they round UP to the
// market's tick (never down, a replica must not bid below the observed
// price), capped at 1.0.
func (t *Trading) buildSignedOrder(tokenID string, price, size float64, negRisk bool, tick float64) (*gomodel.SignedOrder, float64, error) {
	pricePrecision := tickPrecision(tick)
	priceInt := int64(math.Ceil(price*float64(pricePrecision) - 1e-9))
	if priceInt > pricePrecision {
		priceInt = pricePrecision
	}
	effectivePrice := float64(priceInt) / float64(pricePrecision)
	sharesCents := int64(math.Floor(size * 100))

	amountFactor := int64(1_000_000) / (100 * pricePrecision)
	makerAmount := sharesCents * priceInt * amountFactor
	takerAmount := sharesCents * 10000

	if makerAmount <= 0 || takerAmount <= 0 {
		return nil, 0, fmt.Errorf("invalid amounts: maker=%d taker=%d (price=%.4f size=%.4f)", makerAmount, takerAmount, price, size)
	}

	var verifyingContract gomodel.VerifyingContract
	if negRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	} else {
		verifyingContract = gomodel.CTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         t.signer.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        t.signer.address.Hex(),
		Expiration:    "0",
		Side:          gomodel.BUY,
		SignatureType: gomodel.EOA,
	}

	signed, err := t.order.BuildSignedOrder(t.signer.key, orderData, verifyingContract)
	if err != nil {
		return nil, 0, fmt.Errorf("build signed order: %w", err)
	}
	return signed, effectivePrice, nil
}

// tickPrecision maps a market tick size to its integer price multiplier,
// e.g. tick 0.01 → 100, tick 0.001 → 1000. Unknown or missing ticks fall
// back to the standard 0.01 market.
func tickPrecision(tick float64) int64 {
	for _, prec := range []int64{10, 100, 1000, 10000} {
		if math.Abs(tick-1/float64(prec)) < 1e-12 {
			return prec
		}
	}
	return 100
}

// l2Headers builds the HMAC-SHA256 authenticated headers for one request.
func (t *Trading) l2Headers(creds domain.Credentials, method, path, body string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secretBytes, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    t.signer.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// doSigned executes an L2-authenticated request with rate limiting. HMAC
// headers are regenerated on every attempt so the timestamp stays fresh.
func (t *Trading) doSigned(ctx context.Context, method, path string, reqBody any, creds domain.Credentials, out any) error {
	var bodyStr string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyStr = string(b)
	}

	fullURL := t.client.clobBase + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := t.client.clobLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers, err := t.l2Headers(creds, method, path, bodyStr)
		if err != nil {
			return err
		}

		var bodyReader io.Reader
		if bodyStr != "" {
			bodyReader = strings.NewReader(bodyStr)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			t.client.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			t.client.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			t.client.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return &statusError{Code: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}
