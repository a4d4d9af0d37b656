package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_bot_engine/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceBaseURL        = "https://api.binance.com"
	BinanceTestnetBaseURL = "https://testnet.binance.vision"

	defaultRecvWindow = 5000
)

// quoteAssets are checked longest first when splitting a symbol.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// APIError is an error payload returned by the exchange.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance error %d (http %d): %s", e.Code, e.Status, e.Msg)
}

var _ domain.Gateway = (*BinanceAdapter)(nil)

type BinanceAdapter struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewBinanceAdapter(apiKey, apiSecret, baseURL string, recvWindowMs int, timeout time.Duration, logger *zap.Logger) *BinanceAdapter {
	if baseURL == "" {
		baseURL = BinanceTestnetBaseURL
	}
	if recvWindowMs <= 0 {
		recvWindowMs = defaultRecvWindow
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceAdapter{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: recvWindowMs,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// --- REST API ---

func (b *BinanceAdapter) credentials(creds domain.Credentials) domain.Credentials {
	if creds.IsZero() {
		return domain.Credentials{APIKey: b.apiKey, APISecret: b.apiSecret}
	}
	return creds
}

func sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// sendRequest issues a REST call. Signed calls get timestamp, recvWindow and
// an HMAC-SHA256 signature of the encoded query appended.
func (b *BinanceAdapter) sendRequest(ctx context.Context, method, path string, params url.Values, creds *domain.Credentials) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	query := params.Encode()
	if creds != nil {
		if creds.APIKey == "" || creds.APISecret == "" {
			return nil, fmt.Errorf("missing api credentials for %s", path)
		}
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(b.recvWindow))
		query = params.Encode()
		query += "&signature=" + sign(creds.APISecret, query)
	}

	endpoint := b.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		req.Header.Set("X-MBX-APIKEY", creds.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		b.logger.Debug("Binance request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int("code", apiErr.Code))
		return nil, apiErr
	}

	return body, nil
}

func (b *BinanceAdapter) Ping(ctx context.Context) error {
	_, err := b.sendRequest(ctx, http.MethodGet, "/api/v3/ping", nil, nil)
	return err
}

func (b *BinanceAdapter) GetAccountInfo(ctx context.Context, creds domain.Credentials) (*domain.Account, error) {
	c := b.credentials(creds)
	resp, err := b.sendRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{"omitZeroBalances": {"true"}}, &c)
	if err != nil {
		return nil, err
	}

	var result struct {
		CanTrade bool `json:"canTrade"`
		Balances []struct {
			Asset  string          `json:"asset"`
			Free   decimal.Decimal `json:"free"`
			Locked decimal.Decimal `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	acc := &domain.Account{CanTrade: result.CanTrade, Balances: make(map[string]decimal.Decimal, len(result.Balances))}
	for _, bal := range result.Balances {
		total := bal.Free.Add(bal.Locked)
		if total.IsZero() {
			continue
		}
		acc.Balances[bal.Asset] = total
	}
	return acc, nil
}

func (b *BinanceAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := b.sendRequest(ctx, http.MethodGet, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	if result.Price == "" {
		return 0, fmt.Errorf("symbol not found: %s", symbol)
	}
	return strconv.ParseFloat(result.Price, 64)
}

// GetCandles returns klines oldest first. Candle.Time is the open time in ms.
func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	resp, err := b.sendRequest(ctx, http.MethodGet, "/api/v3/klines", params, nil)
	if err != nil {
		return nil, err
	}

	// Format: [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, raw := range rows {
		if len(raw) < 6 {
			continue
		}
		var ts int64
		if err := json.Unmarshal(raw[0], &ts); err != nil {
			return nil, fmt.Errorf("decode kline time: %w", err)
		}
		var vals [5]float64
		for i := range vals {
			var s string
			if err := json.Unmarshal(raw[i+1], &s); err != nil {
				return nil, fmt.Errorf("decode kline field %d: %w", i+1, err)
			}
			if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
		}
		candles = append(candles, domain.Candle{
			Time:   ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return candles, nil
}

func (b *BinanceAdapter) PlaceMarketOrder(ctx context.Context, creds domain.Credentials, symbol string, side domain.Action, quantity decimal.Decimal) (*domain.Fill, error) {
	if side != domain.ActionBuy && side != domain.ActionSell {
		return nil, fmt.Errorf("invalid order side: %s", side)
	}

	c := b.credentials(creds)
	params := url.Values{
		"symbol":           {symbol},
		"side":             {string(side)},
		"type":             {"MARKET"},
		"quantity":         {quantity.String()},
		"newOrderRespType": {"FULL"},
	}
	resp, err := b.sendRequest(ctx, http.MethodPost, "/api/v3/order", params, &c)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID             int64           `json:"orderId"`
		Status              string          `json:"status"`
		ExecutedQty         decimal.Decimal `json:"executedQty"`
		CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
		Fills               []struct {
			Price           decimal.Decimal `json:"price"`
			Qty             decimal.Decimal `json:"qty"`
			Commission      decimal.Decimal `json:"commission"`
			CommissionAsset string          `json:"commissionAsset"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	if result.Status != "" && result.Status != "FILLED" && result.Status != "PARTIALLY_FILLED" {
		return nil, fmt.Errorf("order %d not filled: %s", result.OrderID, result.Status)
	}

	fill := &domain.Fill{
		OrderID:  strconv.FormatInt(result.OrderID, 10),
		Symbol:   symbol,
		Side:     side,
		Quantity: result.ExecutedQty,
	}
	if result.ExecutedQty.IsPositive() {
		fill.Price = result.CummulativeQuoteQty.Div(result.ExecutedQty)
	}

	base, quote := SplitSymbol(symbol)
	for _, f := range result.Fills {
		switch f.CommissionAsset {
		case quote:
			fill.Commission = fill.Commission.Add(f.Commission)
		case base:
			fill.Commission = fill.Commission.Add(f.Commission.Mul(f.Price))
		}
	}
	return fill, nil
}

// SplitSymbol splits a spot symbol such as BNBUSDT into base and quote assets.
func SplitSymbol(symbol string) (base, quote string) {
	for _, q := range quoteAssets {
		if len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, ""
}
