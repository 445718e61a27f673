package marketdata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
)

const SchwabBaseURL = "https://api.schwabapi.com"

// ErrNotAuthenticated means no usable access or refresh token is on
// hand; the operator has to run the OAuth code flow once.
var ErrNotAuthenticated = errors.New("schwab: not authenticated")

// tokenSkew renews the access token this long before its expiry.
const tokenSkew = 60 * time.Second

// streamStaleAfter bounds how old a streamed quote may be before the
// client falls back to a REST quote.
const streamStaleAfter = 15 * time.Second

// maPeriods are the moving averages every snapshot carries.
var maPeriods = []int{9, 21, 34, 50, 200}

// deltaEstimate stands in for the ATM option delta when no chain is
// fetched. Slightly in the money, matching the contracts the alerts
// are written for.
const deltaEstimate = 0.55

type SchwabOptions struct {
	BaseURL        string
	AppKey         string
	AppSecret      string
	RedirectURI    string
	TokenFile      string
	Timeout        time.Duration
	EntryCostRatio float64
}

// SchwabClient talks to the Schwab market data API and derives the
// indicator snapshot the evaluator and monitor run on. It implements
// domain.MarketData.
type SchwabClient struct {
	http           *resty.Client
	appKey         string
	appSecret      string
	redirectURI    string
	tokenFile      string
	entryCostRatio float64
	loc            *time.Location
	logger         *zap.Logger
	now            func() time.Time

	streamMu sync.Mutex
	stream   *Streamer

	tokenMu sync.Mutex
	token   oauthToken
}

type oauthToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenExpires *time.Time `json:"token_expires"`
}

func NewSchwabClient(opts SchwabOptions, loc *time.Location, logger *zap.Logger) *SchwabClient {
	if opts.BaseURL == "" {
		opts.BaseURL = SchwabBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	http := resty.New()
	http.SetBaseURL(opts.BaseURL)
	http.SetTimeout(opts.Timeout)

	c := &SchwabClient{
		http:           http,
		appKey:         opts.AppKey,
		appSecret:      opts.AppSecret,
		redirectURI:    opts.RedirectURI,
		tokenFile:      opts.TokenFile,
		entryCostRatio: opts.EntryCostRatio,
		loc:            loc,
		logger:         logger,
		now:            time.Now,
	}
	c.loadToken()
	return c
}

// AttachStream lets GetOptionPrice prefer live streamed quotes over
// REST round trips.
func (c *SchwabClient) AttachStream(s *Streamer) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	c.stream = s
}

// --- OAuth ---

// AuthURL is the browser URL the operator opens to authorize the app.
func (c *SchwabClient) AuthURL() string {
	q := url.Values{}
	q.Set("client_id", c.appKey)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "readonly")
	return c.http.BaseURL + "/v1/oauth/authorize?" + q.Encode()
}

// ExchangeCode trades the one-time authorization code for tokens.
func (c *SchwabClient) ExchangeCode(ctx context.Context, code string) error {
	err := c.tokenGrant(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.redirectURI,
	})
	if err != nil {
		return err
	}
	c.logger.Info("schwab authenticated")
	return nil
}

type AuthStatus struct {
	Authenticated   bool       `json:"authenticated"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
}

func (c *SchwabClient) AuthStatus() AuthStatus {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	authed := c.token.AccessToken != "" &&
		c.token.TokenExpires != nil &&
		c.now().Before(*c.token.TokenExpires)

	return AuthStatus{
		Authenticated:   authed,
		ExpiresAt:       c.token.TokenExpires,
		HasRefreshToken: c.token.RefreshToken != "",
	}
}

func (c *SchwabClient) tokenGrant(ctx context.Context, form map[string]string) error {
	creds := base64.StdEncoding.EncodeToString([]byte(c.appKey + ":" + c.appSecret))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+creds).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(form).
		Post("/v1/oauth/token")
	if err != nil {
		return fmt.Errorf("schwab token request: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("schwab token error %d: %s", resp.StatusCode(), resp.String())
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("schwab token parse: %w", err)
	}
	if out.ExpiresIn <= 0 {
		out.ExpiresIn = 3600
	}
	expires := c.now().Add(time.Duration(out.ExpiresIn) * time.Second)

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		c.token.RefreshToken = out.RefreshToken
	}
	c.token.TokenExpires = &expires
	if err := c.saveTokenLocked(); err != nil {
		c.logger.Warn("schwab token not persisted", zap.Error(err))
	}
	return nil
}

// accessToken returns a valid bearer token, refreshing when the stored
// one is expired or about to expire.
func (c *SchwabClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	tok := c.token
	c.tokenMu.Unlock()

	if tok.AccessToken != "" && tok.TokenExpires != nil && c.now().Add(tokenSkew).Before(*tok.TokenExpires) {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}

	err := c.tokenGrant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": tok.RefreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("schwab token refresh: %w", err)
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token.AccessToken, nil
}

func (c *SchwabClient) loadToken() {
	if c.tokenFile == "" {
		return
	}
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("schwab token file unreadable", zap.Error(err))
		}
		return
	}
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if err := json.Unmarshal(data, &c.token); err != nil {
		c.logger.Warn("schwab token file corrupt", zap.Error(err))
		return
	}
	c.logger.Info("schwab token loaded", zap.String("file", c.tokenFile))
}

func (c *SchwabClient) saveTokenLocked() error {
	if c.tokenFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.tokenFile), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(c.token)
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile, data, 0o600)
}

// --- Market data ---

type schwabQuote struct {
	LastPrice   float64 `json:"lastPrice"`
	AskPrice    float64 `json:"askPrice"`
	BidPrice    float64 `json:"bidPrice"`
	TotalVolume float64 `json:"totalVolume"`
}

func (c *SchwabClient) getQuote(ctx context.Context, symbol string) (schwabQuote, error) {
	var quote schwabQuote

	tok, err := c.accessToken(ctx)
	if err != nil {
		return quote, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetQueryParams(map[string]string{
			"symbols": symbol,
			"fields":  "quote",
		}).
		Get("/marketdata/v1/quotes")
	if err != nil {
		return quote, fmt.Errorf("schwab quote %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return quote, fmt.Errorf("schwab quote %s: API error %d: %s", symbol, resp.StatusCode(), resp.String())
	}

	var out map[string]struct {
		Quote schwabQuote `json:"quote"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return quote, fmt.Errorf("schwab quote %s: parse: %w", symbol, err)
	}

	entry, ok := out[symbol]
	if !ok {
		return quote, fmt.Errorf("schwab quote %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return entry.Quote, nil
}

func (c *SchwabClient) priceHistory(ctx context.Context, symbol string, params map[string]string) ([]domain.Candle, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	query := map[string]string{
		"symbol":                symbol,
		"needExtendedHoursData": "false",
	}
	for k, v := range params {
		query[k] = v
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetQueryParams(query).
		Get("/marketdata/v1/pricehistory")
	if err != nil {
		return nil, fmt.Errorf("schwab history %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("schwab history %s: API error %d: %s", symbol, resp.StatusCode(), resp.String())
	}

	var out struct {
		Candles []struct {
			Open     float64 `json:"open"`
			High     float64 `json:"high"`
			Low      float64 `json:"low"`
			Close    float64 `json:"close"`
			Volume   float64 `json:"volume"`
			Datetime int64   `json:"datetime"`
		} `json:"candles"`
		Empty bool `json:"empty"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("schwab history %s: parse: %w", symbol, err)
	}
	if out.Empty || len(out.Candles) == 0 {
		return nil, fmt.Errorf("schwab history %s: %w", symbol, domain.ErrDataUnavailable)
	}

	candles := make([]domain.Candle, 0, len(out.Candles))
	for _, raw := range out.Candles {
		candles = append(candles, domain.Candle{
			Time:   raw.Datetime / 1000, // ms to seconds
			Open:   raw.Open,
			High:   raw.High,
			Low:    raw.Low,
			Close:  raw.Close,
			Volume: raw.Volume,
		})
	}
	return candles, nil
}

func (c *SchwabClient) dailyHistory(ctx context.Context, symbol string) ([]domain.Candle, error) {
	return c.priceHistory(ctx, symbol, map[string]string{
		"periodType":    "year",
		"period":        "1",
		"frequencyType": "daily",
		"frequency":     "1",
	})
}

func (c *SchwabClient) intradayHistory(ctx context.Context, symbol string) ([]domain.Candle, error) {
	return c.priceHistory(ctx, symbol, map[string]string{
		"periodType":    "day",
		"period":        "10",
		"frequencyType": "minute",
		"frequency":     "15",
	})
}

// GetSnapshot assembles the full indicator picture for one symbol from
// a quote, a year of daily candles and ten days of 15-minute candles.
// A missing intraday series degrades the multi-timeframe buckets to
// Neutral instead of failing the whole snapshot.
func (c *SchwabClient) GetSnapshot(ctx context.Context, symbol string) (*domain.IndicatorSnapshot, error) {
	now := c.now()

	quote, err := c.getQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	price := quote.LastPrice
	if price <= 0 && quote.AskPrice > 0 && quote.BidPrice > 0 {
		price = (quote.AskPrice + quote.BidPrice) / 2
	}
	if streamed, ok := c.streamedPrice(symbol); ok {
		price = streamed
	}
	if price <= 0 {
		return nil, fmt.Errorf("schwab quote %s: no usable price: %w", symbol, domain.ErrDataUnavailable)
	}

	daily, err := c.dailyHistory(ctx, symbol)
	if err != nil {
		return nil, err
	}

	intraday, err := c.intradayHistory(ctx, symbol)
	if err != nil {
		c.logger.Warn("intraday history unavailable, multi-timeframe degrades to neutral",
			zap.String("symbol", symbol), zap.Error(err))
		intraday = nil
	}

	closes := Closes(daily)
	mas := MovingAverages(closes, maPeriods)
	pivots := ComputePivots(daily, now, c.loc)

	return &domain.IndicatorSnapshot{
		Symbol:            symbol,
		Price:             price,
		MovingAverages:    mas,
		TrendState:        TrendState(mas),
		MultiTimeframe:    MultiTimeframe(intraday, daily),
		RelativeVolume:    RelativeVolume(daily, now, c.loc),
		Pivots:            pivots,
		SupportLevels:     BuildSupportLevels(price, pivots, mas[21]),
		ImpliedVolatility: RealizedVolatility(closes, 20),
		Delta:             deltaEstimate,
		Timestamp:         now,
	}, nil
}

// GetOptionPrice proxies the tracked contract's premium as a fixed
// fraction of the underlying. A fresh streamed quote wins over a REST
// round trip.
func (c *SchwabClient) GetOptionPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := c.streamedPrice(symbol); ok {
		return price * c.entryCostRatio, nil
	}

	quote, err := c.getQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := quote.LastPrice
	if price <= 0 && quote.AskPrice > 0 && quote.BidPrice > 0 {
		price = (quote.AskPrice + quote.BidPrice) / 2
	}
	if price <= 0 {
		return 0, fmt.Errorf("schwab quote %s: no usable price: %w", symbol, domain.ErrDataUnavailable)
	}
	return price * c.entryCostRatio, nil
}

func (c *SchwabClient) streamedPrice(symbol string) (float64, bool) {
	c.streamMu.Lock()
	stream := c.stream
	c.streamMu.Unlock()

	if stream == nil {
		return 0, false
	}
	price, at, ok := stream.LastPrice(symbol)
	if !ok || c.now().Sub(at) > streamStaleAfter {
		return 0, false
	}
	return price, true
}
