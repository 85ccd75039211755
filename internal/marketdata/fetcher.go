// Package marketdata fetches current prices and technical indicators for the
// tracked assets. Binance's 24hr ticker is the primary source; CoinGecko is
// the fallback so a single upstream outage never aborts a trading cycle.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"trade-arena/internal/metrics"
)

const (
	defaultBinanceBaseURL   = "https://api.binance.com/api/v3"
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

	binanceTimeout   = 5 * time.Second
	coingeckoTimeout = 10 * time.Second
)

// Quote is the current price and 24h change for one asset.
type Quote struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
}

// Fetcher retrieves market data for tracked assets.
type Fetcher struct {
	client           *http.Client
	cache            *Cache
	metrics          *metrics.Metrics
	binanceBaseURL   string
	coingeckoBaseURL string

	binanceSymbols map[string]string
	coingeckoIDs   map[string]string
}

// NewFetcher creates a Fetcher. cache and m may be nil.
func NewFetcher(cache *Cache, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		client:           &http.Client{Timeout: coingeckoTimeout},
		cache:            cache,
		metrics:          m,
		binanceBaseURL:   defaultBinanceBaseURL,
		coingeckoBaseURL: defaultCoinGeckoBaseURL,
		binanceSymbols: map[string]string{
			"BTC":  "BTCUSDT",
			"ETH":  "ETHUSDT",
			"SOL":  "SOLUSDT",
			"BNB":  "BNBUSDT",
			"XRP":  "XRPUSDT",
			"DOGE": "DOGEUSDT",
		},
		coingeckoIDs: map[string]string{
			"BTC":  "bitcoin",
			"ETH":  "ethereum",
			"SOL":  "solana",
			"BNB":  "binancecoin",
			"XRP":  "ripple",
			"DOGE": "dogecoin",
		},
	}
}

// SetBaseURLs overrides the upstream endpoints. Used by tests.
func (f *Fetcher) SetBaseURLs(binance, coingecko string) {
	f.binanceBaseURL = binance
	f.coingeckoBaseURL = coingecko
}

// CurrentPrices returns quotes for the requested assets. A partial result is
// valid: assets neither source knows are simply absent from the map.
func (f *Fetcher) CurrentPrices(ctx context.Context, assets []string) (map[string]Quote, error) {
	key := cacheKey(assets)
	if f.cache != nil {
		var cached map[string]Quote
		if f.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	start := time.Now()
	prices, err := f.fetchFromBinance(ctx, assets)
	if err != nil {
		if f.metrics != nil {
			f.metrics.MarketFallbacks.Inc()
		}
		prices, err = f.fetchFromCoinGecko(ctx, assets)
		if err != nil {
			return nil, fmt.Errorf("market data unavailable: %w", err)
		}
	}
	if f.metrics != nil {
		f.metrics.MarketFetchDur.Observe(time.Since(start).Seconds())
	}

	if f.cache != nil {
		f.cache.Set(ctx, key, prices)
	}
	return prices, nil
}

func cacheKey(assets []string) string {
	sorted := make([]string, len(assets))
	copy(sorted, assets)
	sort.Strings(sorted)
	return "prices:" + strings.Join(sorted, "_")
}

func (f *Fetcher) fetchFromBinance(ctx context.Context, assets []string) (map[string]Quote, error) {
	var symbols []string
	for _, asset := range assets {
		if sym, ok := f.binanceSymbols[asset]; ok {
			symbols = append(symbols, `"`+sym+`"`)
		}
	}
	prices := make(map[string]Quote)
	if len(symbols) == 0 {
		return prices, nil
	}

	u := f.binanceBaseURL + "/ticker/24hr?symbols=" + url.QueryEscape("["+strings.Join(symbols, ",")+"]")
	ctx, cancel := context.WithTimeout(ctx, binanceTimeout)
	defer cancel()

	var tickers []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := f.getJSON(ctx, u, &tickers); err != nil {
		return nil, fmt.Errorf("binance: %w", err)
	}

	for _, tick := range tickers {
		for asset, sym := range f.binanceSymbols {
			if sym != tick.Symbol {
				continue
			}
			price, err := strconv.ParseFloat(tick.LastPrice, 64)
			if err != nil {
				break
			}
			change, _ := strconv.ParseFloat(tick.PriceChangePercent, 64)
			prices[asset] = Quote{Price: price, Change24h: change}
			break
		}
	}
	return prices, nil
}

func (f *Fetcher) fetchFromCoinGecko(ctx context.Context, assets []string) (map[string]Quote, error) {
	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		ids = append(ids, f.geckoID(asset))
	}

	u := f.coingeckoBaseURL + "/simple/price?ids=" + url.QueryEscape(strings.Join(ids, ",")) +
		"&vs_currencies=usd&include_24hr_change=true"
	ctx, cancel := context.WithTimeout(ctx, coingeckoTimeout)
	defer cancel()

	var data map[string]struct {
		USD       float64 `json:"usd"`
		USDChange float64 `json:"usd_24h_change"`
	}
	if err := f.getJSON(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	prices := make(map[string]Quote)
	for _, asset := range assets {
		if entry, ok := data[f.geckoID(asset)]; ok {
			prices[asset] = Quote{Price: entry.USD, Change24h: entry.USDChange}
		}
	}
	return prices, nil
}

func (f *Fetcher) geckoID(asset string) string {
	if id, ok := f.coingeckoIDs[asset]; ok {
		return id
	}
	return strings.ToLower(asset)
}

func (f *Fetcher) getJSON(ctx context.Context, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
