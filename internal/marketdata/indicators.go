package marketdata

import (
	"context"
	"fmt"
	"net/url"
)

// Indicators computes technical indicators for one asset from 14 days of
// hourly history: SMA7, SMA14, RSI14, and 7-day change. Returns a nil map
// when history is too short — absent indicators are omitted from oracle
// requests, never zero-filled.
func (f *Fetcher) Indicators(ctx context.Context, asset string) (map[string]float64, error) {
	prices, err := f.historicalPrices(ctx, asset, 14)
	if err != nil {
		return nil, err
	}
	if len(prices) < 14 {
		return nil, nil
	}

	ind := map[string]float64{
		"sma_7":         sma(prices, 7),
		"sma_14":        sma(prices, 14),
		"rsi_14":        rsi(prices, 14),
		"current_price": prices[len(prices)-1],
	}
	if prices[0] > 0 {
		ind["price_change_7d"] = (prices[len(prices)-1] - prices[0]) / prices[0] * 100
	}
	return ind, nil
}

func (f *Fetcher) historicalPrices(ctx context.Context, asset string, days int) ([]float64, error) {
	u := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d",
		f.coingeckoBaseURL, url.PathEscape(f.geckoID(asset)), days)
	ctx, cancel := context.WithTimeout(ctx, coingeckoTimeout)
	defer cancel()

	var data struct {
		Prices [][2]float64 `json:"prices"` // [timestamp_ms, price]
	}
	if err := f.getJSON(ctx, u, &data); err != nil {
		return nil, fmt.Errorf("coingecko history: %w", err)
	}

	prices := make([]float64, 0, len(data.Prices))
	for _, p := range data.Prices {
		prices = append(prices, p[1])
	}
	return prices, nil
}

// sma returns the simple moving average of the last n prices.
func sma(prices []float64, n int) float64 {
	if len(prices) < n {
		return prices[len(prices)-1]
	}
	var sum float64
	for _, p := range prices[len(prices)-n:] {
		sum += p
	}
	return sum / float64(n)
}

// rsi returns the relative strength index over the last n changes, using
// simple averages of gains and losses.
func rsi(prices []float64, n int) float64 {
	var gains, losses []float64
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	var avgGain, avgLoss float64
	if len(gains) > 0 {
		start := len(gains) - n
		if start < 0 {
			start = 0
		}
		for _, g := range gains[start:] {
			avgGain += g
		}
		for _, l := range losses[start:] {
			avgLoss += l
		}
		avgGain /= float64(n)
		avgLoss /= float64(n)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
