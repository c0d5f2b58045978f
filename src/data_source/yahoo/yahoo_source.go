package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"market-sentinel/src/analysis/core"
	"market-sentinel/src/helpers"
	"market-sentinel/src/interfaces"
	"market-sentinel/src/logger"
	"market-sentinel/src/models"
	"market-sentinel/src/utils"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// -----------------------------------------------------------------------------

// YahooFinanceSource pulls the latest 1-minute bar per symbol from the Yahoo
// chart API.
type YahooFinanceSource struct {
	BaseURL string
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	// MarketScheduler, when set, makes Fetch return no data while the
	// symbol's exchange is closed.
	MarketScheduler *utils.MarketScheduler
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(netMgr interfaces.INetworkManager, scheduler *utils.MarketScheduler, log *logger.Logger) *YahooFinanceSource {
	if log == nil {
		log = logger.NewLogger("YahooFinanceSource")
	}
	return &YahooFinanceSource{
		BaseURL:         DefaultBaseURL,
		Network:         netMgr,
		Logger:          log,
		MarketScheduler: scheduler,
	}
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return "yahoo"
}

// -----------------------------------------------------------------------------

// Fetch returns the most recent bar of today's 1-minute series. The tick VWAP
// is the session proxy Σ(close·volume)/Σvolume.
func (s *YahooFinanceSource) Fetch(ctx context.Context, symbol string) (*models.MTick, error) {
	if s.MarketScheduler != nil && !s.MarketScheduler.IsOpen(symbol) {
		s.Logger.Debug("%s: market closed, skipping", symbol)
		return nil, nil
	}

	params := map[string]string{
		"interval":       "1m",
		"range":          "1d",
		"includePrePost": "false",
	}
	endpoint := fmt.Sprintf("%s/%s", s.BaseURL, url.PathEscape(symbol))

	respBytes, err := s.Network.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	return s.parseChartResponse(symbol, respBytes)
}

// -----------------------------------------------------------------------------

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				DataGranularity    string  `json:"dataGranularity"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"` // Use pointers to handle null
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type bar struct {
	timestamp              int64
	open, high, low, close float64
	volume                 float64
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) parseChartResponse(symbol string, data []byte) (*models.MTick, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, helpers.NewParseError(err, "chart response for %s", symbol)
	}

	if resp.Chart.Error != nil {
		return nil, helpers.NewParseError(nil, "yahoo api error for %s: %s - %s",
			symbol, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, helpers.NewParseError(nil, "no result in response for %s", symbol)
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		s.Logger.Warning("%s: empty history, market may be closed", symbol)
		return nil, nil
	}

	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Close) != n || len(quote.Open) != n || len(quote.High) != n ||
		len(quote.Low) != n || len(quote.Volume) != n {
		return nil, helpers.NewParseError(nil, "data alignment error for %s", symbol)
	}

	// Rows with any null field are dropped
	bars := make([]bar, 0, n)
	for i := 0; i < n; i++ {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil ||
			quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		b := bar{
			timestamp: result.Timestamp[i],
			open:      *quote.Open[i],
			high:      *quote.High[i],
			low:       *quote.Low[i],
			close:     *quote.Close[i],
			volume:    *quote.Volume[i],
		}
		if b.close <= 0 || b.volume < 0 {
			continue
		}
		bars = append(bars, b)
	}

	if len(bars) == 0 {
		s.Logger.Warning("%s: no valid bars, market may be closed", symbol)
		return nil, nil
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].timestamp < bars[j].timestamp
	})

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.close
		volumes[i] = b.volume
	}

	latest := bars[len(bars)-1]
	tick := &models.MTick{
		Symbol:    symbol,
		Timestamp: time.Unix(latest.timestamp, 0).UTC(),
		Price:     latest.close,
		Volume:    int64(latest.volume),
		Open:      models.Float(latest.open),
		High:      models.Float(latest.high),
		Low:       models.Float(latest.low),
	}
	if vwap, ok := core.VWAP(closes, volumes); ok {
		tick.VWAP = models.Float(core.Round(vwap, 4))
	}

	s.Logger.Debug("Fetched %s: %d bars, latest %s", symbol, len(bars), tick)
	return tick, nil
}
