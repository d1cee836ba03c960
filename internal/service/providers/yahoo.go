package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ChainWatch/internal/domain/models"
	xhttp "ChainWatch/pkg/http"
)

const yahooName = "yahoo"

// YahooOption configures Yahoo.
type YahooOption func(*Yahoo)

// Yahoo pulls option chains from the unauthenticated Yahoo Finance v7 API.
// The base call returns the nearest expiration plus the list of listed
// expiration dates; further expirations need one call each.
type Yahoo struct {
	baseURL        string
	client         *xhttp.Client
	maxExpirations int
}

// NewYahoo creates a Yahoo provider.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		baseURL:        "https://query2.finance.yahoo.com",
		client:         xhttp.NewClient(),
		maxExpirations: 6,
	}

	for _, opt := range opts {
		opt(y)
	}

	return y
}

// WithYahooBaseURL overrides the API endpoint.
func WithYahooBaseURL(u string) YahooOption {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(u, "/") }
}

// WithYahooClient overrides the HTTP client.
func WithYahooClient(c *xhttp.Client) YahooOption {
	return func(y *Yahoo) { y.client = c }
}

// WithYahooMaxExpirations caps how many expiration dates are fetched per
// chain.
func WithYahooMaxExpirations(n int) YahooOption {
	return func(y *Yahoo) {
		if n > 0 {
			y.maxExpirations = n
		}
	}
}

func (y *Yahoo) Name() string { return yahooName }

type yahooContract struct {
	ContractSymbol    string  `json:"contractSymbol"`
	Strike            float64 `json:"strike"`
	LastPrice         float64 `json:"lastPrice"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Expiration        int64   `json:"expiration"`
}

type yahooOptionsResponse struct {
	OptionChain struct {
		Result []struct {
			UnderlyingSymbol string  `json:"underlyingSymbol"`
			ExpirationDates  []int64 `json:"expirationDates"`
			Quote            struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			Options []struct {
				ExpirationDate int64           `json:"expirationDate"`
				Calls          []yahooContract `json:"calls"`
				Puts           []yahooContract `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"optionChain"`
}

// FetchChain fetches the nearest expiration, then up to maxExpirations-1
// further listed dates, and merges them into one snapshot.
func (y *Yahoo) FetchChain(ctx context.Context, symbol string, asOf time.Time) (*models.ChainSnapshot, error) {
	snap := &models.ChainSnapshot{
		Symbol:       symbol,
		SnapshotDate: asOf,
		Provider:     yahooName,
	}

	expirations, err := y.fetchPage(ctx, symbol, 0, snap)
	if err != nil {
		return nil, err
	}

	fetched := 1
	for _, exp := range expirations {
		if fetched >= y.maxExpirations {
			break
		}
		if len(snap.Contracts) > 0 && alreadyFetched(snap, exp) {
			continue
		}
		if _, err := y.fetchPage(ctx, symbol, exp, snap); err != nil {
			return nil, err
		}
		fetched++
	}

	return snap, nil
}

// fetchPage fetches one expiration (0 means nearest) and appends its
// contracts to snap. Returns the full expiration date list from the payload.
func (y *Yahoo) fetchPage(ctx context.Context, symbol string, expiration int64, snap *models.ChainSnapshot) ([]int64, error) {
	params := map[string][]string{}
	if expiration > 0 {
		params["date"] = []string{strconv.FormatInt(expiration, 10)}
	}

	var resp yahooOptionsResponse
	err := y.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         fmt.Sprintf("%s/v7/finance/options/%s", y.baseURL, symbol),
		QueryParams: params,
		Headers: map[string]string{
			"User-Agent": "Mozilla/5.0",
		},
	}, &resp)
	if err != nil {
		return nil, classifyHTTPError(yahooName, err)
	}

	if resp.OptionChain.Error != nil {
		return nil, &Failure{
			Kind:     KindUnavailable,
			Provider: yahooName,
			Err:      fmt.Errorf("%s: %s", resp.OptionChain.Error.Code, resp.OptionChain.Error.Description),
		}
	}
	if len(resp.OptionChain.Result) == 0 {
		return nil, nil
	}

	result := resp.OptionChain.Result[0]
	if snap.UnderlyingPrice == 0 {
		snap.UnderlyingPrice = result.Quote.RegularMarketPrice
	}

	for _, opts := range result.Options {
		for _, c := range opts.Calls {
			snap.Contracts = append(snap.Contracts, y.toContract(symbol, c, models.Call))
		}
		for _, c := range opts.Puts {
			snap.Contracts = append(snap.Contracts, y.toContract(symbol, c, models.Put))
		}
	}

	return result.ExpirationDates, nil
}

func (y *Yahoo) toContract(symbol string, c yahooContract, typ models.OptionType) models.OptionContract {
	return models.OptionContract{
		Symbol:         symbol,
		ContractSymbol: c.ContractSymbol,
		Expiration:     time.Unix(c.Expiration, 0).UTC(),
		Strike:         c.Strike,
		Type:           typ,
		LastPrice:      c.LastPrice,
		Bid:            c.Bid,
		Ask:            c.Ask,
		Volume:         c.Volume,
		OpenInterest:   c.OpenInterest,
		ImpliedVol:     c.ImpliedVolatility,
	}
}

func alreadyFetched(snap *models.ChainSnapshot, exp int64) bool {
	t := time.Unix(exp, 0).UTC()
	for _, c := range snap.Contracts {
		if c.Expiration.Equal(t) {
			return true
		}
	}
	return false
}
