package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ChainWatch/internal/domain/models"
	xhttp "ChainWatch/pkg/http"
)

const polygonName = "polygon"

// PolygonOption configures Polygon.
type PolygonOption func(*Polygon)

// Polygon pulls option chain snapshots from the Polygon.io v3 snapshot API.
// One page holds up to 250 contracts; wide chains are paged via cursor.
type Polygon struct {
	baseURL  string
	apiKey   string
	client   *xhttp.Client
	maxPages int
}

// NewPolygon creates a Polygon provider.
func NewPolygon(apiKey string, opts ...PolygonOption) *Polygon {
	p := &Polygon{
		baseURL:  "https://api.polygon.io",
		apiKey:   apiKey,
		client:   xhttp.NewClient(),
		maxPages: 10,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithPolygonBaseURL overrides the API endpoint.
func WithPolygonBaseURL(u string) PolygonOption {
	return func(p *Polygon) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPolygonClient overrides the HTTP client.
func WithPolygonClient(c *xhttp.Client) PolygonOption {
	return func(p *Polygon) { p.client = c }
}

func (p *Polygon) Name() string { return polygonName }

type polygonChainResponse struct {
	Status  string          `json:"status"`
	NextURL string          `json:"next_url"`
	Results []polygonResult `json:"results"`
}

type polygonResult struct {
	Details struct {
		Ticker         string  `json:"ticker"`
		ContractType   string  `json:"contract_type"`
		ExpirationDate string  `json:"expiration_date"`
		StrikePrice    float64 `json:"strike_price"`
	} `json:"details"`
	Day struct {
		Volume int64   `json:"volume"`
		Close  float64 `json:"close"`
	} `json:"day"`
	LastQuote struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	} `json:"last_quote"`
	OpenInterest      int64   `json:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Greeks            struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
	} `json:"greeks"`
	UnderlyingAsset struct {
		Price float64 `json:"price"`
	} `json:"underlying_asset"`
}

// FetchChain fetches the full chain for symbol, following cursor pages.
func (p *Polygon) FetchChain(ctx context.Context, symbol string, asOf time.Time) (*models.ChainSnapshot, error) {
	snap := &models.ChainSnapshot{
		Symbol:       symbol,
		SnapshotDate: asOf,
		Provider:     polygonName,
	}

	cursor := ""
	for page := 0; page < p.maxPages; page++ {
		params := map[string][]string{
			"limit":  {"250"},
			"apiKey": {p.apiKey},
		}
		if cursor != "" {
			params["cursor"] = []string{cursor}
		}

		var resp polygonChainResponse
		err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         fmt.Sprintf("%s/v3/snapshot/options/%s", p.baseURL, symbol),
			QueryParams: params,
		}, &resp)
		if err != nil {
			return nil, classifyHTTPError(polygonName, err)
		}

		for _, r := range resp.Results {
			c, err := p.toContract(symbol, r)
			if err != nil {
				return nil, &Failure{Kind: KindParse, Provider: polygonName, Err: err}
			}
			snap.Contracts = append(snap.Contracts, c)
			if snap.UnderlyingPrice == 0 && r.UnderlyingAsset.Price > 0 {
				snap.UnderlyingPrice = r.UnderlyingAsset.Price
			}
		}

		cursor = cursorFrom(resp.NextURL)
		if cursor == "" {
			break
		}
	}

	return snap, nil
}

func (p *Polygon) toContract(symbol string, r polygonResult) (models.OptionContract, error) {
	exp, err := time.Parse("2006-01-02", r.Details.ExpirationDate)
	if err != nil {
		return models.OptionContract{}, fmt.Errorf("expiration %q: %w", r.Details.ExpirationDate, err)
	}

	var typ models.OptionType
	switch strings.ToLower(r.Details.ContractType) {
	case "call":
		typ = models.Call
	case "put":
		typ = models.Put
	default:
		return models.OptionContract{}, fmt.Errorf("contract type %q", r.Details.ContractType)
	}

	return models.OptionContract{
		Symbol:         symbol,
		ContractSymbol: r.Details.Ticker,
		Expiration:     exp,
		Strike:         r.Details.StrikePrice,
		Type:           typ,
		LastPrice:      r.Day.Close,
		Bid:            r.LastQuote.Bid,
		Ask:            r.LastQuote.Ask,
		Volume:         r.Day.Volume,
		OpenInterest:   r.OpenInterest,
		ImpliedVol:     r.ImpliedVolatility,
		Delta:          r.Greeks.Delta,
		Gamma:          r.Greeks.Gamma,
		Theta:          r.Greeks.Theta,
		Vega:           r.Greeks.Vega,
	}, nil
}

// cursorFrom extracts the pagination cursor from a next_url link.
func cursorFrom(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return u.Query().Get("cursor")
}
