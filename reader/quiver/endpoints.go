package quiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"congressflow/models"
)

// Company is one entry of the provider's ticker directory.
type Company struct {
	Ticker string `json:"Ticker"`
	Name   string `json:"Name"`
}

// Companies fetches the full company directory.
func (c *Client) Companies(ctx context.Context) ([]Company, error) {
	body, err := c.Get(ctx, "companies")
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	var companies []Company
	if err := json.Unmarshal(body, &companies); err != nil {
		return nil, fmt.Errorf("failed to decode company directory: %w", err)
	}
	return companies, nil
}

// CongressTrading fetches the historical disclosures for one ticker.
// A provider 404 yields an empty slice and no error.
func (c *Client) CongressTrading(ctx context.Context, ticker string) ([]models.RawDisclosure, error) {
	body, err := c.Get(ctx, "historical/congresstrading/"+url.PathEscape(ticker))
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	var rows []models.RawDisclosure
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", ticker, err)
	}
	return rows, nil
}

// BulkCongressTrading fetches every disclosure for all tickers and dates
// in a single payload.
func (c *Client) BulkCongressTrading(ctx context.Context) ([]models.RawDisclosure, error) {
	body, err := c.Get(ctx, "bulk/congresstrading")
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}
	var rows []models.RawDisclosure
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode bulk payload: %w", err)
	}
	return rows, nil
}
