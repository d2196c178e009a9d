package vinted

import (
	"context"
	"net/url"
	"strconv"
)

const (
	searchEndpoint     = "/api/v2/catalog/items"
	brandsEndpoint     = "/api/v2/brands"
	categoriesEndpoint = "/api/v2/catalogs"
)

// SearchParams describes one catalog search. Zero-valued fields are omitted
// from the request.
type SearchParams struct {
	Text         string
	BrandIDs     []int
	CatalogIDs   []int
	SizeIDs      []int
	ConditionIDs []int
	PriceFrom    *float64
	PriceTo      *float64
	Currency     string
	Order        string
	PerPage      int
	Page         int
}

func (p SearchParams) encode() url.Values {
	v := url.Values{}
	if p.Text != "" {
		v.Set("search_text", p.Text)
	}
	for _, id := range p.BrandIDs {
		v.Add("brand_ids[]", strconv.Itoa(id))
	}
	for _, id := range p.CatalogIDs {
		v.Add("catalog_ids[]", strconv.Itoa(id))
	}
	for _, id := range p.SizeIDs {
		v.Add("size_ids[]", strconv.Itoa(id))
	}
	for _, id := range p.ConditionIDs {
		v.Add("status_ids[]", strconv.Itoa(id))
	}
	if p.PriceFrom != nil {
		v.Set("price_from", strconv.FormatFloat(*p.PriceFrom, 'f', -1, 64))
	}
	if p.PriceTo != nil {
		v.Set("price_to", strconv.FormatFloat(*p.PriceTo, 'f', -1, 64))
	}
	if p.Currency != "" {
		v.Set("currency", p.Currency)
	}

	order := p.Order
	if order == "" {
		order = OrderNewestFirst
	}
	v.Set("order", order)

	perPage := p.PerPage
	if perPage <= 0 || perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	v.Set("per_page", strconv.Itoa(perPage))

	page := p.Page
	if page <= 0 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))

	return v
}

type searchResponse struct {
	Items      []rawItem  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// searchItems runs one catalog search and normalizes the wire items.
func (s *session) searchItems(ctx context.Context, params SearchParams) (*SearchResult, error) {
	var resp searchResponse
	if err := s.getJSON(ctx, searchEndpoint, params.encode(), &resp); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Items:      make([]Item, 0, len(resp.Items)),
		Pagination: resp.Pagination,
	}
	for _, raw := range resp.Items {
		result.Items = append(result.Items, raw.toItem(params.Currency))
	}
	return result, nil
}

type brandsResponse struct {
	Brands []Brand `json:"brands"`
}

func (s *session) searchBrands(ctx context.Context, keyword string, limit int) ([]Brand, error) {
	v := url.Values{}
	if keyword != "" {
		v.Set("keyword", keyword)
	}

	var resp brandsResponse
	if err := s.getJSON(ctx, brandsEndpoint, v, &resp); err != nil {
		return nil, err
	}
	if limit > 0 && len(resp.Brands) > limit {
		resp.Brands = resp.Brands[:limit]
	}
	return resp.Brands, nil
}

type categoriesResponse struct {
	Catalogs []Category `json:"catalogs"`
}

func (s *session) categories(ctx context.Context) ([]Category, error) {
	var resp categoriesResponse
	if err := s.getJSON(ctx, categoriesEndpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Catalogs, nil
}
