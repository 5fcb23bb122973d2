package servicenow

import (
	"context"
	"fmt"
	"strings"
)

// CatalogItem is the summary shape the assistants work with.
type CatalogItem struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	Category         string `json:"category"`
	Active           bool   `json:"active"`
}

// Category is one sc_category row.
type Category struct {
	SysID string `json:"sys_id"`
	Title string `json:"title"`
}

// Catalog is one sc_catalog row.
type Catalog struct {
	SysID string `json:"sys_id"`
	Title string `json:"title"`
}

func itemFromRecord(r record) CatalogItem {
	return CatalogItem{
		SysID:            r.str("sys_id"),
		Number:           r.str("number"),
		Name:             r.str("name"),
		ShortDescription: r.str("short_description"),
		Category:         r.str("category"),
		Active:           r.str("active") == "true",
	}
}

// CreateItemParams describes a new catalog item. Category and CatalogSysID
// are sys_ids; empty values are omitted from the insert.
type CreateItemParams struct {
	Name             string
	ShortDescription string
	Description      string
	Category         string
	CatalogSysID     string
}

// CreateCatalogItem inserts an inactive sc_cat_item row. The item stays
// hidden from users until it is published.
func (c *Client) CreateCatalogItem(ctx context.Context, p CreateItemParams) (*CatalogItem, error) {
	fields := map[string]string{
		"name":              p.Name,
		"short_description": p.ShortDescription,
		"active":            "false",
	}
	if p.Description != "" {
		fields["description"] = p.Description
	}
	if p.Category != "" {
		fields["category"] = p.Category
	}
	if p.CatalogSysID != "" {
		fields["sc_catalogs"] = p.CatalogSysID
	}
	rec, err := c.create(ctx, "sc_cat_item", fields)
	if err != nil {
		return nil, err
	}
	item := itemFromRecord(rec)
	return &item, nil
}

// PublishCatalogItem activates the item so it appears in the catalog.
func (c *Client) PublishCatalogItem(ctx context.Context, sysID string) (*CatalogItem, error) {
	rec, err := c.update(ctx, "sc_cat_item", sysID, map[string]string{"active": "true"})
	if err != nil {
		return nil, err
	}
	item := itemFromRecord(rec)
	return &item, nil
}

// GetCatalogItem reads one item by sys_id.
func (c *Client) GetCatalogItem(ctx context.Context, sysID string) (*CatalogItem, error) {
	rec, err := c.get(ctx, "sc_cat_item", sysID)
	if err != nil {
		return nil, err
	}
	item := itemFromRecord(rec)
	return &item, nil
}

// SearchCatalogItems finds items whose name contains the term or whose
// number matches it exactly.
func (c *Client) SearchCatalogItems(ctx context.Context, term string, limit int) ([]CatalogItem, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf("nameLIKE%s^ORnumber=%s", term, term)
	recs, err := c.query(ctx, "sc_cat_item", query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]CatalogItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, itemFromRecord(r))
	}
	return items, nil
}

// ResolveItem turns a user-supplied reference into an item. A 32-character
// hex-ish token is treated as a sys_id; anything else is looked up by
// number or name.
func (c *Client) ResolveItem(ctx context.Context, ref string) (*CatalogItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty catalog item reference")
	}
	if isSysID(ref) {
		return c.GetCatalogItem(ctx, ref)
	}
	items, err := c.SearchCatalogItems(ctx, ref, 2)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("no catalog item matches %q", ref)
	case 1:
		return &items[0], nil
	default:
		return nil, fmt.Errorf("multiple catalog items match %q, use the item number or sys_id", ref)
	}
}

// isSysID reports whether the token looks like a ServiceNow sys_id: exactly
// 32 lowercase hex-style alphanumerics.
func isSysID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// Categories lists the catalog categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	recs, err := c.query(ctx, "sc_category", "active=true", 50)
	if err != nil {
		return nil, err
	}
	cats := make([]Category, 0, len(recs))
	for _, r := range recs {
		cats = append(cats, Category{SysID: r.str("sys_id"), Title: r.str("title")})
	}
	return cats, nil
}

// Catalogs lists the service catalogs.
func (c *Client) Catalogs(ctx context.Context) ([]Catalog, error) {
	recs, err := c.query(ctx, "sc_catalog", "active=true", 50)
	if err != nil {
		return nil, err
	}
	cats := make([]Catalog, 0, len(recs))
	for _, r := range recs {
		cats = append(cats, Catalog{SysID: r.str("sys_id"), Title: r.str("title")})
	}
	return cats, nil
}

// ResolveCategory matches a user-supplied category name against the
// existing categories: exact title match first, then partial match, then
// the first active category as a catch-all. Empty names resolve to empty.
func (c *Client) ResolveCategory(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	cats, err := c.Categories(ctx)
	if err != nil {
		return "", err
	}
	if len(cats) == 0 {
		return "", nil
	}
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, cat := range cats {
		if strings.ToLower(cat.Title) == lowered {
			return cat.SysID, nil
		}
	}
	for _, cat := range cats {
		title := strings.ToLower(cat.Title)
		if strings.Contains(title, lowered) || strings.Contains(lowered, title) {
			return cat.SysID, nil
		}
	}
	return cats[0].SysID, nil
}

// ListCatalogItems lists items, newest first.
func (c *Client) ListCatalogItems(ctx context.Context, limit int) ([]CatalogItem, error) {
	if limit <= 0 {
		limit = 20
	}
	recs, err := c.query(ctx, "sc_cat_item", "ORDERBYDESCsys_created_on", limit)
	if err != nil {
		return nil, err
	}
	items := make([]CatalogItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, itemFromRecord(r))
	}
	return items, nil
}

// AttachVariableSet links an io_set_item row so the item inherits the
// variable set's questions.
func (c *Client) AttachVariableSet(ctx context.Context, itemSysID, setSysID string) error {
	_, err := c.create(ctx, "io_set_item", map[string]string{
		"sc_cat_item":  itemSysID,
		"variable_set": setSysID,
	})
	return err
}
