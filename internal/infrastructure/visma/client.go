package visma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

const apiPrefix = "/controller/api/v1"

// client is the typed adapter over the rate-limited transport for the
// customer and inventory-item resources of one company database.
type client struct {
	transport *Transport
	baseURL   string
	companyDB string
	pageSize  int
	logger    zerolog.Logger
}

// NewClient creates a Visma.net API client. pageSize governs the list
// pagination; a non-positive value falls back to 50.
func NewClient(transport *Transport, baseURL, companyDB string, pageSize int, logger zerolog.Logger) ports.VismaClient {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &client{
		transport: transport,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		companyDB: companyDB,
		pageSize:  pageSize,
		logger:    logger,
	}
}

func (c *client) resourceURL(resource string, parts ...string) string {
	u := c.baseURL + apiPrefix + "/" + resource + "/" + url.PathEscape(c.companyDB)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// getJSON issues a GET and decodes the response into out.
func (c *client) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.transport.Send(ctx, http.MethodGet, rawURL, nil, SendOptions{})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// listPaged fetches every page of a list resource until a short page.
func listPaged[T any](ctx context.Context, c *client, resource string) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		params := url.Values{}
		params.Set("pageNumber", strconv.Itoa(page))
		params.Set("pageSize", strconv.Itoa(c.pageSize))

		var batch []T
		if err := c.getJSON(ctx, c.resourceURL(resource)+"?"+params.Encode(), &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			return all, nil
		}
	}
}

// Customer resource

func (c *client) ListCustomers(ctx context.Context) ([]domain.VismaCustomer, error) {
	customers, err := listPaged[domain.VismaCustomer](ctx, c, "customer")
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	c.logger.Debug().Int("count", len(customers)).Msg("Retrieved customers from Visma.net")
	return customers, nil
}

func (c *client) GetCustomer(ctx context.Context, number string) (*domain.VismaCustomer, error) {
	var customer domain.VismaCustomer
	err := c.getJSON(ctx, c.resourceURL("customer", number), &customer)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", number, err)
	}
	return &customer, nil
}

func (c *client) CreateCustomer(ctx context.Context, customer *domain.VismaCustomer) (*domain.VismaCustomer, error) {
	body, err := c.transport.Send(ctx, http.MethodPost, c.resourceURL("customer"), customer, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	var created domain.VismaCustomer
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created customer: %w", err)
	}
	c.logger.Info().Str("number", created.Number).Msg("Created customer in Visma.net")
	return &created, nil
}

func (c *client) UpdateCustomer(ctx context.Context, number string, customer *domain.VismaCustomer) (*domain.VismaCustomer, error) {
	body, err := c.transport.Send(ctx, http.MethodPut, c.resourceURL("customer", number), customer, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to update customer %s: %w", number, err)
	}
	var updated domain.VismaCustomer
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("failed to decode updated customer: %w", err)
	}
	c.logger.Info().Str("number", number).Msg("Updated customer in Visma.net")
	return &updated, nil
}

// Inventory item resource

func (c *client) ListItems(ctx context.Context) ([]domain.VismaItem, error) {
	items, err := listPaged[domain.VismaItem](ctx, c, "inventoryitem")
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory items: %w", err)
	}
	c.logger.Debug().Int("count", len(items)).Msg("Retrieved inventory items from Visma.net")
	return items, nil
}

func (c *client) GetItem(ctx context.Context, inventoryID string) (*domain.VismaItem, error) {
	var item domain.VismaItem
	err := c.getJSON(ctx, c.resourceURL("inventoryitem", inventoryID), &item)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory item %s: %w", inventoryID, err)
	}
	return &item, nil
}

func (c *client) CreateItem(ctx context.Context, item *domain.VismaItem) (*domain.VismaItem, error) {
	body, err := c.transport.Send(ctx, http.MethodPost, c.resourceURL("inventoryitem"), item, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}
	var created domain.VismaItem
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created inventory item: %w", err)
	}
	c.logger.Info().Str("inventory_id", created.InventoryID).Msg("Created inventory item in Visma.net")
	return &created, nil
}

func (c *client) UpdateItem(ctx context.Context, inventoryID string, item *domain.VismaItem) (*domain.VismaItem, error) {
	body, err := c.transport.Send(ctx, http.MethodPut, c.resourceURL("inventoryitem", inventoryID), item, SendOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to update inventory item %s: %w", inventoryID, err)
	}
	var updated domain.VismaItem
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("failed to decode updated inventory item: %w", err)
	}
	c.logger.Info().Str("inventory_id", inventoryID).Msg("Updated inventory item in Visma.net")
	return &updated, nil
}

// UpdateItemPrice fetches the current item and issues a full-record PUT
// carrying the changed base price alongside the unchanged fields, which
// is what the inventory-item endpoint requires.
func (c *client) UpdateItemPrice(ctx context.Context, inventoryID string, basePrice float64) (*domain.VismaItem, error) {
	current, err := c.GetItem(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("inventory item %s not found", inventoryID)
	}

	update := &domain.VismaItem{
		InventoryID: current.InventoryID,
		Description: current.Description,
		BasePrice:   basePrice,
		BaseUnit:    current.BaseUnit,
		VATCategory: current.VATCategory,
		Type:        current.Type,
		Status:      current.Status,
	}
	return c.UpdateItem(ctx, inventoryID, update)
}

// Lookups

func (c *client) CompanyInfo(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	if err := c.getJSON(ctx, c.resourceURL("company"), &info); err != nil {
		return nil, fmt.Errorf("failed to get company info: %w", err)
	}
	return info, nil
}

func (c *client) VATCategories(ctx context.Context) ([]domain.VATCategory, error) {
	var categories []domain.VATCategory
	if err := c.getJSON(ctx, c.resourceURL("vatcategory"), &categories); err != nil {
		return nil, fmt.Errorf("failed to get VAT categories: %w", err)
	}
	return categories, nil
}

func (c *client) ItemClasses(ctx context.Context) ([]domain.ItemClass, error) {
	var classes []domain.ItemClass
	if err := c.getJSON(ctx, c.resourceURL("itemclass"), &classes); err != nil {
		return nil, fmt.Errorf("failed to get item classes: %w", err)
	}
	return classes, nil
}
