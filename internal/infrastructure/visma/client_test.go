package visma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-visma-sync-layer/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler, pageSize int) (*client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tr := NewTransport(&staticTokens{token: "tok"}, time.Millisecond, zerolog.Nop(), nil)
	c := NewClient(tr, server.URL, "company-1", pageSize, zerolog.Nop()).(*client)
	return c, server
}

func TestResourceURL(t *testing.T) {
	c := &client{baseURL: "https://integration.visma.net/API", companyDB: "company 1"}
	assert.Equal(t,
		"https://integration.visma.net/API/controller/api/v1/customer/company%201",
		c.resourceURL("customer"))
	assert.Equal(t,
		"https://integration.visma.net/API/controller/api/v1/customer/company%201/C001",
		c.resourceURL("customer", "C001"))
}

func TestListCustomersPaginates(t *testing.T) {
	pageSize := 2
	pages := map[string][]domain.VismaCustomer{
		"0": {{Number: "C001"}, {Number: "C002"}},
		"1": {{Number: "C003"}},
	}
	var requests []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/controller/api/v1/customer/company-1", r.URL.Path)
		require.Equal(t, strconv.Itoa(pageSize), r.URL.Query().Get("pageSize"))
		page := r.URL.Query().Get("pageNumber")
		requests = append(requests, page)
		json.NewEncoder(w).Encode(pages[page])
	}), pageSize)

	customers, err := c.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, []string{"0", "1"}, requests, "a short page ends pagination")
	assert.Equal(t, "C003", customers[2].Number)
}

func TestGetCustomerNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no such customer"}`, http.StatusNotFound)
	}), 10)

	customer, err := c.GetCustomer(context.Background(), "C404")
	require.NoError(t, err)
	assert.Nil(t, customer)
}

func TestCreateCustomer(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var incoming domain.VismaCustomer
		require.NoError(t, json.NewDecoder(r.Body).Decode(&incoming))
		incoming.Number = "C100"
		json.NewEncoder(w).Encode(incoming)
	}), 10)

	created, err := c.CreateCustomer(context.Background(), &domain.VismaCustomer{Name: "Acme AB"})
	require.NoError(t, err)
	assert.Equal(t, "C100", created.Number)
	assert.Equal(t, "Acme AB", created.Name)
}

func TestUpdateCustomerHitsRecordURL(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/controller/api/v1/customer/company-1/C001", r.URL.Path)
		json.NewEncoder(w).Encode(domain.VismaCustomer{Number: "C001", Name: "Renamed"})
	}), 10)

	updated, err := c.UpdateCustomer(context.Background(), "C001", &domain.VismaCustomer{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestUpdateItemPricePreservesFields(t *testing.T) {
	var put *domain.VismaItem
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(domain.VismaItem{
				InventoryID: "CONSULTING",
				Description: "Consulting",
				BasePrice:   1000,
				BaseUnit:    "ST",
				VATCategory: "NORMAL",
				Type:        "Service",
				Status:      "Active",
			})
		case http.MethodPut:
			var incoming domain.VismaItem
			require.NoError(t, json.NewDecoder(r.Body).Decode(&incoming))
			put = &incoming
			json.NewEncoder(w).Encode(incoming)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}), 10)

	updated, err := c.UpdateItemPrice(context.Background(), "CONSULTING", 1200)
	require.NoError(t, err)
	require.NotNil(t, put)
	assert.Equal(t, float64(1200), put.BasePrice)
	assert.Equal(t, "Consulting", put.Description)
	assert.Equal(t, "ST", put.BaseUnit)
	assert.Equal(t, "Active", put.Status)
	assert.Equal(t, float64(1200), updated.BasePrice)
}

func TestUpdateItemPriceMissingItem(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusNotFound)
	}), 10)

	_, err := c.UpdateItemPrice(context.Background(), "GONE", 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCompanyInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/controller/api/v1/company/company-1", r.URL.Path)
		fmt.Fprint(w, `{"name":"Sweden Broker AB","number":"1"}`)
	}), 10)

	info, err := c.CompanyInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sweden Broker AB", info["name"])
}

func TestListErrorsPropagate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"server blew up"}`, http.StatusInternalServerError)
	}), 10)

	_, err := c.ListItems(context.Background())
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}
