package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/iho/postings/internal/adapter/http"
	"github.com/iho/postings/internal/adapter/http/dto"
	"github.com/iho/postings/internal/adapter/http/handler"
	"github.com/iho/postings/internal/adapter/repository/memcache"
	"github.com/iho/postings/internal/adapter/repository/memory"
	"github.com/iho/postings/internal/infrastructure/metrics"
	"github.com/iho/postings/internal/usecase"
	"github.com/iho/postings/internal/usecase/mocks"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	cache := memcache.New(64)
	idGen := mocks.NewMockIDGenerator()
	log := zerolog.Nop()

	m := metrics.NewWith(prometheus.NewRegistry())
	postingUC := usecase.NewPostingUseCase(store, cache, idGen, m, usecase.PostingConfig{}, log)
	accountUC := usecase.NewAccountUseCase(store, idGen)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler: handler.NewAccountHandler(accountUC),
		PostingHandler: handler.NewPostingHandler(postingUC),
		HealthHandler:  handler.NewHealthHandler(store),
		Logger:         log,
		Metrics:        m,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server
}

func postJSON(t *testing.T, server *httptest.Server, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

func getJSON(t *testing.T, server *httptest.Server, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func createTestAccount(t *testing.T, server *httptest.Server, name string) dto.AccountResponse {
	t.Helper()

	resp := postJSON(t, server, "/api/v1/accounts", dto.CreateAccountRequest{
		Name:          name,
		CurrencyCode:  "USD",
		CurrencyScale: 2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return decode[dto.AccountResponse](t, resp)
}

func mustDecimal(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func transfer(from, to, amount string) dto.SubmitPostingRequest {
	return dto.SubmitPostingRequest{
		Entries: []dto.EntryRequest{
			{AccountID: from, Side: "debit", Amount: mustDecimal(amount), CurrencyCode: "USD", CurrencyScale: 2},
			{AccountID: to, Side: "credit", Amount: mustDecimal(amount), CurrencyCode: "USD", CurrencyScale: 2},
		},
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp := getJSON(t, server, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAccountLifecycle(t *testing.T) {
	server := newTestServer(t)

	created := createTestAccount(t, server, "Cash")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Cash", created.Name)
	assert.Equal(t, "USD", created.CurrencyCode)

	resp := getJSON(t, server, "/api/v1/accounts/"+created.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[dto.AccountResponse](t, resp)
	assert.Equal(t, created.ID, got.ID)

	resp = getJSON(t, server, "/api/v1/accounts/missing")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	createTestAccount(t, server, "Revenue")

	resp = getJSON(t, server, "/api/v1/accounts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]dto.AccountResponse](t, resp)
	assert.Len(t, list, 2)
}

func TestSubmitPosting(t *testing.T) {
	server := newTestServer(t)

	a := createTestAccount(t, server, "Cash")
	b := createTestAccount(t, server, "Revenue")

	resp := postJSON(t, server, "/api/v1/postings", transfer(a.ID, b.ID, "10.00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[dto.SubmitResponse](t, resp)
	assert.Equal(t, "accepted", first.Outcome)
	assert.NotEmpty(t, first.PostingID)
	assert.NotEmpty(t, first.ContentHash)

	// Identical resubmission is a success that changes nothing.
	resp = postJSON(t, server, "/api/v1/postings", transfer(a.ID, b.ID, "10.00"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[dto.SubmitResponse](t, resp)
	assert.Equal(t, "already_existed", second.Outcome)
	assert.Equal(t, first.PostingID, second.PostingID)
	assert.Equal(t, first.ContentHash, second.ContentHash)
}

func TestSubmitPostingRejections(t *testing.T) {
	server := newTestServer(t)

	a := createTestAccount(t, server, "Cash")
	b := createTestAccount(t, server, "Revenue")

	t.Run("unbalanced", func(t *testing.T) {
		req := dto.SubmitPostingRequest{Entries: []dto.EntryRequest{
			{AccountID: a.ID, Side: "debit", Amount: mustDecimal("10.00"), CurrencyCode: "USD", CurrencyScale: 2},
			{AccountID: b.ID, Side: "credit", Amount: mustDecimal("9.99"), CurrencyCode: "USD", CurrencyScale: 2},
		}}

		resp := postJSON(t, server, "/api/v1/postings", req)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown account", func(t *testing.T) {
		resp := postJSON(t, server, "/api/v1/postings", transfer(a.ID, "ghost", "10.00"))
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		// Balanced in EUR, but both accounts are held in USD.
		req := dto.SubmitPostingRequest{Entries: []dto.EntryRequest{
			{AccountID: a.ID, Side: "debit", Amount: mustDecimal("7.00"), CurrencyCode: "EUR", CurrencyScale: 2},
			{AccountID: b.ID, Side: "credit", Amount: mustDecimal("7.00"), CurrencyCode: "EUR", CurrencyScale: 2},
		}}

		resp := postJSON(t, server, "/api/v1/postings", req)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/api/v1/postings", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLookupPosting(t *testing.T) {
	server := newTestServer(t)

	a := createTestAccount(t, server, "Cash")
	b := createTestAccount(t, server, "Revenue")

	resp := postJSON(t, server, "/api/v1/postings", transfer(a.ID, b.ID, "42.50"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	submitted := decode[dto.SubmitResponse](t, resp)

	resp = getJSON(t, server, "/api/v1/postings/"+submitted.ContentHash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	posting := decode[dto.PostingResponse](t, resp)
	assert.Equal(t, submitted.PostingID, posting.ID)
	assert.Len(t, posting.Entries, 2)

	resp = getJSON(t, server, "/api/v1/postings/not-a-hash")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBalanceAndStatement(t *testing.T) {
	server := newTestServer(t)

	a := createTestAccount(t, server, "Cash")
	b := createTestAccount(t, server, "Revenue")

	for _, amount := range []string{"10.00", "2.50"} {
		resp := postJSON(t, server, "/api/v1/postings", transfer(a.ID, b.ID, amount))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := getJSON(t, server, fmt.Sprintf("/api/v1/accounts/%s/balance", b.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[dto.BalanceResponse](t, resp)
	assert.Equal(t, "12.5", balance.Balance)
	assert.Nil(t, balance.AsOf)

	resp = getJSON(t, server, fmt.Sprintf("/api/v1/accounts/%s/statement", a.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	statement := decode[dto.StatementResponse](t, resp)
	assert.Equal(t, "12.5", statement.TotalDebit)
	assert.Equal(t, "0", statement.TotalCredit)
	assert.Equal(t, "-12.5", statement.Balance)

	t.Run("as_of in the past", func(t *testing.T) {
		asOf := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

		resp := getJSON(t, server, fmt.Sprintf("/api/v1/accounts/%s/balance?as_of=%s", b.ID, asOf))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		past := decode[dto.BalanceResponse](t, resp)
		assert.Equal(t, "0", past.Balance)
		require.NotNil(t, past.AsOf)
	})

	t.Run("invalid as_of", func(t *testing.T) {
		resp := getJSON(t, server, fmt.Sprintf("/api/v1/accounts/%s/balance?as_of=yesterday", b.ID))
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown account", func(t *testing.T) {
		resp := getJSON(t, server, "/api/v1/accounts/ghost/balance")
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
