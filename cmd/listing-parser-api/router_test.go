package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/listing-parser/cmd/listing-parser-api/middleware"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/config"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

const vehicleAd = "רכב Toyotta Corolla שנת 2017, יד 1, 90000 קמ, מחיר 52000 ש\"ח, 050-1234567"

type staticSource struct {
	kb *knowledge.KnowledgeBase
}

func (s staticSource) Name() string { return "static-test" }

func (s staticSource) Load(context.Context) (*knowledge.KnowledgeBase, error) {
	return s.kb, nil
}

func testService(source knowledge.Source) *listing.Service {
	holder := knowledge.NewHolder(source)
	holder.Set(&knowledge.KnowledgeBase{
		Version:        "kb-1",
		MakeModelIndex: map[string][]string{"Toyota": {"Corolla"}},
	})
	return listing.NewService(magicparse.New(), listing.WithHolder(holder))
}

func newTestServer(t *testing.T, deps Deps) (*httptest.Server, *magicparse.Client) {
	t.Helper()
	if deps.Service == nil {
		deps.Service = testService(nil)
	}
	srv := httptest.NewServer(NewRouter(observability.NopLogger(), deps))
	t.Cleanup(srv.Close)
	return srv, magicparse.NewClient(magicparse.ClientConfig{BaseURL: srv.URL})
}

func apiError(t *testing.T, err error) *magicparse.APIError {
	t.Helper()
	var apiErr *magicparse.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	return apiErr
}

func TestRouter_Health(t *testing.T) {
	srv, client := newTestServer(t, Deps{
		Health: func(context.Context) magicparse.HealthResponse {
			return magicparse.HealthResponse{Status: "degraded", Database: "unhealthy"}
		},
	})

	h, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "unhealthy", h.Database)

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_Analyze(t *testing.T) {
	_, client := newTestServer(t, Deps{})
	ctx := context.Background()

	resp, err := client.Analyze(ctx, magicparse.AnalyzeRequest{Text: vehicleAd})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "Vehicles", resp.Result.Category)
	assert.Equal(t, "Toyota", resp.Result.Make)
	assert.Equal(t, "kb-1", resp.Result.KnowledgeVersion)
	require.NotNil(t, resp.Result.Price)
	assert.Equal(t, 52000.0, *resp.Result.Price)

	_, err = client.Analyze(ctx, magicparse.AnalyzeRequest{})
	apiErr := apiError(t, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request", apiErr.Code)
}

func TestRouter_AnalyzeBatch(t *testing.T) {
	_, client := newTestServer(t, Deps{MaxBatchSize: 3})
	ctx := context.Background()

	resp, err := client.AnalyzeBatch(ctx, magicparse.BatchRequest{Items: []magicparse.AnalyzeRequest{
		{Text: vehicleAd},
		{},
		{Text: "אייפון 13 256gb כמו חדש 2500 ש\"ח"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "Vehicles", resp.Results[0].Result.Category)
	assert.Nil(t, resp.Results[1])
	assert.Equal(t, "Electronics", resp.Results[2].Result.Category)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Index)

	_, err = client.AnalyzeBatch(ctx, magicparse.BatchRequest{})
	assert.Equal(t, http.StatusBadRequest, apiError(t, err).StatusCode)

	items := make([]magicparse.AnalyzeRequest, 4)
	_, err = client.AnalyzeBatch(ctx, magicparse.BatchRequest{Items: items})
	apiErr := apiError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
	assert.Equal(t, "batch_too_large", apiErr.Code)
}

func TestRouter_BodyLimits(t *testing.T) {
	srv, _ := newTestServer(t, Deps{MaxBodyBytes: 64})

	body := `{"text":"` + strings.Repeat("a", 200) + `"}`
	resp, err := http.Post(srv.URL+"/api/v1/listings/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/listings/analyze", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_Auth(t *testing.T) {
	srv, anonymous := newTestServer(t, Deps{
		Auth: middleware.AuthConfig{Enabled: true, APIKeys: []string{"client-key"}, AdminKeys: []string{"admin-key"}},
	})
	ctx := context.Background()
	client := magicparse.NewClient(magicparse.ClientConfig{BaseURL: srv.URL, APIKey: "client-key"})
	admin := magicparse.NewClient(magicparse.ClientConfig{BaseURL: srv.URL, APIKey: "admin-key"})

	_, err := anonymous.Analyze(ctx, magicparse.AnalyzeRequest{Text: vehicleAd})
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).StatusCode)

	wrong := magicparse.NewClient(magicparse.ClientConfig{BaseURL: srv.URL, APIKey: "nope"})
	_, err = wrong.Knowledge(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiError(t, err).StatusCode)

	// Health stays open.
	_, err = anonymous.Health(ctx)
	require.NoError(t, err)

	_, err = client.Analyze(ctx, magicparse.AnalyzeRequest{Text: vehicleAd})
	require.NoError(t, err)
	info, err := client.Knowledge(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kb-1", info.Version)

	_, err = client.ReloadKnowledge(ctx)
	assert.Equal(t, http.StatusForbidden, apiError(t, err).StatusCode)

	// The holder has no source to reload from.
	_, err = admin.ReloadKnowledge(ctx)
	apiErr := apiError(t, err)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "no_knowledge_source", apiErr.Code)
}

func TestRouter_ReloadKnowledge(t *testing.T) {
	svc := testService(staticSource{kb: &knowledge.KnowledgeBase{
		Version:        "kb-2",
		MakeModelIndex: map[string][]string{"Toyota": {"Corolla", "Yaris"}, "Mazda": {"3"}},
	}})
	_, client := newTestServer(t, Deps{Service: svc})
	ctx := context.Background()

	info, err := client.ReloadKnowledge(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kb-2", info.Version)
	assert.Equal(t, "static-test", info.Source)
	assert.Equal(t, 2, info.Makes)
	assert.Equal(t, 3, info.Models)

	resp, err := client.Analyze(ctx, magicparse.AnalyzeRequest{Text: vehicleAd})
	require.NoError(t, err)
	assert.Equal(t, "kb-2", resp.Result.KnowledgeVersion)
}

func TestRouter_AnalysesDisabled(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	resp, err := http.Get(srv.URL + "/api/v1/analyses/recent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestRouter_Runtime(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Database.SQLite.Path = ":memory:"
	require.NoError(t, cfg.Validate())

	rt, err := listing.Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	srv, client := newTestServer(t, DepsFromRuntime(rt))

	analyzed, err := client.Analyze(ctx, magicparse.AnalyzeRequest{Text: vehicleAd})
	require.NoError(t, err)

	h, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "healthy", h.Database)

	resp, err := http.Get(srv.URL + "/api/v1/analyses/recent?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Analyses []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
		} `json:"analyses"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	require.Len(t, body.Analyses, 1)
	assert.Equal(t, analyzed.ID, body.Analyses[0].ID)
	assert.Equal(t, "Vehicles", body.Analyses[0].Category)

	bad, err := http.Get(srv.URL + "/api/v1/analyses/recent?limit=0")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	cats, err := http.Get(srv.URL + "/api/v1/analyses/categories?window=1h")
	require.NoError(t, err)
	defer cats.Body.Close()
	var counts struct {
		Window     string `json:"window"`
		Categories []struct {
			Category string `json:"category"`
			Count    int    `json:"count"`
		} `json:"categories"`
	}
	require.NoError(t, decodeJSON(cats, &counts))
	assert.Equal(t, "1h0m0s", counts.Window)
	require.Len(t, counts.Categories, 1)
	assert.Equal(t, 1, counts.Categories[0].Count)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Deps{CORSOrigins: []string{"https://market.example"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/listings/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://market.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://market.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func decodeJSON(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
