package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/service/subscriptions"
	"github.com/doananhhung/livechat-sub002/internal/ssrf"
)

type mockSubsRepo struct {
	mock.Mock
}

func (m *mockSubsRepo) Insert(ctx context.Context, sub model.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockSubsRepo) Get(ctx context.Context, id, projectID string) (*model.Subscription, error) {
	args := m.Called(ctx, id, projectID)
	if v := args.Get(0); v != nil {
		return v.(*model.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubsRepo) ListByProject(ctx context.Context, projectID string) ([]model.Subscription, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]model.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubsRepo) ListActiveByTrigger(ctx context.Context, projectID, trigger string) ([]model.Subscription, error) {
	args := m.Called(ctx, projectID, trigger)
	if v := args.Get(0); v != nil {
		return v.([]model.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubsRepo) Delete(ctx context.Context, id, projectID string) (bool, error) {
	args := m.Called(ctx, id, projectID)
	return args.Bool(0), args.Error(1)
}

func publicValidator() *ssrf.Validator {
	v := ssrf.NewValidator(false)
	v.LookupIPAddr = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		// mimic the real resolver: IP literals resolve to themselves
		if ip := net.ParseIP(host); ip != nil {
			return []net.IPAddr{{IP: ip}}, nil
		}
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	}
	return v
}

func newContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("project_id", "proj-1")
	return c, rec
}

func TestCreateWebhook_ReturnsSecretOnce(t *testing.T) {
	repo := new(mockSubsRepo)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
	svc := subscriptions.New(repo, publicValidator())

	c, rec := newContext(t, http.MethodPost, "/v1/webhooks",
		`{"url":"https://hooks.example.com/receive","event_triggers":["message.created"]}`)
	require.NoError(t, createWebhookHandler(svc)(c))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp webhookResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Secret)
	assert.True(t, resp.IsActive)
	assert.Equal(t, []string{"message.created"}, resp.EventTriggers)
}

func TestCreateWebhook_PrivateURLRejectedWith422(t *testing.T) {
	repo := new(mockSubsRepo)
	svc := subscriptions.New(repo, publicValidator())

	c, rec := newContext(t, http.MethodPost, "/v1/webhooks",
		`{"url":"http://169.254.169.254/latest/meta-data","event_triggers":["message.created"]}`)
	require.NoError(t, createWebhookHandler(svc)(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCreateWebhook_BlankTriggersFiltered(t *testing.T) {
	repo := new(mockSubsRepo)
	svc := subscriptions.New(repo, publicValidator())

	// only whitespace triggers left after trimming: validation fails
	c, rec := newContext(t, http.MethodPost, "/v1/webhooks",
		`{"url":"https://hooks.example.com/receive","event_triggers":["  ",""]}`)
	require.NoError(t, createWebhookHandler(svc)(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListWebhooks_OmitsSecrets(t *testing.T) {
	repo := new(mockSubsRepo)
	repo.On("ListByProject", mock.Anything, "proj-1").Return([]model.Subscription{
		{ID: "sub-1", ProjectID: "proj-1", URL: "https://a.example.com", Secret: "s3cr3t", IsActive: true},
	}, nil).Once()
	svc := subscriptions.New(repo, publicValidator())

	c, rec := newContext(t, http.MethodGet, "/v1/webhooks", "")
	require.NoError(t, listWebhooksHandler(svc)(c))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cr3t")

	var resp struct {
		Count   int           `json:"count"`
		Results []webhookResp `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Secret)
}

func TestGetWebhook_UnknownIDIs404(t *testing.T) {
	repo := new(mockSubsRepo)
	repo.On("Get", mock.Anything, "missing", "proj-1").Return(nil, nil).Once()
	svc := subscriptions.New(repo, publicValidator())

	c, rec := newContext(t, http.MethodGet, "/v1/webhooks/missing", "")
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, getWebhookHandler(svc)(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteWebhook_ScopedToProject(t *testing.T) {
	repo := new(mockSubsRepo)
	repo.On("Delete", mock.Anything, "sub-1", "proj-1").Return(true, nil).Once()
	repo.On("Delete", mock.Anything, "sub-other", "proj-1").Return(false, nil).Once()
	svc := subscriptions.New(repo, publicValidator())

	c, rec := newContext(t, http.MethodDelete, "/v1/webhooks/sub-1", "")
	c.SetParamNames("id")
	c.SetParamValues("sub-1")
	require.NoError(t, deleteWebhookHandler(svc)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = newContext(t, http.MethodDelete, "/v1/webhooks/sub-other", "")
	c.SetParamNames("id")
	c.SetParamValues("sub-other")
	require.NoError(t, deleteWebhookHandler(svc)(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
