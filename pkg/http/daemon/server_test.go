package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fluxcd/rollout/pkg/api"
	"github.com/fluxcd/rollout/pkg/event"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/publisher"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/status"
)

type mockServer struct {
	PingFunc         func(ctx context.Context) error
	VersionFunc      func(ctx context.Context) (string, error)
	StatusFunc       func(ctx context.Context) (status.Summary, error)
	ExportFunc       func(ctx context.Context) ([]byte, error)
	HistoryFunc      func(ctx context.Context) ([]resource.DesiredState, error)
	EventsFunc       func(ctx context.Context) ([]event.Event, error)
	PublishImageFunc func(ctx context.Context, ref image.Ref) (resource.Revision, error)
	PublishSpecFunc  func(ctx context.Context, spec resource.Spec) (resource.Revision, error)
}

func (m *mockServer) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockServer) Version(ctx context.Context) (string, error) {
	return m.VersionFunc(ctx)
}
func (m *mockServer) Status(ctx context.Context) (status.Summary, error) {
	return m.StatusFunc(ctx)
}
func (m *mockServer) Export(ctx context.Context) ([]byte, error) {
	return m.ExportFunc(ctx)
}
func (m *mockServer) History(ctx context.Context) ([]resource.DesiredState, error) {
	return m.HistoryFunc(ctx)
}
func (m *mockServer) Events(ctx context.Context) ([]event.Event, error) {
	return m.EventsFunc(ctx)
}
func (m *mockServer) PublishImage(ctx context.Context, ref image.Ref) (resource.Revision, error) {
	return m.PublishImageFunc(ctx, ref)
}
func (m *mockServer) PublishSpec(ctx context.Context, spec resource.Spec) (resource.Revision, error) {
	return m.PublishSpecFunc(ctx, spec)
}

func serve(t *testing.T, s api.Server) *httptest.Server {
	ts := httptest.NewServer(NewHandler(s, NewRouter()))
	t.Cleanup(ts.Close)
	return ts
}

func TestPing(t *testing.T) {
	ts := serve(t, &mockServer{
		PingFunc: func(context.Context) error { return nil },
	})
	resp, err := http.Get(ts.URL + "/v1/ping")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	summary := status.Summary{
		Status:    status.StatusSynced,
		Revision:  resource.Revision{Counter: 3},
		UpdatedAt: time.Date(2020, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	ts := serve(t, &mockServer{
		StatusFunc: func(context.Context) (status.Summary, error) { return summary, nil },
	})

	resp, err := http.Get(ts.URL + "/v1/status")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got status.Summary
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, summary, got)
}

func TestPublishImage(t *testing.T) {
	var published image.Ref
	ts := serve(t, &mockServer{
		PublishImageFunc: func(_ context.Context, ref image.Ref) (resource.Revision, error) {
			published = ref
			return resource.Revision{Counter: 7}, nil
		},
	})

	body, _ := json.Marshal(api.PublishRequest{Image: "quay.io/example/app:v1.2.3"})
	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", bytes.NewReader(body))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.PublishResponse
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, uint64(7), got.Revision.Counter)
	assert.Equal(t, "quay.io/example/app:v1.2.3", published.String())
}

func TestPublishRejectedTagIsClientError(t *testing.T) {
	ts := serve(t, &mockServer{
		PublishImageFunc: func(context.Context, image.Ref) (resource.Revision, error) {
			return resource.Revision{}, errors.Wrap(publisher.ErrTagRejected, `tag "latest"`)
		},
	})

	body, _ := json.Marshal(api.PublishRequest{Image: "example/app:latest"})
	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", bytes.NewReader(body))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPublishMalformedImageIsClientError(t *testing.T) {
	ts := serve(t, &mockServer{})

	body, _ := json.Marshal(api.PublishRequest{Image: ":::not-an-image"})
	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", bytes.NewReader(body))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPublishEmptyRequestIsServerRejected(t *testing.T) {
	ts := serve(t, &mockServer{})

	resp, err := http.Post(ts.URL+"/v1/publish", "application/json", bytes.NewReader([]byte(`{}`)))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	ts := serve(t, &mockServer{})
	resp, err := http.Get(ts.URL + "/v1/nonsense")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
