package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fluxcd/rollout/pkg/api"
	fluxerr "github.com/fluxcd/rollout/pkg/errors"
	"github.com/fluxcd/rollout/pkg/event"
	transport "github.com/fluxcd/rollout/pkg/http"
	"github.com/fluxcd/rollout/pkg/image"
	"github.com/fluxcd/rollout/pkg/resource"
	"github.com/fluxcd/rollout/pkg/status"
)

// Client talks to a daemon's HTTP API. It implements api.Server so
// callers can treat a remote daemon the same as an in-process one.
type Client struct {
	client   *http.Client
	router   *mux.Router
	endpoint string
}

var _ api.Server = &Client{}

func New(c *http.Client, router *mux.Router, endpoint string) *Client {
	return &Client{
		client:   c,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, nil, transport.Ping)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.get(ctx, &v, transport.Version)
	return v, err
}

func (c *Client) Status(ctx context.Context) (status.Summary, error) {
	var res status.Summary
	err := c.get(ctx, &res, transport.Status)
	return res, err
}

// Export returns the daemon's desired-state history as YAML, verbatim.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	u, err := transport.MakeURL(c.endpoint, c.router, transport.Export)
	if err != nil {
		return nil, errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)

	resp, err := c.executeRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response from server")
	}
	return body, nil
}

func (c *Client) History(ctx context.Context) ([]resource.DesiredState, error) {
	var res []resource.DesiredState
	err := c.get(ctx, &res, transport.History)
	return res, err
}

func (c *Client) Events(ctx context.Context) ([]event.Event, error) {
	var res []event.Event
	err := c.get(ctx, &res, transport.Events)
	return res, err
}

func (c *Client) PublishImage(ctx context.Context, ref image.Ref) (resource.Revision, error) {
	var res api.PublishResponse
	err := c.postWithResp(ctx, &res, transport.Publish, api.PublishRequest{Image: ref.String()})
	return res.Revision, err
}

func (c *Client) PublishSpec(ctx context.Context, spec resource.Spec) (resource.Revision, error) {
	var res api.PublishResponse
	err := c.postWithResp(ctx, &res, transport.Publish, api.PublishRequest{Spec: &spec})
	return res.Revision, err
}

// --- Request helpers

// postWithResp handles body encoding, and decodes the response into
// dest if the response is non-empty.
func (c *Client) postWithResp(ctx context.Context, dest interface{}, route string, body interface{}) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding request body")
	}

	req, err := http.NewRequest("POST", u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return errors.Wrap(err, "executing HTTP request")
	}
	defer resp.Body.Close()

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	if len(respBytes) <= 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, &dest); err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	return nil
}

// get executes a get request against the daemon. It unmarshals the
// response into dest, if not nil.
func (c *Client) get(ctx context.Context, dest interface{}, route string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.executeRequest(req)
	if err != nil {
		return errors.Wrap(err, "executing HTTP request")
	}
	defer resp.Body.Close()

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.Wrap(err, "decoding response from server")
		}
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	default:
		body, err := ioutil.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return resp, errors.Wrap(err, "reading response body of error")
		}
		// Use the content type to discriminate between fluxerr.Error
		// and any old error.
		if strings.HasPrefix(resp.Header.Get(http.CanonicalHeaderKey("Content-Type")), "application/json") {
			var niceError fluxerr.Error
			if err := json.Unmarshal(body, &niceError); err != nil {
				return resp, errors.Wrap(err, "decoding response body of error")
			}
			// just in case it's JSON but not one of our own errors
			if niceError.Err != nil {
				return resp, &niceError
			}
		}
		return resp, errors.New(resp.Status + " " + string(body))
	}
}
