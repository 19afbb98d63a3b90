// Package auctionapi fetches authoritative auction snapshots from the
// auction backend over REST or GraphQL.
package auctionapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/machinebox/graphql"

	"github.com/alanyoungcy/livebid/internal/domain"
)

// Mode selects the backend protocol.
type Mode string

const (
	ModeREST    Mode = "rest"
	ModeGraphQL Mode = "graphql"
)

const auctionQuery = `
	query Auction($id: ID!) {
		auction(id: $id) {
			id
			title
			description
			basePrice
			minIncrement
			currentHighestBid
			currency
			startTime
			endTime
			status
			bids {
				id
				auctionId
				bidderId
				amount
				createdAt
			}
		}
	}
`

// Client implements domain.SnapshotFetcher.
type Client struct {
	baseURL    string
	mode       Mode
	token      string
	clock      clockwork.Clock
	httpClient *http.Client
	gql        *graphql.Client
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api".
	BaseURL string
	Mode    Mode
	// Token is sent as a bearer token when non-empty.
	Token   string
	Timeout time.Duration
	Clock   clockwork.Clock
}

// NewClient creates a snapshot client.
func NewClient(opts Options) *Client {
	if opts.Mode == "" {
		opts.Mode = ModeREST
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		baseURL: baseURL,
		mode:    opts.Mode,
		token:   strings.TrimSpace(opts.Token),
		clock:   opts.Clock,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		gql: graphql.NewClient(baseURL+"/graphql", graphql.WithHTTPClient(&http.Client{
			Timeout:   opts.Timeout,
			Transport: statusRecorder{base: http.DefaultTransport},
		})),
	}
}

// FetchSnapshot retrieves the current auction record. Failures are returned
// as *domain.FetchError.
func (c *Client) FetchSnapshot(ctx context.Context, auctionID string) (domain.AuctionSnapshot, error) {
	var (
		auction APIAuction
		err     error
	)
	if c.mode == ModeGraphQL {
		auction, err = c.fetchGraphQL(ctx, auctionID)
	} else {
		auction, err = c.fetchREST(ctx, auctionID)
	}
	if err != nil {
		return domain.AuctionSnapshot{}, err
	}
	if auction.ID == "" {
		auction.ID = auctionID
	}
	return auction.ToDomainSnapshot(c.clock.Now()), nil
}

func (c *Client) fetchREST(ctx context.Context, auctionID string) (APIAuction, error) {
	endpoint := fmt.Sprintf("%s/auctions/%s", c.baseURL, url.PathEscape(auctionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return APIAuction{}, domain.NewFetchError(domain.FetchUnknown, auctionID, "create request", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return APIAuction{}, domain.NewFetchError(domain.FetchNetwork, auctionID, "", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if status < 200 || status > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(status)
		}
		return APIAuction{}, domain.NewFetchError(kindForStatus(status), auctionID, msg, nil)
	}
	if decodeErr != nil {
		return APIAuction{}, domain.NewFetchError(domain.FetchUnknown, auctionID, "decode envelope", decodeErr)
	}
	if !env.Success {
		return APIAuction{}, domain.NewFetchError(kindForMessage(env.Message), auctionID, env.Message, nil)
	}

	var auction APIAuction
	if err := json.Unmarshal(env.Data, &auction); err != nil {
		return APIAuction{}, domain.NewFetchError(domain.FetchUnknown, auctionID, "decode auction", err)
	}
	return auction, nil
}

func (c *Client) fetchGraphQL(ctx context.Context, auctionID string) (APIAuction, error) {
	req := graphql.NewRequest(auctionQuery)
	req.Var("id", auctionID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var (
		status int
		resp   struct {
			Auction *APIAuction `json:"auction"`
		}
	)
	err := c.gql.Run(context.WithValue(ctx, statusKey{}, &status), req, &resp)

	switch {
	case status != 0 && (status < 200 || status > 299):
		return APIAuction{}, domain.NewFetchError(kindForStatus(status), auctionID, http.StatusText(status), nil)
	case err != nil && status == 0:
		return APIAuction{}, domain.NewFetchError(domain.FetchNetwork, auctionID, "", err)
	case err != nil:
		msg := strings.TrimPrefix(err.Error(), "graphql: ")
		return APIAuction{}, domain.NewFetchError(kindForMessage(msg), auctionID, msg, nil)
	case resp.Auction == nil:
		return APIAuction{}, domain.NewFetchError(domain.FetchNotFound, auctionID, "auction not found", nil)
	}
	return *resp.Auction, nil
}

type statusKey struct{}

// statusRecorder stores the response status in the *int carried by the
// request context under statusKey. The GraphQL client reports HTTP failures
// only as text.
type statusRecorder struct {
	base http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// do sends req and returns the status code and body.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func kindForStatus(status int) domain.FetchErrorKind {
	switch {
	case status == http.StatusNotFound:
		return domain.FetchNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.FetchUnauthorized
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return domain.FetchNetwork
	default:
		return domain.FetchUnknown
	}
}

func kindForMessage(msg string) domain.FetchErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "not found"):
		return domain.FetchNotFound
	case strings.Contains(m, "unauthorized"), strings.Contains(m, "unauthenticated"),
		strings.Contains(m, "forbidden"), strings.Contains(m, "not authenticated"):
		return domain.FetchUnauthorized
	default:
		return domain.FetchUnknown
	}
}
