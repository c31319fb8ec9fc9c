package gmail

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

// maxPageSize is the largest page the Gmail API returns for messages.list.
const maxPageSize = 100

// Client is a read-only Gmail API mail source.
type Client struct {
	svc     *gmail.UsersService
	user    string
	metrics *instrumentation.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetrics records Google API operation metrics on m.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithUser sets the mailbox user ID. The default is "me".
func WithUser(user string) ClientOption {
	return func(c *Client) {
		if user != "" {
			c.user = user
		}
	}
}

// NewClient creates a Gmail client authenticated by the given token source.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...ClientOption) (*Client, error) {
	return NewClientWithOptions(ctx, []option.ClientOption{option.WithTokenSource(ts)}, opts...)
}

// NewClientWithOptions creates a Gmail client from raw API client options.
func NewClientWithOptions(ctx context.Context, apiOpts []option.ClientOption, opts ...ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	c := &Client{
		svc:  svc.Users,
		user: "me",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListMessageIDs returns the IDs of messages matching q, newest first as
// ordered by the API, capped at q.MaxResults.
func (c *Client) ListMessageIDs(ctx context.Context, q Query) ([]string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationList)
	defer span.End()
	start := time.Now()

	ids, err := c.listMessageIDs(ctx, q)
	c.record(ctx, instrumentation.OperationList, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return ids, nil
}

func (c *Client) listMessageIDs(ctx context.Context, q Query) ([]string, error) {
	pageSize := int64(maxPageSize)
	if q.MaxResults > 0 && q.MaxResults < maxPageSize {
		pageSize = int64(q.MaxResults)
	}

	var ids []string
	pageToken := ""
	for {
		req := c.svc.Messages.List(c.user).Q(q.String()).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
			if q.MaxResults > 0 && len(ids) >= q.MaxResults {
				return ids, nil
			}
		}
		if res.NextPageToken == "" {
			return ids, nil
		}
		pageToken = res.NextPageToken
	}
}

// GetMessage retrieves a full message and converts it to the payload model.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationGet,
		instrumentation.NewSpanAttributeBuilder().WithResource("email", id).Build()...)
	defer span.End()
	start := time.Now()

	msg, err := c.svc.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	c.record(ctx, instrumentation.OperationGet, err, time.Since(start))
	if err != nil {
		err = fmt.Errorf("failed to get message %s: %w", id, err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return FromAPIMessage(msg), nil
}

// EmailAddress returns the address of the account the client's token
// belongs to.
func (c *Client) EmailAddress(ctx context.Context) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, instrumentation.OperationProfile)
	defer span.End()
	start := time.Now()

	profile, err := c.svc.GetProfile(c.user).Context(ctx).Do()
	c.record(ctx, instrumentation.OperationProfile, err, time.Since(start))
	if err != nil {
		err = fmt.Errorf("failed to get profile: %w", err)
		instrumentation.SetSpanError(span, err)
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	return profile.EmailAddress, nil
}

func (c *Client) record(ctx context.Context, operation string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, d)
}
