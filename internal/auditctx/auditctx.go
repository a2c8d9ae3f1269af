// Package auditctx carries the caller's network details from the HTTP layer down to the
// activity log without threading them through every service signature.
package auditctx

import "context"

// Client describes where a request came from.
type Client struct {
	IPAddress string
	UserAgent string
}

type clientContextKey struct{}

// WithClient returns a context carrying client.
func WithClient(ctx context.Context, client Client) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientContextKey{}, client)
}

// FromContext extracts the client stored by WithClient.
func FromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	client, ok := ctx.Value(clientContextKey{}).(Client)
	return client, ok
}
