package nats

import (
	"context"
	"encoding/json"
	"strings"

	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/contextgg/go-projections/es"
)

// Client nats
type Client struct {
	namespace string
	options   nats.Options
}

var _ es.EventBus = (*Client)(nil)

// NewClient returns the basic client to access to nats
func NewClient(urls string, useTLS bool, namespace string) (*Client, error) {
	opts := nats.GetDefaultOptions()
	opts.Secure = useTLS
	opts.Servers = strings.Split(urls, ",")

	for i, s := range opts.Servers {
		opts.Servers[i] = strings.Trim(s, " ")
	}

	return &Client{
		namespace,
		opts,
	}, nil
}

// Subject is where an event gets published
func (c *Client) Subject(event *es.Event) string {
	if c.namespace == "" {
		return event.Type
	}
	return c.namespace + "." + event.Type
}

// PublishEvent via nats
func (c *Client) PublishEvent(ctx context.Context, event *es.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	nc, err := c.options.Connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	blob, err := json.Marshal(event)
	if err != nil {
		return err
	}

	subj := c.Subject(event)
	if err := nc.Publish(subj, blob); err != nil {
		return err
	}
	if err := nc.Flush(); err != nil {
		return err
	}

	if err := nc.LastError(); err != nil {
		log.
			Error().
			Err(err).
			Str("subject", subj).
			Msg("Could not publish event")
		return err
	}
	return nil
}

// Close has nothing to release, every publish opens its own connection
func (c *Client) Close() {
}
