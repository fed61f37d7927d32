package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"

	"github.com/valkey-io/valkey-go"
)

// ValkeyBackend stores session values in Valkey under a key prefix, so a
// session can outlive the process and be shared by several CLI invocations.
type ValkeyBackend struct {
	client valkey.Client
	prefix string
	owned  bool
}

// ValkeyOption configures a ValkeyBackend.
type ValkeyOption func(*ValkeyBackend)

// WithPrefix sets the key prefix. Default is "storefront:session:".
func WithPrefix(prefix string) ValkeyOption {
	return func(b *ValkeyBackend) {
		b.prefix = prefix
	}
}

// WithOwnedClient makes Close close the client.
func WithOwnedClient() ValkeyOption {
	return func(b *ValkeyBackend) {
		b.owned = true
	}
}

// NewValkeyBackend creates a backend using client.
func NewValkeyBackend(client valkey.Client, opts ...ValkeyOption) *ValkeyBackend {
	b := &ValkeyBackend{
		client: client,
		prefix: "storefront:session:",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DialValkey builds a client from a valkey:// or rediss:// URI.
// Credentials in the URI are used for AUTH; rediss enables TLS.
func DialValkey(uri string) (valkey.Client, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("session: parse valkey url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("session: valkey url %q has no host", uri)
	}

	username := ""
	password := ""
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}

	options := valkey.ClientOption{
		InitAddress: []string{u.Host},
		Username:    username,
		Password:    password,
	}
	if u.Scheme == "rediss" || u.Scheme == "valkeys" {
		options.TLSConfig = &tls.Config{ServerName: u.Hostname()}
	}
	return valkey.NewClient(options)
}

func (b *ValkeyBackend) key(k string) string {
	return b.prefix + k
}

// Load fetches all keys with a single MGET. Keys with no value are absent
// from the result.
func (b *ValkeyBackend) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = b.key(k)
	}

	msgs, err := b.client.Do(ctx, b.client.B().Mget().Key(prefixed...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("session: valkey mget: %w", err)
	}
	for i := range msgs {
		if i >= len(keys) || msgs[i].IsNil() {
			continue
		}
		v, err := msgs[i].ToString()
		if err != nil {
			return nil, fmt.Errorf("session: valkey mget %s: %w", keys[i], err)
		}
		out[keys[i]] = v
	}
	return out, nil
}

// Set writes every key with a single MSET, so a session is never half stored.
func (b *ValkeyBackend) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	cmd := b.client.B().Mset().KeyValue()
	for k, v := range values {
		cmd = cmd.KeyValue(b.key(k), v)
	}
	if err := b.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("session: valkey mset: %w", err)
	}
	return nil
}

// Delete removes all keys with a single DEL.
func (b *ValkeyBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = b.key(k)
	}
	if err := b.client.Do(ctx, b.client.B().Del().Key(prefixed...).Build()).Error(); err != nil {
		return fmt.Errorf("session: valkey del: %w", err)
	}
	return nil
}

// Close closes the client when the backend owns it; otherwise the client is
// left to the caller.
func (b *ValkeyBackend) Close() error {
	if b.owned {
		b.client.Close()
	}
	return nil
}
