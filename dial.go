// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventrpc

import (
	"context"
	"fmt"
)

// Dial connects to a server using the default transport (ZAP).
func Dial(ctx context.Context, addr string, opts ...DialOption) (Client, error) {
	o := &dialOptions{
		transport: DefaultTransport,
		maxFrame:  DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, o.transport)
	}
	return t.dial(ctx, addr, o)
}

// Listen creates a server using the default transport (ZAP).
func Listen(addr string, opts ...ServerOption) (Server, error) {
	o := &serverOptions{
		transport: DefaultTransport,
		maxFrame:  DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	t, ok := lookupTransport(o.transport)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, o.transport)
	}
	return t.listen(addr, o)
}
