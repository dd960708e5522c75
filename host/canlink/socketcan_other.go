//go:build !linux

package canlink

import (
	"context"

	"github.com/pkg/errors"
)

// DialSocketCAN is only available on Linux.
func DialSocketCAN(ctx context.Context, iface string) (Link, error) {
	return nil, errors.New("canlink: socketcan requires linux")
}
