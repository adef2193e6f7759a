// Package source holds what the data source adapters share.
package source

import "errors"

// ErrNotConnected is returned by a data source used before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("data source not connected")
