package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("storage: not found")
	ErrLinkCodeInvalid = errors.New("storage: link code invalid or expired")
	ErrCorruptSettings = errors.New("storage: corrupt settings")
)

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// LinkCodeTTL is how long an issued chat link code stays valid.
const LinkCodeTTL = 10 * time.Minute
