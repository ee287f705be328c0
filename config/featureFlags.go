package config

import (
	"os"
	"strings"
)

// BackendVariant names the order-management backend a deployment talks to.
// The lifecycle engine and the order client are constructed with an explicit
// variant instead of reading ambient state at call sites; unsupported
// variants are refused at construction time.
type BackendVariant string

const (
	// BackendVariantBooks is the books/ERP order service this repo implements.
	BackendVariantBooks BackendVariant = "books"
	// BackendVariantLegacyPos is the retired POS backend. Purchase orders are
	// not supported there.
	BackendVariantLegacyPos BackendVariant = "legacy_pos"
)

func (v BackendVariant) SupportsPurchaseOrders() bool {
	return v == BackendVariantBooks
}

// DefaultBackendVariant reads PURCHASING_BACKEND_VARIANT, defaulting to books.
func DefaultBackendVariant() BackendVariant {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PURCHASING_BACKEND_VARIANT")))
	if v == "" {
		return BackendVariantBooks
	}
	return BackendVariant(v)
}

// UseRedisPostingLock enables the best-effort redis lock in front of the
// authoritative MySQL advisory lock. Disabled when Redis is not deployed.
//
// Set via env:
// - REDIS_POSTING_LOCK=true
func UseRedisPostingLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REDIS_POSTING_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
