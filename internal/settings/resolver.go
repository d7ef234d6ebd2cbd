// Package settings resolves the MultiSafepay credentials of a payment service
// provider record for the environment the process runs in.
package settings

import (
	"context"
	"fmt"

	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

const (
	// ProviderEntityType is the entity type of payment service provider records.
	ProviderEntityType = "paymentserviceprovider"

	APIKeyLiveProperty = "multisafepayapikeylive"
	APIKeyTestProperty = "multisafepayapikeytest"
)

// Store reads detail values of an item. Keys absent on the item are omitted
// from the returned map; found is false when no item with that id and entity
// type exists.
type Store interface {
	GetDetails(ctx context.Context, itemID uint64, entityType string, keys ...string) (values map[string]string, found bool, err error)
}

// Decrypter turns a value as stored into plaintext.
type Decrypter interface {
	Decrypt(ctx context.Context, value string) (string, error)
}

// PlaintextDecrypter is used when values are stored unencrypted.
type PlaintextDecrypter struct{}

// Decrypt returns value unchanged.
func (PlaintextDecrypter) Decrypt(_ context.Context, value string) (string, error) {
	return value, nil
}

// Resolver selects the live or test API key of a provider record.
type Resolver struct {
	store     Store
	decrypter Decrypter
	env       pspctx.Environment
}

// NewResolver creates a Resolver. A nil decrypter means values are plaintext.
func NewResolver(store Store, decrypter Decrypter, env pspctx.Environment) *Resolver {
	if store == nil {
		panic("settings store cannot be nil")
	}
	if decrypter == nil {
		decrypter = PlaintextDecrypter{}
	}
	return &Resolver{store: store, decrypter: decrypter, env: env}
}

// Environment returns the environment keys are selected for.
func (r *Resolver) Environment() pspctx.Environment {
	return r.env
}

// ResolveSettings returns a copy of base with the API key for the current
// environment filled in. A missing record yields base unchanged.
func (r *Resolver) ResolveSettings(ctx context.Context, base pspctx.ProviderSettings) (pspctx.ProviderSettings, error) {
	values, found, err := r.store.GetDetails(ctx, base.ID, ProviderEntityType, APIKeyLiveProperty, APIKeyTestProperty)
	if err != nil {
		return base, fmt.Errorf("settings: failed to load provider %d: %w", base.ID, err)
	}
	if !found {
		return base, nil
	}

	key := APIKeyLiveProperty
	if r.env.UsesTestCredentials() {
		key = APIKeyTestProperty
	}

	resolved := base
	if stored := values[key]; stored != "" {
		plain, err := r.decrypter.Decrypt(ctx, stored)
		if err != nil {
			return base, fmt.Errorf("settings: failed to decrypt %s of provider %d: %w", key, base.ID, err)
		}
		resolved.MultiSafepay.APIKey = plain
	} else {
		resolved.MultiSafepay.APIKey = ""
	}
	return resolved, nil
}
