package context

// ProviderKind tags which payment service provider a settings record belongs to.
type ProviderKind string

const (
	ProviderMultiSafepay ProviderKind = "MultiSafepay"
)

// MultiSafepaySettings holds the fields only the MultiSafepay adapter reads.
type MultiSafepaySettings struct {
	// APIKey is the key for the current environment, already decrypted.
	APIKey string
}

// ProviderSettings is the configuration of one payment service provider record.
// Kind selects which of the provider-specific variants is meaningful.
type ProviderSettings struct {
	ID    uint64
	Title string
	Kind  ProviderKind

	LogAllRequests                       bool
	OrdersCanBeSetDirectlyToFinished     bool
	SkipPaymentWhenOrderAmountEqualsZero bool

	WebhookURL string
	SuccessURL string
	PendingURL string
	FailURL    string

	// Currency is the default ISO 4217 code used for orders.
	Currency string

	MultiSafepay MultiSafepaySettings
}

// PaymentMethodSettings is the configuration of a payment method (iDEAL, credit card, ...)
// together with the provider that handles it.
type PaymentMethodSettings struct {
	ID    uint64
	Title string
	// ExternalName is the gateway identifier the PSP knows this method by.
	ExternalName string
	Provider     ProviderSettings
}

// WithProvider returns a copy of the method settings using the given provider settings.
func (m PaymentMethodSettings) WithProvider(p ProviderSettings) PaymentMethodSettings {
	m.Provider = p
	return m
}
