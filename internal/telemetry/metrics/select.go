package metrics

// Backend names the metrics implementation a tier's config selects.
type Backend string

const (
	BackendNoop       Backend = "none"
	BackendPrometheus Backend = "prometheus"
	BackendOTel       Backend = "otel"
)

// Select builds a Provider for the named backend. Unknown or empty backend
// names fall back to the noop provider rather than failing startup.
func Select(backend Backend, serviceName string) Provider {
	switch backend {
	case BackendPrometheus:
		return NewPrometheusProvider(PrometheusProviderOptions{})
	case BackendOTel:
		return NewOTelProvider(OTelProviderOptions{ServiceName: serviceName})
	default:
		return NewNoopProvider()
	}
}
