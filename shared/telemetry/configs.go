package telemetry

// Predefined service configurations
var (
	// OrdersServiceConfig is the telemetry configuration for the orders service
	OrdersServiceConfig = Config{
		ServiceName:    "orders-service",
		ServiceVersion: "1.0.0",
	}

	// StockServiceConfig is the telemetry configuration for the stock service
	StockServiceConfig = Config{
		ServiceName:    "stock-service",
		ServiceVersion: "1.0.0",
	}

	// PaymentServiceConfig is the telemetry configuration for the payment service
	PaymentServiceConfig = Config{
		ServiceName:    "payment-service",
		ServiceVersion: "1.0.0",
	}
)

// WithOTLPEndpoint sets the OTLP endpoint for a config
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}

// WithVersion sets the service version for a config
func (c Config) WithVersion(version string) Config {
	c.ServiceVersion = version
	return c
}
