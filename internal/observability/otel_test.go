package observability

import (
	"context"
	"testing"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/fanwire/go-fanwire-backend/internal/config"
)

func TestSetup_DisabledIsNoOp(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTELConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestServiceResource_CarriesIdentityAttributes(t *testing.T) {
	res, err := serviceResource(context.Background(), "fanwire-api", "1.2.3")
	if err != nil {
		t.Fatalf("serviceResource: %v", err)
	}

	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got[string(semconv.ServiceNameKey)] != "fanwire-api" {
		t.Errorf("service.name = %q, want fanwire-api", got[string(semconv.ServiceNameKey)])
	}
	if got[string(semconv.ServiceVersionKey)] != "1.2.3" {
		t.Errorf("service.version = %q, want 1.2.3", got[string(semconv.ServiceVersionKey)])
	}
	if got[string(semconv.ServiceInstanceIDKey)] == "" {
		t.Error("expected service.instance.id to be set")
	}
}

func TestClientOptions_InsecureAndTLS(t *testing.T) {
	insecure := clientOptions(config.OTELConfig{Endpoint: "localhost:4317", Insecure: true})
	secure := clientOptions(config.OTELConfig{Endpoint: "localhost:4317"})
	if len(insecure) != 2 || len(secure) != 2 {
		t.Fatalf("expected endpoint plus credentials option, got %d and %d", len(insecure), len(secure))
	}
}
