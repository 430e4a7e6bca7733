package vectorstore

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Backend identifiers accepted by VECTOR_BACKEND.
const (
	BackendREST   = "rest"
	BackendGRPC   = "grpc"
	BackendMemory = "memory"
)

// DefaultCollection is the collection name used when QDRANT_COLLECTION
// is unset.
const DefaultCollection = "documents"

// BackendFromEnv resolves the configured vector backend, defaulting to
// the REST client.
func BackendFromEnv() string {
	return strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", BackendREST))
}

// NewFromEnv builds the configured vector store backend.
//
// Environment variables:
//
//	VECTOR_BACKEND               rest (default), grpc, or memory
//	QDRANT_URL                   REST endpoint (default http://localhost:6333)
//	QDRANT_HOST / QDRANT_PORT    gRPC endpoint (default localhost:6334)
//	QDRANT_COLLECTION            collection name (default documents)
//	QDRANT_API_KEY               optional API key
//	QDRANT_USE_TLS               enable TLS for gRPC
//	QDRANT_RECREATE_ON_MISMATCH  recreate the collection on dimension mismatch
func NewFromEnv(log *slog.Logger) (Store, error) {
	collection := getEnvOrDefault("QDRANT_COLLECTION", DefaultCollection)
	force := getEnvBool("QDRANT_RECREATE_ON_MISMATCH")

	backend := BackendFromEnv()
	switch backend {
	case BackendREST:
		return NewRESTStore(RESTConfig{
			BaseURL:       getEnvOrDefault("QDRANT_URL", "http://localhost:6333"),
			Collection:    collection,
			APIKey:        os.Getenv("QDRANT_API_KEY"),
			ForceRecreate: force,
			Logger:        log,
		}), nil
	case BackendGRPC:
		return NewGRPCStore(GRPCConfig{
			Host:          os.Getenv("QDRANT_HOST"),
			Port:          getEnvInt("QDRANT_PORT", 0),
			Collection:    collection,
			APIKey:        os.Getenv("QDRANT_API_KEY"),
			UseTLS:        getEnvBool("QDRANT_USE_TLS"),
			ForceRecreate: force,
			Logger:        log,
		})
	case BackendMemory:
		return NewMemoryStore(force, log), nil
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q", backend)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
