package main

import (
	"context"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	rediscache "github.com/davidbz/forgeflow/internal/cache/redis"
	"github.com/davidbz/forgeflow/internal/config"
	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/http"
	"github.com/davidbz/forgeflow/internal/http/middleware"
	"github.com/davidbz/forgeflow/internal/observability"
	"github.com/davidbz/forgeflow/internal/provider/adk"
	"github.com/davidbz/forgeflow/internal/provider/registry"
	"github.com/davidbz/forgeflow/internal/provider/stub"
	"github.com/davidbz/forgeflow/internal/routing"
	"github.com/davidbz/forgeflow/internal/runner"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}
	if err := container.Provide(func(bus *observability.EventBus) domain.EventPublisher {
		return bus
	}); err != nil {
		log.Fatalf("Failed to provide event bus binding: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Workflow Runner (optional; ADK loses the execute capability without it)
	if err := container.Provide(func(cfg *config.Config) (domain.WorkflowRunner, error) {
		if cfg.Runner.URL == "" {
			return nil, nil
		}
		return runner.NewClient(cfg.Runner)
	}); err != nil {
		log.Fatalf("Failed to provide runner client: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Router
	if err := container.Provide(func(reg domain.ProviderRegistry) domain.Router {
		return routing.NewRouter(reg)
	}); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Plan Cache (optional)
	if err := container.Provide(func(cfg *config.Config) domain.PlanCache {
		if !cfg.Cache.Enabled {
			return nil
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		return rediscache.NewPlanCache(client)
	}); err != nil {
		log.Fatalf("Failed to provide plan cache: %v", err)
	}

	// Domain Services
	if err := container.Provide(func(
		cfg *config.Config,
		reg domain.ProviderRegistry,
		router domain.Router,
		cache domain.PlanCache,
		events domain.EventPublisher,
	) *domain.ComposeService {
		return domain.NewComposeService(reg, router, cache, events, domain.ComposeOptions{
			DefaultProvider: cfg.Compose.DefaultProvider,
			PlanCacheTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		})
	}); err != nil {
		log.Fatalf("Failed to provide compose service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(middlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerProviders populates the registry at startup. Registration is the
// only mutation phase; lookups afterwards are read-only.
func registerProviders(
	cfg *config.Config,
	reg domain.ProviderRegistry,
	workflowRunner domain.WorkflowRunner,
) error {
	ctx := context.Background()

	// ADK provider, registered only when configured.
	if cfg.ADK.APIKey != "" {
		caps := []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
		if workflowRunner != nil {
			caps = append(caps, domain.CapabilityExecute)
		}

		adkCfg := cfg.ADK
		err := reg.Register(ctx, domain.Descriptor{
			Name:         "adk",
			Capabilities: caps,
			Factory: func() (domain.Provider, error) {
				return adk.NewProvider(adkCfg, workflowRunner)
			},
		})
		if err != nil {
			return err
		}
	} else {
		log.Println("ADK provider not configured, skipping registration")
	}

	// Stub provider, always available for development.
	return reg.Register(ctx, domain.Descriptor{
		Name:         "stub",
		Capabilities: []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream},
		Factory: func() (domain.Provider, error) {
			return stub.NewProvider(), nil
		},
	})
}

func middlewareChain(corsConfig *config.CORSConfig) middleware.Middleware {
	return middleware.BuildMiddlewareChain(corsConfig)
}
