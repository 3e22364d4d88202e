package main

import (
	"context"
	"fmt"
	"log"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/internal/llm"
	"github.com/dyzsasd/tomo/internal/nlu"
	"github.com/dyzsasd/tomo/internal/policy"
	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/internal/processor"
	"github.com/dyzsasd/tomo/pkg/assistant"
	"github.com/dyzsasd/tomo/pkg/channel"
	"github.com/dyzsasd/tomo/pkg/config"
	"github.com/dyzsasd/tomo/pkg/session"
)

// runtime bundles everything a running assistant needs, plus the
// teardown for its store and janitor.
type runtime struct {
	cfg       *config.Config
	def       *assistant.Definition
	manager   *session.Manager
	processor *processor.Processor
	janitor   *session.Janitor
	store     session.Store
}

// buildRuntime loads configuration and assistant definition and wires
// the full processing pipeline against the given output channel.
func buildRuntime(out channel.OutputChannel) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	def, err := assistant.Load(cfg.AssistantPath)
	if err != nil {
		return nil, err
	}

	registry := action.NewRegistry()
	if err := registerActions(registry); err != nil {
		return nil, err
	}
	if err := def.ValidateActions(registry.Exists); err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	manager := session.NewManager(store, slotDecls(def), def.Greeting)

	extractor, predictor, err := buildBackends(cfg, def)
	if err != nil {
		store.Close()
		return nil, err
	}

	dispatcher, err := policy.Build(def, registry, predictor)
	if err != nil {
		store.Close()
		return nil, err
	}

	proc := processor.New(manager, extractor, dispatcher, action.NewExecutor(registry), out).
		WithMaxPredictions(cfg.Runtime.MaxPredictions)

	var janitor *session.Janitor
	if cfg.Store.SessionTTL > 0 {
		janitor = session.NewJanitor(store, cfg.Store.JanitorSchedule, cfg.Store.SessionTTL.Std())
	}

	return &runtime{
		cfg:       cfg,
		def:       def,
		manager:   manager,
		processor: proc,
		janitor:   janitor,
		store:     store,
	}, nil
}

func (rt *runtime) close() {
	if rt.janitor != nil {
		rt.janitor.Stop()
	}
	if err := rt.store.Close(); err != nil {
		log.Printf("[RUNTIME] store close: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(configFile); err != nil {
		return nil, err
	}
	if assistantFile != "" {
		cfg.AssistantPath = assistantFile
	}
	return cfg, nil
}

func registerActions(r *action.Registry) error {
	if err := action.RegisterBuiltins(r); err != nil {
		return err
	}
	if err := action.RegisterWeather(r); err != nil {
		return err
	}
	return action.RegisterFlightExchange(r)
}

func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return session.NewRedisStore(session.RedisConfig{
			Addr:       cfg.Store.Redis.Addr,
			Password:   cfg.Store.Redis.Password,
			DB:         cfg.Store.Redis.DB,
			Prefix:     cfg.Store.Redis.Prefix,
			SessionTTL: cfg.Store.SessionTTL.Std(),
			PoolSize:   cfg.Store.Redis.PoolSize,
		})
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildBackends creates the extraction and prediction collaborators,
// sharing rate limit and tracing decoration. The "static" provider
// yields inert collaborators so a definition can be exercised without
// backend credentials.
func buildBackends(cfg *config.Config, def *assistant.Definition) (nlu.Extractor, predict.Predictor, error) {
	var extractor nlu.Extractor
	if def.NLU.Provider == "static" {
		extractor = nlu.Noop()
	} else {
		gen, err := llm.New(def.NLU)
		if err != nil {
			return nil, nil, fmt.Errorf("nlu backend: %w", err)
		}
		extractor = nlu.NewLLMExtractor(decorate(cfg, gen), def)
	}

	var predictor predict.Predictor
	if def.Predictor.Provider == "static" {
		predictor = predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
			return predict.Decision{Type: predict.Wait}, nil
		})
	} else {
		gen, err := llm.New(def.Predictor)
		if err != nil {
			return nil, nil, fmt.Errorf("predictor backend: %w", err)
		}
		predictor = predict.NewLLMPredictor(decorate(cfg, gen))
	}

	return extractor, predictor, nil
}

func decorate(cfg *config.Config, gen llm.Generator) llm.Generator {
	if cfg.Runtime.LLMRateLimit > 0 {
		gen = llm.NewRateLimited(gen, cfg.Runtime.LLMRateLimit, cfg.Runtime.LLMBurst)
	}
	return llm.NewTraced(gen)
}

func slotDecls(def *assistant.Definition) []session.Slot {
	decls := make([]session.Slot, len(def.Slots))
	for i, s := range def.Slots {
		decls[i] = session.Slot{
			Name:         s.Name,
			Description:  s.Description,
			Extractable:  s.Extractable,
			InitialValue: s.InitialValue,
		}
	}
	return decls
}

// storePing adapts the session store to a health check.
func storePing(store session.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.List(ctx)
		return err
	}
}
