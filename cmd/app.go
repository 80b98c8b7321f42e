package cmd

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/ai/gemini"
	"github.com/spigell/jobboard/internal/dispatch"
	"github.com/spigell/jobboard/internal/evaluation"
	"github.com/spigell/jobboard/internal/logger"
	"github.com/spigell/jobboard/internal/secrets"
	"github.com/spigell/jobboard/internal/store"
	"github.com/spigell/jobboard/internal/store/memory"
	"github.com/spigell/jobboard/internal/store/sqlite"
)

// components holds everything the commands share.
type components struct {
	config       *Config
	logger       *zap.Logger
	store        store.Store
	client       *gemini.Client
	evaluator    *gemini.Evaluator
	orchestrator *evaluation.Orchestrator
}

func setup(ctx context.Context) (*components, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, errors.Wrap(err, "creating a logger")
	}

	config, err := getConfig()
	if err != nil {
		return nil, errors.Wrap(err, "getting a config")
	}

	st, err := openStore(ctx, config, log)
	if err != nil {
		return nil, err
	}

	client, err := newGeminiClient(ctx, config, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	evaluator := newEvaluator(client, config, log)

	orchestrator, err := evaluation.New(st, evaluator, evaluation.Config{
		ScoreThreshold:     config.AI.ScoreThreshold,
		Timeout:            config.AI.Timeout,
		FailOpenWithoutKey: config.AI.FailOpenWithoutKey,
	}, log.Named("evaluation"))
	if err != nil {
		st.Close()
		return nil, errors.Wrap(err, "creating the orchestrator")
	}

	return &components{
		config:       config,
		logger:       log,
		store:        st,
		client:       client,
		evaluator:    evaluator,
		orchestrator: orchestrator,
	}, nil
}

func (c *components) close() {
	if err := c.store.Close(); err != nil {
		c.logger.Warn("closing the store", zap.Error(err))
	}
	c.logger.Sync()
}

func openStore(ctx context.Context, config *Config, log *zap.Logger) (store.Store, error) {
	if config.Database.Driver == "memory" {
		log.Warn("using the in-memory store, data is lost on exit")
		return memory.New(), nil
	}

	st, err := sqlite.Open(ctx, config.Database.Path, log.Named("sqlite"))
	if err != nil {
		return nil, errors.Wrap(err, "opening the database")
	}
	return st, nil
}

// newGeminiClient returns nil without error when AI is disabled or no key is set.
func newGeminiClient(ctx context.Context, config *Config, log *zap.Logger) (*gemini.Client, error) {
	if !config.AI.Enabled {
		log.Info("ai evaluation is disabled")
		return nil, nil
	}
	if provider := strings.ToLower(config.AI.Provider); provider != "" && provider != "gemini" {
		return nil, errors.Newf("unsupported ai provider %q", config.AI.Provider)
	}

	key, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.Gemini.APIKey,
		File:  config.AI.Gemini.APIKeyFile,
	})
	if errors.Is(err, secrets.ErrNotConfigured) {
		log.Warn("GEMINI_API_KEY is not set, applications will not be evaluated",
			zap.Bool("fail_open_without_key", config.AI.FailOpenWithoutKey),
		)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading the gemini api key")
	}

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:            key,
		Model:             config.AI.Gemini.Model,
		Temperature:       config.AI.Gemini.Temperature,
		MaxRetries:        config.AI.Gemini.MaxRetries,
		RequestsPerMinute: config.AI.Gemini.RequestsPerMinute,
	}, logger.WithCommonFields(log.Named("gemini"), "gemini", config.AI.Gemini.Model))
	if err != nil {
		return nil, errors.Wrap(err, "creating the gemini client")
	}
	return client, nil
}

func newEvaluator(client *gemini.Client, config *Config, log *zap.Logger) *gemini.Evaluator {
	log = logger.WithCommonFields(log.Named("gemini"), "gemini", config.AI.Gemini.Model)
	if client == nil {
		return gemini.NewEvaluator(nil, log, config.AI.Gemini.MaxLogLength)
	}
	return gemini.NewEvaluator(client, log, config.AI.Gemini.MaxLogLength)
}

func newDispatcher(config *Config, handler dispatch.Handler, log *zap.Logger) (dispatch.Dispatcher, error) {
	log = log.Named("dispatch")
	if config.Dispatch.Driver == dispatch.DriverAMQP {
		q, err := dispatch.DialQueue(dispatch.AMQPConfig{
			URL:     config.Dispatch.AMQPURL,
			Queue:   config.Dispatch.Queue,
			Workers: config.Dispatch.Workers,
		}, handler, log)
		if err != nil {
			return nil, errors.Wrap(err, "connecting the evaluation queue")
		}
		return q, nil
	}
	return dispatch.NewPool(config.Dispatch.Workers, handler, log), nil
}
