package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/payee-cli/internal/classify"
	"github.com/sells-group/payee-cli/internal/dedupe"
	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/match"
	"github.com/sells-group/payee-cli/internal/store"
	"github.com/sells-group/payee-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "payee.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newEngine() (*dedupe.Engine, error) {
	return dedupe.New(
		dedupe.WithThreshold(cfg.Similarity.DedupeThresh),
		dedupe.WithFuzzy(!cfg.Similarity.DisableFuzzy),
		dedupe.WithWeights(cfg.Similarity.Weights),
	)
}

func newMatcher() (*match.Matcher, error) {
	return match.New(cfg.Similarity.MatchThresh, cfg.Similarity.Weights)
}

func newClassifier() *classify.Classifier {
	return classify.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Classify())
}

func inputOptions() fetcher.Options {
	return fetcher.Options{
		PayeeColumn: cfg.Input.PayeeColumn,
		SheetName:   cfg.Input.SheetName,
	}
}
