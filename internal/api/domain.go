package api

import (
	"fmt"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/classifications"
	"github.com/rhinocodelab/idms-v3/internal/classifier"
	"github.com/rhinocodelab/idms-v3/internal/config"
	"github.com/rhinocodelab/idms-v3/internal/documents"
	"github.com/rhinocodelab/idms-v3/internal/engine"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Workflows       workflows.System
	Queue           queue.System
	Activity        activity.System
	Classifications classifications.System
	Documents       documents.System
	Classifier      classifier.System
	Engine          engine.System
}

// NewDomain creates all domain systems from the API runtime and registers
// the engine with the lifecycle so it starts once the database is up.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()

	wfSystem := workflows.New(db, runtime.Logger, runtime.Pagination)
	queueSystem := queue.New(db, runtime.Logger, runtime.Pagination)
	activitySystem := activity.New(db, runtime.Logger, runtime.Pagination)
	classSystem := classifications.New(db, runtime.Logger, runtime.Pagination)
	docsSystem := documents.New(runtime.Storage, runtime.Logger)
	classifierSystem := classifier.New(classifierConfig(&cfg.Classifier), runtime.Logger)

	eng, err := engine.New(
		engine.Runtime{
			Workflows:       wfSystem,
			Queue:           queueSystem,
			Activity:        activitySystem,
			Classifications: classSystem,
			Documents:       docsSystem,
			Classifier:      classifierSystem,
			Meter:           runtime.Meter,
			Logger:          runtime.Logger,
		},
		engine.Config{
			HashWorkers:     cfg.Ingest.HashWorkers,
			ItemTimeout:     cfg.Ingest.ItemTimeoutDuration(),
			ResumeOnStartup: cfg.Ingest.ResumeOnStartup,
			MaxFileSize:     cfg.Ingest.MaxFileSizeBytes(),
		},
		runtime.Pagination,
	)
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	eng.Register(runtime.Lifecycle, runtime.Database.Started())

	return &Domain{
		Workflows:       wfSystem,
		Queue:           queueSystem,
		Activity:        activitySystem,
		Classifications: classSystem,
		Documents:       docsSystem,
		Classifier:      classifierSystem,
		Engine:          eng,
	}, nil
}

func classifierConfig(c *config.ClassifierConfig) classifier.Config {
	return classifier.Config{
		BaseURL:            c.BaseURL,
		APIKey:             c.APIKey,
		Model:              c.Model,
		Prompt:             c.Prompt,
		Timeout:            c.TimeoutDuration(),
		MaxAttempts:        c.MaxAttempts,
		RetryDelay:         c.RetryDelayDuration(),
		Criticality:        c.Criticality,
		DefaultCriticality: c.DefaultCriticality,
	}
}
