package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// seedFile is the JSON layout accepted by -file.
type seedFile struct {
	Title           string         `json:"title" validate:"required,max=200"`
	Description     string         `json:"description"`
	DurationMinutes int            `json:"duration_minutes" validate:"required,min=1,max=600"`
	Questions       []seedQuestion `json:"questions" validate:"required,min=1,dive"`
}

type seedQuestion struct {
	Prompt  string `json:"question_text" validate:"required"`
	A       string `json:"a" validate:"required"`
	B       string `json:"b" validate:"required"`
	C       string `json:"c" validate:"required"`
	D       string `json:"d" validate:"required"`
	Correct string `json:"correct_option" validate:"required,oneof=a b c d"`
}

func main() {
	var path string
	flag.StringVar(&path, "file", "", "JSON module definition (a built-in sample is used when empty)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	seed := sampleModule()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to read seed file")
		}
		seed = seedFile{}
		if err := json.Unmarshal(data, &seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to parse seed file")
		}
	}
	if fields := validator.Struct(&seed); fields != nil {
		log.Fatal().Interface("fields", fields).Msg("Seed file is invalid")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	moduleRepo := repository.NewModuleRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	contentService := service.NewContentService(moduleRepo, questionRepo, rdb, log)

	module := &model.Module{
		Title:           seed.Title,
		Description:     seed.Description,
		DurationMinutes: seed.DurationMinutes,
	}
	if err := moduleRepo.Create(ctx, module); err != nil {
		log.Fatal().Err(err).Msg("Failed to create module")
	}

	questions := make([]model.Question, 0, len(seed.Questions))
	for i, q := range seed.Questions {
		key, err := model.ParseOptionKey(q.Correct)
		if err != nil {
			log.Fatal().Err(err).Int("question", i+1).Msg("Invalid correct option")
		}
		questions = append(questions, model.Question{
			Number:        i + 1,
			Prompt:        q.Prompt,
			Options:       model.Options{A: q.A, B: q.B, C: q.C, D: q.D},
			CorrectOption: key,
		})
	}

	n, err := questionRepo.BulkCreate(ctx, module.ID, questions)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to insert questions")
	}
	module.QuestionCount = int(n)

	if _, _, err := contentService.WarmModuleCache(ctx, module); err != nil {
		log.Warn().Err(err).Msg("Module stored but cache warm failed; it will self-heal on first use")
	}

	fmt.Printf("Seeded module %s (%q) with %d questions, %d minutes\n",
		module.ID, module.Title, n, module.DurationMinutes)
}

func sampleModule() seedFile {
	return seedFile{
		Title:           "Go Fundamentals",
		Description:     "Ten questions on the Go language and its standard library.",
		DurationMinutes: 30,
		Questions: []seedQuestion{
			{"Which keyword starts a goroutine?", "go", "async", "spawn", "thread", "a"},
			{"What is the zero value of a map?", "an empty map", "nil", "0", "undefined", "b"},
			{"Which package provides formatted I/O?", "io", "bufio", "fmt", "os", "c"},
			{"How do you declare a constant?", "let", "var", "final", "const", "d"},
			{"Which built-in appends to a slice?", "append", "push", "add", "extend", "a"},
			{"What does defer do?", "runs at program exit", "runs when the function returns", "runs in a goroutine", "skips the call", "b"},
			{"Which type is used for errors?", "Exception", "Err", "error", "Throwable", "c"},
			{"What closes a channel?", "ch.Close()", "end(ch)", "stop(ch)", "close(ch)", "d"},
			{"Which statement selects over channels?", "select", "switch", "match", "poll", "a"},
			{"Which tool formats Go code?", "golint", "gofmt", "goimports-check", "gostyle", "b"},
		},
	}
}
