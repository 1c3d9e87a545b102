package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"nuclight.org/msglog-tg-bot/app/moderator"
	"nuclight.org/msglog-tg-bot/app/msgcache"
	"nuclight.org/msglog-tg-bot/app/msglog"
	"nuclight.org/msglog-tg-bot/app/report"
	"nuclight.org/msglog-tg-bot/app/settings"
	"nuclight.org/msglog-tg-bot/app/storage"
	"nuclight.org/msglog-tg-bot/app/telegram"
	"nuclight.org/msglog-tg-bot/pkg/ai"
	"nuclight.org/msglog-tg-bot/pkg/logger"
)

var opts struct {
	TelegramAPIToken   string   `long:"telegram-api-token" env:"TELEGRAM_API_TOKEN" required:"true" description:"telegram api token"`
	TelegramWorkersNum int      `long:"telegram-workers-num" env:"TELEGRAM_WORKERS_NUM" default:"5" description:"number of workers for telegram bot"`
	DBPath             string   `long:"db-path" env:"DB_PATH" default:"./db/msglog.sqlite" description:"path to the sqlite database file"`
	AdminIDs           []string `long:"admin-id" env:"ADMIN_IDS" env-delim:"," description:"telegram user ids allowed to run commands"`
	LogLevel           string   `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level: debug, info, warn or error"`
	SentryDSN          string   `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn, errors are not reported if empty"`

	OpenAIKey       string `long:"openai-key" env:"OPENAI_KEY" description:"openai api key, spam moderation is disabled if empty"`
	OpenAIModel     string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-5-mini" description:"model used for spam checks"`
	OpenAIReasoning string `long:"openai-reasoning" env:"OPENAI_REASONING" default:"medium" description:"reasoning effort: minimal, low, medium, high or empty for the model default"`

	CacheDir          string `long:"cache-dir" env:"CACHE_DIR" description:"directory for cached attachments, system temp dir if empty"`
	MaxCacheEntries   int    `long:"max-cache-entries" env:"MAX_CACHE_ENTRIES" default:"2000" description:"default number of cached messages, 0 disables caching"`
	MaxAttachmentSize int64  `long:"max-attachment-size" env:"MAX_ATTACHMENT_SIZE" default:"8388608" description:"default max size of a cached attachment in bytes"`
	ReportSchedule    string `long:"report-schedule" env:"REPORT_SCHEDULE" default:"@every 30m" description:"cron schedule of cache usage reports"`
}

var Revision = "dev"

const sentryFlushTimeout = 2 * time.Second

func main() {
	// a missing .env is fine, the environment may be set up already
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("loading .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	level, err := logger.ParseLevel(opts.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.NewLoggerWithLevel(level)
	log.Info("starting bot", "revision", Revision)

	os.Exit(run(log))
}

// setupSentry enables error reporting when dsn is set. The returned flush
// must run before the process exits.
func setupSentry(dsn, release string) (flush func(), err error) {
	if dsn == "" {
		return func() {}, nil
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing sentry: %w", err)
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

// run returns the exit code; its deferred cleanups, sentry flush included,
// finish before main calls os.Exit.
func run(log logger.Logger) int {
	flushSentry, err := setupSentry(opts.SentryDSN, Revision)
	if err != nil {
		log.Error("setting up sentry", "error", err)
		return 1
	}
	defer flushSentry()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.NewSQLite(ctx, opts.DBPath)
	if err != nil {
		log.Error("creating sqlite3 database", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing sqlite3 database", "error", err)
		}
	}()

	limits, err := settings.Load(ctx, db, opts.MaxAttachmentSize, opts.MaxCacheEntries)
	if err != nil {
		log.Error("loading settings", "error", err)
		return 1
	}

	bot := &telegram.Client{
		Log:        log,
		APIToken:   opts.TelegramAPIToken,
		WorkersNum: opts.TelegramWorkersNum,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}

	cache, err := msgcache.New(opts.CacheDir, limits, log, bot)
	if err != nil {
		log.Error("creating message cache", "error", err)
		return 1
	}
	defer cache.Close()

	cache.SetMaxEntries(limits.MaxCacheEntries())

	bot.Events = &msglog.Service{
		Log:      log,
		Cache:    cache,
		Chats:    db,
		Settings: limits,
		Notifier: bot,
		Users:    bot,
		AdminIDs: opts.AdminIDs,
	}

	if opts.OpenAIKey != "" {
		effort, err := ai.ParseReasoningEffort(opts.OpenAIReasoning)
		if err != nil {
			log.Error("parsing openai reasoning effort", "error", err)
			return 1
		}

		openAI := ai.NewOpenAI(opts.OpenAIKey, &http.Client{Timeout: time.Minute})
		openAI.Model = opts.OpenAIModel
		openAI.ReasoningEffort = effort

		bot.Handler = &moderator.Handler{
			Log:           log,
			DefaultScore:  -3,
			TrustedScore:  0,
			BanScore:      -4,
			ScoreStore:    db,
			MessagesStore: db,
			AI:            openAI,
		}
	} else {
		log.Warn("openai key is not set, spam moderation is disabled")
	}

	reporter := &report.Reporter{
		Log:      log,
		Source:   cache,
		Schedule: opts.ReportSchedule,
	}

	err = reporter.Start(ctx)
	if err != nil {
		log.Error("starting cache report", "error", err)
		return 1
	}
	defer reporter.Stop()

	err = bot.Start(ctx)
	if err != nil {
		log.Error("starting bot", "error", err)
		return 1
	}

	<-ctx.Done()
	log.Info("stopping bot")

	bot.Wait()

	return 0
}
