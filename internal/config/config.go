package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/Guizzs26/game_rsvp_bot/internal/model"
)

type MissingGamePolicy string

const (
	MissingLeave  MissingGamePolicy = "leave"
	MissingCancel MissingGamePolicy = "cancel"
)

type Config struct {
	BotToken    string `validate:"required"`
	BotUsername string `validate:"required"`
	// BotUserID is the bot's own chat user; its reactions are ignored.
	BotUserID string
	ChannelID   string `validate:"required"`

	Feeds    []model.TeamFeed `validate:"required,min=1,dive"`
	Location *time.Location   `validate:"required"`

	DBPath    string `validate:"required"`
	StatePath string `validate:"required"`
	RedisURL  string

	KafkaBrokers   []string `validate:"required,min=1,dive,required"`
	ReactionsTopic string   `validate:"required"`
	ActionsTopic   string   `validate:"required"`
	ConsumerGroup  string   `validate:"required"`
	// KafkaSASL authenticates to the brokers as BotUsername with BotToken.
	KafkaSASL bool

	AdminAddr      string `validate:"required"`
	AdminJWTSecret string `validate:"required"`
	OperatorRole   string `validate:"required"`

	PollLeadTime       time.Duration `validate:"gt=0"`
	ReminderLeadTime   time.Duration `validate:"gt=0"`
	ChangeThreshold    time.Duration `validate:"gte=0"`
	FeedHorizon        time.Duration `validate:"gt=0"`
	FeedTimeout        time.Duration `validate:"gt=0"`
	PollCreateInterval time.Duration `validate:"gt=0"`
	ReminderInterval   time.Duration `validate:"gt=0"`
	ChangeInterval     time.Duration `validate:"gt=0"`

	MissingPolicy MissingGamePolicy `validate:"oneof=leave cancel"`

	ReconcileWorkers int     `validate:"gte=1"`
	NotifyRPS        float64 `validate:"gt=0"`
	NotifyBurst      int     `validate:"gte=1"`
	LogLevel         string
}

type feedValidation struct {
	Name string `validate:"required"`
	URL  string `validate:"required,url"`
}

// Load reads configuration from the environment, after loading envFiles (or
// .env when none are given) if they exist. Missing required settings are
// reported as an error; the caller treats that as fatal.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.WithField("files", envFiles).Debug("env file not loaded, using process environment")
	}

	var (
		missing []string
		env     envReader
	)
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		BotToken:       required("BOT_TOKEN"),
		BotUsername:    envOrDefault("BOT_USERNAME", "rsvp-bot"),
		BotUserID:      os.Getenv("BOT_USER_ID"),
		ChannelID:      required("CHANNEL_ID"),
		DBPath:         envOrDefault("DB_PATH", "data/rsvp.db"),
		StatePath:      envOrDefault("STATE_PATH", "data/triggers.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		ReactionsTopic: envOrDefault("REACTIONS_TOPIC", "chat-reactions"),
		ActionsTopic:   envOrDefault("ACTIONS_TOPIC", "chat-actions"),
		ConsumerGroup:  envOrDefault("CONSUMER_GROUP", "rsvp-reconciler"),
		KafkaSASL:      env.boolOr("KAFKA_SASL", false),
		AdminAddr:      envOrDefault("ADMIN_ADDR", ":9090"),
		AdminJWTSecret: required("ADMIN_JWT_SECRET"),
		OperatorRole:   envOrDefault("OPERATOR_ROLE", "admin"),

		PollLeadTime:       env.durationOr("POLL_LEAD_TIME", 7*24*time.Hour),
		ReminderLeadTime:   env.durationOr("REMINDER_LEAD_TIME", 24*time.Hour),
		ChangeThreshold:    env.durationOr("CHANGE_THRESHOLD", 15*time.Minute),
		FeedHorizon:        env.durationOr("FEED_HORIZON", 30*24*time.Hour),
		FeedTimeout:        env.durationOr("FEED_TIMEOUT", 10*time.Second),
		PollCreateInterval: env.durationOr("POLL_CREATE_INTERVAL", 24*time.Hour),
		ReminderInterval:   env.durationOr("REMINDER_INTERVAL", time.Hour),
		ChangeInterval:     env.durationOr("CHANGE_CHECK_INTERVAL", 2*time.Hour),

		MissingPolicy:    MissingGamePolicy(envOrDefault("MISSING_GAME_POLICY", string(MissingLeave))),
		ReconcileWorkers: env.intOr("RECONCILE_WORKERS", 4),
		NotifyRPS:        env.floatOr("NOTIFY_RPS", 2),
		NotifyBurst:      env.intOr("NOTIFY_BURST", 5),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
	}

	urls := splitList(required("ICAL_URLS"))
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(env.invalid) > 0 {
		return nil, fmt.Errorf("invalid configuration values: %s", strings.Join(env.invalid, ", "))
	}
	cfg.Feeds = teamFeeds(urls, splitList(os.Getenv("TEAM_NAMES")))

	tz := envOrDefault("TIMEZONE", "America/Toronto")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for i, f := range c.Feeds {
		// webcal:// is not a scheme the url validator accepts
		check := feedValidation{Name: f.Name, URL: strings.Replace(f.URL, "webcal://", "https://", 1)}
		if err := v.Struct(check); err != nil {
			return fmt.Errorf("invalid feed %d (%s): %w", i, f.Name, err)
		}
	}
	return nil
}

// teamFeeds pairs feed URLs with team names by position. Feeds without a
// matching name are called "Team N".
func teamFeeds(urls, names []string) []model.TeamFeed {
	feeds := make([]model.TeamFeed, 0, len(urls))
	for i, u := range urls {
		name := fmt.Sprintf("Team %d", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		feeds = append(feeds, model.TeamFeed{Name: name, URL: u})
	}
	return feeds
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envReader parses optional typed settings. Values that are set but do
// not parse are collected in invalid instead of falling back silently.
type envReader struct {
	invalid []string
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (e *envReader) reject(key, v string, err error) {
	e.invalid = append(e.invalid, fmt.Sprintf("%s=%q (%v)", key, v, err))
}

func (e *envReader) intOr(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.reject(key, v, err)
		return fallback
	}
	return i
}

func (e *envReader) floatOr(key string, fallback float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.reject(key, v, err)
		return fallback
	}
	return f
}

func (e *envReader) durationOr(key string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.reject(key, v, err)
		return fallback
	}
	return d
}

func (e *envReader) boolOr(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.reject(key, v, err)
		return fallback
	}
	return b
}
