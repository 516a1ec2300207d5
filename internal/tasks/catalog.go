package tasks

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

const (
	KindStub         = "stub"
	KindCommand      = "command"
	KindProfileFetch = "profile_fetch"
)

var ErrUnknownKind = errors.New("unknown task kind")

type ProfileConfig struct {
	BaseURL   string
	UploadURL string // optional
	DataDir   string
	Timeout   time.Duration
	// RatePerSec paces requests across every profile job.
	RatePerSec float64
}

type Config struct {
	Profile ProfileConfig
	// CommandDir is the working directory for command tasks ("" = current).
	CommandDir string
}

// Catalog resolves task kinds to job bodies. One catalog is shared by every
// job so that the HTTP client and rate limiter are shared too.
type Catalog struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter

	builders map[string]func(name string) schedule.Func
}

func New(cfg Config, log logx.Logger) *Catalog {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Profile.Timeout <= 0 {
		cfg.Profile.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Profile.DataDir) == "" {
		cfg.Profile.DataDir = "data"
	}
	rps := cfg.Profile.RatePerSec
	if rps <= 0 {
		rps = 1
	}

	c := &Catalog{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "tasks")),
		http:    &http.Client{Timeout: cfg.Profile.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
	c.builders = map[string]func(string) schedule.Func{
		KindStub:         c.stub,
		KindCommand:      c.command,
		KindProfileFetch: c.profileFetch,
	}
	return c
}

// Resolve returns the body for a job of the given kind. name is the job's
// name and only used for logging.
func (c *Catalog) Resolve(kind, name string) (schedule.Func, error) {
	k := strings.ToLower(strings.TrimSpace(kind))
	b, ok := c.builders[k]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownKind, kind, strings.Join(c.Kinds(), ", "))
	}
	return b(name), nil
}

func (c *Catalog) Kinds() []string {
	out := make([]string, 0, len(c.builders))
	for k := range c.builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
