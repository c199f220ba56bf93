package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// Policy describes when and how often a failed call is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `mapstructure:"attempts" yaml:"attempts" json:"attempts" validate:"gte=1"`
	// ExpBase multiplies the delay after every retry.
	ExpBase float64 `mapstructure:"exp_base" yaml:"exp_base" json:"exp_base" validate:"gt=0"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" json:"initial_delay" validate:"gte=0"`
	// MaxDelay caps the exponential delay. Zero disables the cap.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay" validate:"gte=0"`
	// Jitter adds a uniform random delay in [0, Jitter).
	Jitter time.Duration `mapstructure:"jitter" yaml:"jitter" json:"jitter" validate:"gte=0"`
	// StatusCodes lists the HTTP statuses worth retrying.
	StatusCodes []int `mapstructure:"status_codes" yaml:"status_codes" json:"status_codes" validate:"dive,gte=100,lte=599"`
}

// DefaultPolicy returns 5 attempts, base 7, 1s initial delay capped at 60s,
// 1s jitter, retrying 429, 500, 503 and 504.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     5,
		ExpBase:      7,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Jitter:       time.Second,
		StatusCodes:  []int{429, 500, 503, 504},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the policy fields.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	return nil
}

// Retryable reports whether status is one of the configured status codes.
func (p Policy) Retryable(status int) bool {
	return slices.Contains(p.StatusCodes, status)
}

// Backoff returns the delay before the n-th retry (n >= 1):
// min(MaxDelay, InitialDelay*ExpBase^(n-1)) plus jitter.
func (p Policy) Backoff(n int) time.Duration {
	return p.baseDelay(n) + p.jitter()
}

func (p Policy) baseDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.ExpBase, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(p.Jitter)))
}
