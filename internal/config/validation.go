package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural problems and
// cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	owners := make(map[string]bool, len(c.Sessions))
	for _, sess := range c.Sessions {
		if owners[sess.Owner] {
			return fmt.Errorf("%w: duplicate session owner %q", ErrConfiguration, sess.Owner)
		}
		owners[sess.Owner] = true
	}

	if c.Engine.MaxSendDelay < c.Engine.MinSendDelay {
		return fmt.Errorf("%w: engine.max_send_delay must be at least engine.min_send_delay", ErrConfiguration)
	}
	if c.Engine.RetryCeiling < c.Engine.RetryBase {
		return fmt.Errorf("%w: engine.retry_ceiling must be at least engine.retry_base", ErrConfiguration)
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("%w: scheduler task %q is enabled but has no schedule", ErrConfiguration, name)
		}
	}

	return nil
}
