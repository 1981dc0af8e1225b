package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/config"
	"constellation/internal/fingerprint"
	"constellation/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// withCache opens the artifact store and a cache manager for one command.
func (c *commandContext) withCache(fn func(*artifacts.Store, *cache.Manager) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := artifacts.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	manager := cache.NewManager(store, fingerprint.NewBuilder(cfg.Templates.Namespace), logging.NewNop())
	return fn(store, manager)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
