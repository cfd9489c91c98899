package main

import (
	"strings"
	"sync"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/config"
	"github.com/expertec/ApiSuno-Cantalab-server/internal/store"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiBase() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimRight(strings.TrimSpace(*c.apiFlag), "/")
	}
	bind := ""
	if cfg, err := c.ensureConfig(); err == nil {
		bind = cfg.Paths.APIBind
	}
	if bind == "" {
		bind = "127.0.0.1:8799"
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.apiBase())
}

// withStore runs fn with an API client when the daemon answers, or with a
// directly opened store when it does not. Exactly one of the two arguments
// is non-nil.
func (c *commandContext) withStore(fn func(client *apiClient, st *store.Store) error) error {
	client := c.client()
	if client.reachable() {
		return fn(client, nil)
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(nil, st)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
