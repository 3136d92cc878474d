package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T, c *Configuration) {
	t.Helper()
	original := Config
	Config = c
	t.Cleanup(func() { Config = original })
}

func TestValidate_Defaults(t *testing.T) {
	withConfig(t, Default())
	assert.NoError(t, Validate())
}

func TestValidate_InvalidStoreType(t *testing.T) {
	c := Default()
	c.Store.Type = "oracle"
	withConfig(t, c)

	assert.Error(t, Validate())
}

func TestValidate_StorePathRequired(t *testing.T) {
	for _, typ := range []StoreType{StoreSQLite, StorePebble} {
		c := Default()
		c.Store.Type = typ
		c.Store.Path = ""
		withConfig(t, c)

		assert.Error(t, Validate(), "store type %s", typ)
	}

	c := Default()
	c.Store.Type = StoreMemory
	c.Store.Path = ""
	withConfig(t, c)
	assert.NoError(t, Validate())
}

func TestValidate_InvalidPolicy(t *testing.T) {
	c := Default()
	c.Converter.Policy = "some_users"
	withConfig(t, c)

	assert.Error(t, Validate())
}

func TestValidate_ConverterLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"batch size", func(c *Configuration) { c.Converter.BatchSize = 0 }},
		{"poll interval", func(c *Configuration) { c.Converter.PollIntervalMS = 0 }},
		{"retry multiplier", func(c *Configuration) { c.Converter.RetryMultiplier = 0.5 }},
		{"max retries", func(c *Configuration) { c.Converter.MaxRetries = -1 }},
		{"name", func(c *Configuration) { c.Converter.Name = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			withConfig(t, c)
			assert.Error(t, Validate())
		})
	}
}

func TestValidate_Sinks(t *testing.T) {
	c := Default()
	c.Sinks = []SinkConfiguration{
		{Name: "events", Type: "kafka", Brokers: []string{"localhost:9092"}},
		{Name: "bus", Type: "nats", NatsURL: "nats://localhost:4222"},
	}
	withConfig(t, c)
	require.NoError(t, Validate())

	c.Sinks = append(c.Sinks, SinkConfiguration{Name: "events", Type: "kafka", Brokers: []string{"b"}})
	assert.ErrorContains(t, Validate(), "duplicate sink name")

	c.Sinks = []SinkConfiguration{{Name: "k", Type: "kafka"}}
	assert.ErrorContains(t, Validate(), "requires brokers")

	c.Sinks = []SinkConfiguration{{Name: "n", Type: "nats"}}
	assert.ErrorContains(t, Validate(), "requires nats_url")

	c.Sinks = []SinkConfiguration{{Name: "h", Type: "http"}}
	assert.ErrorContains(t, Validate(), "invalid type")
}

func TestValidate_AdminPort(t *testing.T) {
	for _, port := range []int{-1, 0, 70000} {
		c := Default()
		c.Admin.Port = port
		withConfig(t, c)
		assert.Error(t, Validate(), "port %d", port)
	}

	c := Default()
	c.Admin.Enabled = false
	c.Admin.Port = 0
	withConfig(t, c)
	assert.NoError(t, Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	dataDir := filepath.Join(dir, "data")

	content := `
node_id = 7
data_dir = "` + filepath.ToSlash(dataDir) + `"

[store]
type = "pebble"
path = "lists"

[converter]
policy = "current_user"
batch_size = 50
include_resources = ["/sites/**"]

[[sinks]]
name = "events"
type = "kafka"
brokers = ["localhost:9092"]

[admin]
secret = "s3cret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	withConfig(t, Default())
	require.NoError(t, Load(path))

	assert.Equal(t, uint64(7), Config.NodeID)
	assert.Equal(t, StorePebble, Config.Store.Type)
	assert.Equal(t, "lists", Config.Store.Path)
	assert.Equal(t, "current_user", Config.Converter.Policy)
	assert.Equal(t, 50, Config.Converter.BatchSize)
	assert.Equal(t, 100, Config.Converter.PollIntervalMS, "unset keys keep defaults")
	assert.Equal(t, []string{"/sites/**"}, Config.Converter.IncludeResources)
	require.Len(t, Config.Sinks, 1)
	assert.Equal(t, "kafka", Config.Sinks[0].Type)
	assert.True(t, IsAdminAuthEnabled())
	assert.Equal(t, "s3cret", GetAdminSecret())

	_, err := os.Stat(dataDir)
	assert.NoError(t, err, "data dir should be created")
	assert.NoError(t, Validate())
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("node_id = ["), 0644))

	withConfig(t, Default())
	assert.Error(t, Load(path))
}
