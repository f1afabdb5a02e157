package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/procview/internal/log"
)

// settableKeys are the scalar keys SetValue accepts.
var settableKeys = map[string]bool{
	"shell":                      true,
	"work_dir":                   true,
	"capture_stderr":             true,
	"strip_ansi":                 true,
	"retention.detached_ttl":     true,
	"retention.cleanup_interval": true,
	"ui.wrap":                    true,
	"ui.placeholder":             true,
	"tracing.enabled":            true,
	"tracing.exporter":           true,
	"tracing.file_path":          true,
	"tracing.otlp_endpoint":      true,
	"tracing.sample_rate":        true,
	"log.level":                  true,
}

// SettableKeys returns the keys SetValue accepts, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue sets one dotted key in the config file, preserving comments and
// formatting elsewhere via yaml.Node. The file is only written if the result
// is a valid config.
func SetValue(configPath, key, value string) error {
	if !settableKeys[key] {
		return fmt.Errorf("unknown config key %q", key)
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root must be a mapping")
	}

	if err := setScalar(doc.Content[0], strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if _, err := Parse(buf.Bytes()); err != nil {
		return err
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	log.Info(log.CatConfig, "config value set", "path", configPath, "key", key)
	return nil
}

// Parse decodes YAML config bytes over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Load(v)
}

func setScalar(mapping *yaml.Node, path []string, value string) error {
	name := path[0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != name {
			continue
		}
		child := mapping.Content[i+1]
		if len(path) == 1 {
			if child.Kind != yaml.ScalarNode {
				return fmt.Errorf("%s is not a scalar", name)
			}
			child.Value = value
			child.Tag = ""
			child.Style = scalarStyle(value)
			return nil
		}
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("%s is not a mapping", name)
		}
		return setScalar(child, path[1:], value)
	}

	// Key absent: append it, creating intermediate mappings
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: name}
	if len(path) == 1 {
		mapping.Content = append(mapping.Content, keyNode,
			&yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: scalarStyle(value)})
		return nil
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content, keyNode, child)
	return setScalar(child, path[1:], value)
}

// scalarStyle quotes values yaml would otherwise read as something else.
func scalarStyle(value string) yaml.Style {
	if value == "" || strings.ContainsAny(value, ":#{}[],&*!|>'\"%@`") || strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") {
		return yaml.DoubleQuotedStyle
	}
	return 0
}
