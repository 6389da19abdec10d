package config

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-data/types"
)

type Parser struct {
	config *types.DataConfig
	data   map[string]interface{}
}

func NewParser(config *types.DataConfig) *Parser {
	parser := &Parser{
		config: config,
		data:   make(map[string]interface{}),
	}

	configBytes, err := yaml.Marshal(config)
	if err != nil {
		return parser
	}

	if err := yaml.Unmarshal(configBytes, &parser.data); err != nil {
		parser.data = make(map[string]interface{})
	}

	return parser
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	value := p.navigateToPath(path)
	if value == nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	value := p.navigateToPath(path)
	if value == nil {
		return types.Errorf(types.ErrConfigNotFound, "path: %s", path)
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal config value")
	}

	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return types.WrapError(err, "failed to unmarshal config value")
	}

	return nil
}

func (p *Parser) GetAllPaths() ([]string, error) {
	var paths []string
	collectPaths("", p.data, &paths)
	return paths, nil
}

func (p *Parser) navigateToPath(path string) interface{} {
	if path == "" {
		return p.data
	}

	parts := strings.Split(path, ".")
	var current interface{} = p.data

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			if val, exists := v[part]; exists {
				current = val
			} else {
				return nil
			}
		case map[interface{}]interface{}:
			if val, exists := v[part]; exists {
				current = val
			} else {
				return nil
			}
		default:
			return nil
		}
	}

	return current
}

func collectPaths(prefix string, value interface{}, paths *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			childPath := key
			if prefix != "" {
				childPath = prefix + "." + key
			}
			*paths = append(*paths, childPath)
			collectPaths(childPath, child, paths)
		}
	case map[interface{}]interface{}:
		for key, child := range v {
			keyStr, ok := key.(string)
			if !ok {
				continue
			}
			childPath := keyStr
			if prefix != "" {
				childPath = prefix + "." + keyStr
			}
			*paths = append(*paths, childPath)
			collectPaths(childPath, child, paths)
		}
	}
}
