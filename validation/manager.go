package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/saiset-co/sai-data/types"
)

// Manager validates and sanitizes documents against the configured entity
// schemas before they reach storage. Field rules reuse validator tag
// syntax, so anything the validator package accepts works in config.
type Manager struct {
	entities map[string]*types.EntityConfig
	validate *validator.Validate
	logger   types.Logger
}

func NewValidationManager(config types.ConfigManager, logger types.Logger) (types.ValidationManager, error) {
	entities := make(map[string]*types.EntityConfig)

	for _, entity := range config.GetConfig().Entities {
		if entity == nil || entity.Name == "" {
			continue
		}
		if _, exists := entities[entity.Name]; exists {
			return nil, types.Errorf(types.ErrInvalidParameter, "duplicate entity: %s", entity.Name)
		}
		entities[entity.Name] = entity
	}

	return &Manager{
		entities: entities,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}, nil
}

func (m *Manager) HasEntity(entityName string) bool {
	_, exists := m.entities[entityName]
	return exists
}

// ValidateDocument checks required fields, declared types, and per-field
// validator rules. Entities without a schema pass through untouched.
func (m *Manager) ValidateDocument(entityName string, document map[string]interface{}) error {
	entity, exists := m.entities[entityName]
	if !exists {
		return nil
	}

	var violations []string

	for _, field := range entity.Fields {
		value, present := document[field.Name]

		if !present {
			if field.Required {
				violations = append(violations, field.Name+": required")
			}
			continue
		}

		if field.Type != "" && !matchesType(value, field.Type) {
			violations = append(violations, field.Name+": expected "+field.Type)
			continue
		}

		if field.Rules != "" {
			if err := m.validate.Var(value, field.Rules); err != nil {
				violations = append(violations, field.Name+": "+ruleViolation(err, field.Rules))
			}
		}
	}

	if len(violations) > 0 {
		return types.Errorf(types.ErrValidationFailed, "%s: %s", entityName, strings.Join(violations, "; "))
	}

	return nil
}

// SanitizeDocument drops fields the schema does not declare, keeping the
// storage bookkeeping fields. Unknown entities pass through as-is.
func (m *Manager) SanitizeDocument(entityName string, document map[string]interface{}) (map[string]interface{}, error) {
	entity, exists := m.entities[entityName]
	if !exists {
		return document, nil
	}

	declared := make(map[string]bool, len(entity.Fields))
	for _, field := range entity.Fields {
		declared[field.Name] = true
	}

	sanitized := make(map[string]interface{}, len(document))
	for key, value := range document {
		if declared[key] || isBookkeepingField(key) {
			sanitized[key] = value
		}
	}

	return sanitized, nil
}

func isBookkeepingField(key string) bool {
	switch key {
	case "internal_id", "cr_time", "ch_time":
		return true
	}
	return false
}

func matchesType(value interface{}, fieldType string) bool {
	switch fieldType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	}
	return true
}

func ruleViolation(err error, rules string) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return "failed " + rules
	}

	var failed []string
	for _, fieldError := range validationErrors {
		tag := fieldError.Tag()
		if param := fieldError.Param(); param != "" {
			tag += "=" + param
		}
		failed = append(failed, tag)
	}

	return "failed " + strings.Join(failed, ",")
}
