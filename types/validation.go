package types

type ValidationManager interface {
	ValidateDocument(entityName string, document map[string]interface{}) error
	SanitizeDocument(entityName string, document map[string]interface{}) (map[string]interface{}, error)
	HasEntity(entityName string) bool
}
