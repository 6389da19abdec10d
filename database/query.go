package database

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/saiset-co/sai-data/types"
)

// SQL statement construction for the sqlite backend. Every collection maps
// to one table holding the document as a JSON column plus the bookkeeping
// columns, so filters on document fields go through json_extract.

var collectionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateCollectionName(collection string) error {
	if !collectionNameRe.MatchString(collection) {
		return types.Errorf(types.ErrInvalidParameter, "invalid collection name: %q", collection)
	}
	return nil
}

func buildCreateTableSQL(collection string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	internal_id TEXT PRIMARY KEY,
	cr_time INTEGER NOT NULL,
	ch_time INTEGER NOT NULL,
	data TEXT NOT NULL
)`, collection)
}

func buildDropTableSQL(collection string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %q", collection)
}

func buildInsertSQL(collection string) string {
	return fmt.Sprintf("INSERT INTO %q (internal_id, cr_time, ch_time, data) VALUES (?, ?, ?, ?)", collection)
}

func buildSelectSQL(request types.ReadDocumentsRequest) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("SELECT data FROM %q", request.Collection))

	where, args, err := buildWhereClause(request.Filter)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if orderBy := buildOrderByClause(request.Sort); orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}

	if request.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, request.Limit)
	} else if request.Skip > 0 {
		// OFFSET requires a LIMIT in sqlite.
		b.WriteString(" LIMIT -1")
	}

	if request.Skip > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, request.Skip)
	}

	return b.String(), args, nil
}

func buildCountSQL(collection string, filter map[string]interface{}) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("SELECT COUNT(*) FROM %q", collection))

	where, args, err := buildWhereClause(filter)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	return b.String(), args, nil
}

func buildSelectForUpdateSQL(collection string, filter map[string]interface{}) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("SELECT internal_id, data FROM %q", collection))

	where, args, err := buildWhereClause(filter)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	return b.String(), args, nil
}

func buildUpdateRowSQL(collection string) string {
	return fmt.Sprintf("UPDATE %q SET data = ?, ch_time = ? WHERE internal_id = ?", collection)
}

func buildDeleteSQL(collection string, filter map[string]interface{}) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("DELETE FROM %q", collection))

	where, args, err := buildWhereClause(filter)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	return b.String(), args, nil
}

// buildWhereClause renders a document filter as SQL. Filter keys are
// visited in sorted order so identical filters always produce identical
// statements, which keeps query-key caching deterministic upstream.
func buildWhereClause(filter map[string]interface{}) (string, []interface{}, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var conditions []string
	var args []interface{}

	for _, key := range keys {
		condition, condArgs, err := buildFieldCondition(key, filter[key])
		if err != nil {
			return "", nil, err
		}
		if condition == "" {
			continue
		}
		conditions = append(conditions, condition)
		args = append(args, condArgs...)
	}

	return strings.Join(conditions, " AND "), args, nil
}

func buildFieldCondition(field string, filterValue interface{}) (string, []interface{}, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return "", nil, err
	}

	operators, isOperatorFilter := filterValue.(map[string]interface{})
	if !isOperatorFilter {
		return expr + " = ?", []interface{}{filterValue}, nil
	}

	ops := make([]string, 0, len(operators))
	for op := range operators {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var conditions []string
	var args []interface{}

	for _, op := range ops {
		value := operators[op]
		switch op {
		case "$eq":
			conditions = append(conditions, expr+" = ?")
			args = append(args, value)
		case "$ne":
			conditions = append(conditions, expr+" != ?")
			args = append(args, value)
		case "$gt":
			conditions = append(conditions, expr+" > ?")
			args = append(args, value)
		case "$gte":
			conditions = append(conditions, expr+" >= ?")
			args = append(args, value)
		case "$lt":
			conditions = append(conditions, expr+" < ?")
			args = append(args, value)
		case "$lte":
			conditions = append(conditions, expr+" <= ?")
			args = append(args, value)
		case "$in", "$nin":
			arr, ok := value.([]interface{})
			if !ok || len(arr) == 0 {
				if op == "$in" {
					conditions = append(conditions, "1 = 0")
				}
				continue
			}
			placeholders := strings.Repeat("?, ", len(arr)-1) + "?"
			clause := fmt.Sprintf("%s IN (%s)", expr, placeholders)
			if op == "$nin" {
				clause = fmt.Sprintf("%s NOT IN (%s)", expr, placeholders)
			}
			conditions = append(conditions, clause)
			args = append(args, arr...)
		case "$exists":
			if wantExists, ok := value.(bool); ok {
				if wantExists {
					conditions = append(conditions, expr+" IS NOT NULL")
				} else {
					conditions = append(conditions, expr+" IS NULL")
				}
			}
		default:
			return "", nil, types.Errorf(types.ErrInvalidParameter, "unsupported filter operator: %s", op)
		}
	}

	return strings.Join(conditions, " AND "), args, nil
}

func buildOrderByClause(sortSpec map[string]int) string {
	if len(sortSpec) == 0 {
		return ""
	}

	fields := make([]string, 0, len(sortSpec))
	for field := range sortSpec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var clauses []string
	for _, field := range fields {
		expr, err := fieldExpr(field)
		if err != nil {
			continue
		}
		direction := "ASC"
		if sortSpec[field] < 0 {
			direction = "DESC"
		}
		clauses = append(clauses, expr+" "+direction)
	}

	return strings.Join(clauses, ", ")
}

// fieldExpr maps a document field to its SQL expression: bookkeeping
// fields are real columns, everything else lives inside the JSON payload.
func fieldExpr(field string) (string, error) {
	switch field {
	case FieldInternalID, FieldCreatedAt, FieldChangedAt:
		return field, nil
	}

	for _, part := range strings.Split(field, ".") {
		if !collectionNameRe.MatchString(part) {
			return "", types.Errorf(types.ErrInvalidParameter, "invalid field name: %q", field)
		}
	}

	return fmt.Sprintf("json_extract(data, '$.%s')", field), nil
}
