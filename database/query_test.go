package database

import (
	"reflect"
	"testing"

	"github.com/saiset-co/sai-data/types"
)

func TestBuildSelectSQL(t *testing.T) {
	sql, args, err := buildSelectSQL(types.ReadDocumentsRequest{
		Collection: "users",
		Filter: map[string]interface{}{
			"age":  map[string]interface{}{"$gte": 18, "$lt": 65},
			"role": "admin",
		},
		Sort:  map[string]int{"age": -1},
		Skip:  10,
		Limit: 5,
	})
	if err != nil {
		t.Fatalf("build select: %v", err)
	}

	want := `SELECT data FROM "users" WHERE json_extract(data, '$.age') >= ? AND json_extract(data, '$.age') < ? AND json_extract(data, '$.role') = ? ORDER BY json_extract(data, '$.age') DESC LIMIT ? OFFSET ?`
	if sql != want {
		t.Errorf("sql mismatch:\n got %s\nwant %s", sql, want)
	}

	wantArgs := []interface{}{18, 65, "admin", 5, 10}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("args mismatch: got %v want %v", args, wantArgs)
	}
}

func TestBuildSelectSQLIsDeterministic(t *testing.T) {
	request := types.ReadDocumentsRequest{
		Collection: "users",
		Filter: map[string]interface{}{
			"b": 2,
			"a": 1,
			"c": 3,
		},
	}

	first, _, err := buildSelectSQL(request)
	if err != nil {
		t.Fatalf("build select: %v", err)
	}

	for i := 0; i < 20; i++ {
		next, _, err := buildSelectSQL(request)
		if err != nil {
			t.Fatalf("build select: %v", err)
		}
		if next != first {
			t.Fatalf("statement varies across builds:\n%s\n%s", first, next)
		}
	}
}

func TestBuildWhereClauseOperators(t *testing.T) {
	where, args, err := buildWhereClause(map[string]interface{}{
		"name": map[string]interface{}{"$in": []interface{}{"alice", "bob"}},
	})
	if err != nil {
		t.Fatalf("build where: %v", err)
	}

	want := `json_extract(data, '$.name') IN (?, ?)`
	if where != want {
		t.Errorf("where mismatch: got %s want %s", where, want)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
}

func TestBuildWhereClauseBookkeepingColumns(t *testing.T) {
	where, args, err := buildWhereClause(map[string]interface{}{
		FieldInternalID: "abc",
		FieldCreatedAt:  map[string]interface{}{"$gt": int64(100)},
	})
	if err != nil {
		t.Fatalf("build where: %v", err)
	}

	want := `cr_time > ? AND internal_id = ?`
	if where != want {
		t.Errorf("where mismatch: got %s want %s", where, want)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
}

func TestBuildWhereClauseRejectsUnknownOperator(t *testing.T) {
	_, _, err := buildWhereClause(map[string]interface{}{
		"name": map[string]interface{}{"$regex": "^a"},
	})
	if !types.IsError(err, types.ErrInvalidParameter) {
		t.Errorf("expected invalid parameter error, got %v", err)
	}
}

func TestBuildWhereClauseEmptyInNeverMatches(t *testing.T) {
	where, args, err := buildWhereClause(map[string]interface{}{
		"name": map[string]interface{}{"$in": []interface{}{}},
	})
	if err != nil {
		t.Fatalf("build where: %v", err)
	}
	if where != "1 = 0" {
		t.Errorf("expected contradiction clause, got %s", where)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestFieldExprRejectsInjection(t *testing.T) {
	for _, field := range []string{"a'); DROP TABLE x; --", "a b", "a-b", ""} {
		if _, err := fieldExpr(field); err == nil {
			t.Errorf("field %q should be rejected", field)
		}
	}

	if _, err := fieldExpr("profile.address.city"); err != nil {
		t.Errorf("dotted path should be accepted: %v", err)
	}
}

func TestValidateCollectionName(t *testing.T) {
	for _, name := range []string{"users", "user_events", "_meta"} {
		if err := validateCollectionName(name); err != nil {
			t.Errorf("name %q should be accepted: %v", name, err)
		}
	}
	for _, name := range []string{"", "user-events", `users"`, "1users"} {
		if err := validateCollectionName(name); err == nil {
			t.Errorf("name %q should be rejected", name)
		}
	}
}
