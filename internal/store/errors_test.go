package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "payments_stripe_session_id_key"}
	wrapped := fmt.Errorf("insert: %w", unique)

	assert.True(t, isUniqueViolation(unique))
	assert.True(t, isUniqueViolation(wrapped))
	assert.False(t, isUniqueViolation(errors.New("23505")))

	assert.True(t, isUndefinedFunctionError(&pgconn.PgError{Code: "42883"}))
	assert.False(t, isUndefinedFunctionError(unique))

	assert.True(t, isUndefinedTableError(fmt.Errorf("journal: %w", &pgconn.PgError{Code: "42P01"})))

	assert.True(t, isUnknownProfileError(&pgconn.PgError{Code: "22P02"}))
	assert.True(t, isUnknownProfileError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUnknownProfileError(nil))
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Nil(t, nullableString("   "))
	value := nullableString(" pi_123 ")
	if assert.NotNil(t, value) {
		assert.Equal(t, "pi_123", *value)
	}
}
