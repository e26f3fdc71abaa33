package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", New(ErrKindNotFound, "table missing"), IsNotFound},
		{"conflict", New(ErrKindConflict, "schema exists"), IsConflict},
		{"invalid input", New(ErrKindInvalidInput, "bad value"), IsInvalidInput},
		{"query failed", New(ErrKindQueryFailed, "syntax"), IsQueryFailed},
		{"policy", New(ErrKindPolicyViolation, "blocked"), IsPolicyViolation},
		{"timeout", New(ErrKindTimeout, "slow"), IsTimeout},
		{"connection", New(ErrKindConnectionFailed, "refused"), IsConnectionFailed},
		{"permission", New(ErrKindPermissionDenied, "denied"), IsPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("outer: %w", tt.err)), "predicate must see wrapped errors")
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, ErrKindUnknown, KindOf(nil))
}

func TestError_Format(t *testing.T) {
	cause := errors.New("relation \"x\" does not exist")
	err := Wrap(ErrKindNotFound, "fetch page", cause)

	assert.Equal(t, `[not_found] fetch page: relation "x" does not exist`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[conflict] dup", New(ErrKindConflict, "dup").Error())
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "Schema 'a' already exists", Message(Newf(ErrKindConflict, "Schema '%s' already exists", "a")))
	assert.Equal(t, "update failed", Message(Wrap(ErrKindQueryFailed, "update failed", errors.New("boom"))))
	assert.Equal(t, "inner", Message(fmt.Errorf("ctx: %w", New(ErrKindNotFound, "inner"))))
}

func TestKindText(t *testing.T) {
	for k := ErrKindUnknown; k <= ErrKindPermissionDenied; k++ {
		assert.Equal(t, k, ParseKind(k.String()))
	}
	assert.Equal(t, ErrKindUnknown, ParseKind("teapot"))
	assert.Equal(t, "unknown", ErrKind(42).String())

	raw, err := json.Marshal(struct {
		Kind ErrKind `json:"kind"`
	}{ErrKindPolicyViolation})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"policy_violation"}`, string(raw))

	var back struct {
		Kind ErrKind `json:"kind"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"timeout"}`), &back))
	assert.Equal(t, ErrKindTimeout, back.Kind)
}
