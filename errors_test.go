package velox_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewNotFoundError("User")
		assert.Equal(t, "velox: User not found", err.Error())
	})

	t.Run("ErrorWithID", func(t *testing.T) {
		err := velox.NewNotFoundErrorWithID("User", "u1")
		assert.Equal(t, "velox: User not found (id=u1)", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := velox.NewNotFoundError("Post")
		assert.True(t, errors.Is(err, velox.ErrNotFound))
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := velox.NewNotFoundError("Comment")
		assert.True(t, velox.IsNotFound(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsNotFound(wrapped))

		assert.True(t, velox.IsNotFound(velox.ErrNotFound))

		assert.False(t, velox.IsNotFound(errors.New("other error")))
		assert.False(t, velox.IsNotFound(nil))
	})
}

func TestNotSingularError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewNotSingularError("User")
		assert.Equal(t, "velox: User not singular", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := velox.NewNotSingularError("Post")
		assert.True(t, errors.Is(err, velox.ErrNotSingular))
	})

	t.Run("IsNotSingular", func(t *testing.T) {
		err := velox.NewNotSingularError("Comment")
		assert.True(t, velox.IsNotSingular(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsNotSingular(wrapped))

		assert.True(t, velox.IsNotSingular(velox.ErrNotSingular))

		assert.False(t, velox.IsNotSingular(errors.New("other error")))
		assert.False(t, velox.IsNotSingular(nil))
	})
}

func TestNotLoadedError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewNotLoadedError("posts")
		assert.Equal(t, `velox: relation "posts" was not loaded`, err.Error())
	})

	t.Run("IsNotLoaded", func(t *testing.T) {
		err := velox.NewNotLoadedError("comments")
		assert.True(t, velox.IsNotLoaded(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsNotLoaded(wrapped))

		assert.False(t, velox.IsNotLoaded(errors.New("other error")))
		assert.False(t, velox.IsNotLoaded(nil))
	})
}

func TestRejectedByPolicyError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewRejectedByPolicyError("Post", "update", "author == auth()")
		assert.Equal(t, `velox: update on Post rejected by policy: author == auth()`, err.Error())
	})

	t.Run("ErrorWithoutReason", func(t *testing.T) {
		err := velox.NewRejectedByPolicyError("Post", "delete", "")
		assert.Equal(t, "velox: delete on Post rejected by policy", err.Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := velox.NewRejectedByPolicyError("Post", "create", "")
		assert.True(t, errors.Is(err, velox.ErrRejectedByPolicy))
	})

	t.Run("IsRejectedByPolicy", func(t *testing.T) {
		err := velox.NewRejectedByPolicyError("Post", "create", "")
		assert.True(t, velox.IsRejectedByPolicy(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsRejectedByPolicy(wrapped))

		assert.False(t, velox.IsRejectedByPolicy(errors.New("other error")))
		assert.False(t, velox.IsRejectedByPolicy(nil))
	})
}

func TestDriverError(t *testing.T) {
	t.Run("UnclassifiedError", func(t *testing.T) {
		underlying := errors.New("connection refused")
		err := velox.NewDriverError(underlying)
		assert.Equal(t, "velox: driver error: connection refused", err.Error())
		assert.True(t, errors.Is(err, underlying))
		assert.False(t, velox.IsConstraintError(err))
	})

	t.Run("ConstraintError", func(t *testing.T) {
		underlying := errors.New("duplicate key")
		err := velox.NewConstraintError(velox.ConstraintUnique, "users_email_key", underlying)
		assert.Equal(t, `velox: unique constraint "users_email_key" violated: duplicate key`, err.Error())
		assert.True(t, velox.IsConstraintError(err))
		assert.True(t, velox.IsDriverError(err))
	})

	t.Run("IsDriverError", func(t *testing.T) {
		err := velox.NewDriverError(errors.New("db error"))
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsDriverError(wrapped))
		assert.False(t, velox.IsDriverError(errors.New("other")))
		assert.False(t, velox.IsDriverError(nil))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewValidationError("email", errors.New("invalid format"))
		assert.Equal(t, `velox: validation failed for field "email": invalid format`, err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("too short")
		err := velox.NewValidationError("name", underlying)
		assert.True(t, errors.Is(err, underlying))
	})

	t.Run("Is", func(t *testing.T) {
		err := velox.NewValidationError("age", errors.New("must be positive"))
		assert.True(t, errors.Is(err, velox.ErrValidation))
	})

	t.Run("IsValidationError", func(t *testing.T) {
		err := velox.NewValidationError("age", errors.New("must be positive"))
		assert.True(t, velox.IsValidationError(err))

		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, velox.IsValidationError(wrapped))

		assert.False(t, velox.IsValidationError(errors.New("other error")))
		assert.False(t, velox.IsValidationError(nil))
	})
}

func TestQueryError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewQueryError("Post", "find", errors.New("bad cursor"))
		assert.Equal(t, "velox: querying Post (find): bad cursor", err.Error())
	})

	t.Run("IsQueryError", func(t *testing.T) {
		err := velox.NewQueryError("Post", "find", errors.New("bad cursor"))
		assert.True(t, velox.IsQueryError(err))
		assert.True(t, errors.Is(err, velox.ErrQuery))
	})
}

func TestInternalError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewInternalError("ast.Compile", errors.New("unknown node kind"))
		assert.Equal(t, "velox: internal error (ast.Compile): unknown node kind", err.Error())
	})

	t.Run("IsInternalError", func(t *testing.T) {
		err := velox.NewInternalError("", errors.New("x"))
		assert.True(t, velox.IsInternalError(err))
		assert.True(t, errors.Is(err, velox.ErrInternal))
	})
}

func TestRollbackError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &velox.RollbackError{Err: errors.New("connection lost")}
		assert.Equal(t, "velox: rollback failed: connection lost", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		underlying := errors.New("timeout")
		err := &velox.RollbackError{Err: underlying}
		assert.True(t, errors.Is(err, underlying))
	})
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		err := velox.NewAggregateError()
		assert.Nil(t, err)
	})

	t.Run("NilErrors", func(t *testing.T) {
		err := velox.NewAggregateError(nil, nil, nil)
		assert.Nil(t, err)
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("single error")
		err := velox.NewAggregateError(single)
		assert.Equal(t, single, err)
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err2 := errors.New("error 2")
		err := velox.NewAggregateError(err1, err2)

		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.Contains(t, err.Error(), "error 1")
		assert.Contains(t, err.Error(), "error 2")
	})

	t.Run("MixedNilAndErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err := velox.NewAggregateError(nil, err1, nil)

		require.NotNil(t, err)
		assert.Equal(t, err1, err)
	})
}

func TestMutationError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velox.NewMutationError("Post", "create", errors.New("boom"))
		assert.Equal(t, "velox: create Post: boom", err.Error())
	})

	t.Run("IsMutationError", func(t *testing.T) {
		err := velox.NewMutationError("Post", "create", errors.New("boom"))
		assert.True(t, velox.IsMutationError(err))
	})
}

func TestSentinelErrors(t *testing.T) {
	t.Run("ErrNotFound", func(t *testing.T) {
		assert.Error(t, velox.ErrNotFound)
		assert.Contains(t, velox.ErrNotFound.Error(), "not found")
	})

	t.Run("ErrRejectedByPolicy", func(t *testing.T) {
		assert.Error(t, velox.ErrRejectedByPolicy)
		assert.Contains(t, velox.ErrRejectedByPolicy.Error(), "rejected by policy")
	})

	t.Run("ErrNotSingular", func(t *testing.T) {
		assert.Error(t, velox.ErrNotSingular)
		assert.Contains(t, velox.ErrNotSingular.Error(), "not singular")
	})

	t.Run("ErrTxStarted", func(t *testing.T) {
		assert.Error(t, velox.ErrTxStarted)
		assert.Contains(t, velox.ErrTxStarted.Error(), "transaction")
	})
}

// BenchmarkErrors benchmarks error creation and checking.
func BenchmarkErrors(b *testing.B) {
	b.Run("NewNotFoundError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = velox.NewNotFoundError("User")
		}
	})

	b.Run("IsNotFound", func(b *testing.B) {
		err := velox.NewNotFoundError("User")
		for i := 0; i < b.N; i++ {
			_ = velox.IsNotFound(err)
		}
	})

	b.Run("NewConstraintError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = velox.NewConstraintError(velox.ConstraintUnique, "x", nil)
		}
	})

	b.Run("IsConstraintError", func(b *testing.B) {
		err := velox.NewConstraintError(velox.ConstraintUnique, "x", nil)
		for i := 0; i < b.N; i++ {
			_ = velox.IsConstraintError(err)
		}
	})

	b.Run("NewValidationError", func(b *testing.B) {
		underlying := errors.New("invalid")
		for i := 0; i < b.N; i++ {
			_ = velox.NewValidationError("field", underlying)
		}
	})

	b.Run("NewAggregateError_multiple", func(b *testing.B) {
		err1 := errors.New("err1")
		err2 := errors.New("err2")
		err3 := errors.New("err3")
		for i := 0; i < b.N; i++ {
			_ = velox.NewAggregateError(err1, err2, err3)
		}
	})
}
