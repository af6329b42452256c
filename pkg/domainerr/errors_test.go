package domainerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesSentinel(t *testing.T) {
	err := NotFound("impersonation.Start", "user not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	wrapped := fmt.Errorf("handler: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := StoreFailure("sessionstore.GetUser", cause)
	assert.Equal(t, "sessionstore.GetUser: store failure: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "rbac.Assign: admin cannot manage the admin role",
		Unauthorized("rbac.Assign", "%s cannot manage the %s role", "admin", "admin").Error())
}

func TestStoreFailure_KeepsClassification(t *testing.T) {
	assert.Nil(t, StoreFailure("op", nil))

	inner := AlreadyExists("store.AssignRole", "role already held")
	assert.Same(t, inner, StoreFailure("rbac.Assign", inner))
}

func TestKindOf_BareSentinel(t *testing.T) {
	assert.Equal(t, KindUnauthorized, KindOf(fmt.Errorf("x: %w", ErrUnauthorized)))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestUserVisible(t *testing.T) {
	assert.True(t, UserVisible(Unauthorized("op", "no")))
	assert.True(t, UserVisible(NotFound("op", "no")))
	assert.True(t, UserVisible(Invalid("op", "no")))
	assert.False(t, UserVisible(StoreFailure("op", errors.New("x"))))
	assert.False(t, UserVisible(AuditWriteFailure("op", errors.New("x"))))
	assert.False(t, UserVisible(errors.New("x")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "user not found", UserMessage(NotFound("op", "user not found")))
	assert.Equal(t, "unauthorized", UserMessage(ErrUnauthorized))
	assert.Equal(t, "the request could not be completed, please retry", UserMessage(StoreFailure("op", errors.New("pq: boom"))))
	assert.Equal(t, "", UserMessage(nil))
}
