// internal/auth/auth_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminGuard(t *testing.T) {
	assert.Nil(t, NewAdminGuard(""))
	assert.False(t, NewAdminGuard("").Enabled())

	g := NewAdminGuard("s3cret-admin")
	assert.True(t, g.Enabled())

	assert.NoError(t, g.Check("Bearer s3cret-admin"))
	assert.NoError(t, g.Check("bearer   s3cret-admin "))
	assert.ErrorIs(t, g.Check(""), ErrMissingToken)
	assert.ErrorIs(t, g.Check("Basic s3cret-admin"), ErrMissingToken)
	assert.ErrorIs(t, g.Check("Bearer "), ErrMissingToken)
	assert.ErrorIs(t, g.Check("Bearer s3cret"), ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	_, ok = BearerToken("abc")
	assert.False(t, ok)
}
