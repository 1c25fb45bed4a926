package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserID(t *testing.T) {
	t.Run("zero value is unassigned", func(t *testing.T) {
		var id UserID
		assert.True(t, id.IsZero())
		assert.Equal(t, "", id.String())
		_, ok := id.Int64()
		assert.False(t, ok)
	})

	t.Run("relational id is an integer", func(t *testing.T) {
		id := SeqID(42)
		n, ok := id.Int64()
		require.True(t, ok)
		assert.Equal(t, int64(42), n)
		assert.Equal(t, "42", id.String())

		data, err := json.Marshal(id)
		require.NoError(t, err)
		assert.Equal(t, "42", string(data))
	})

	t.Run("document id is an opaque string", func(t *testing.T) {
		id := OpaqueID("65f1c0ffee")
		_, ok := id.Int64()
		assert.False(t, ok)
		assert.Equal(t, "65f1c0ffee", id.String())

		data, err := json.Marshal(id)
		require.NoError(t, err)
		assert.Equal(t, `"65f1c0ffee"`, string(data))
	})

	t.Run("unmarshal accepts both forms", func(t *testing.T) {
		var a, b UserID
		require.NoError(t, json.Unmarshal([]byte(`7`), &a))
		require.NoError(t, json.Unmarshal([]byte(`"abc"`), &b))
		assert.Equal(t, SeqID(7), a)
		assert.Equal(t, OpaqueID("abc"), b)
	})
}

func TestUserValidate(t *testing.T) {
	tests := []struct {
		name    string
		user    *User
		wantErr error
	}{
		{name: "nil user", user: nil, wantErr: ErrInvalidData},
		{name: "missing email", user: NewUser("", "a", "h", ""), wantErr: ErrEmailRequired},
		{name: "missing username", user: NewUser("a@x.com", "", "h", ""), wantErr: ErrUsernameRequired},
		{name: "missing hash", user: NewUser("a@x.com", "a", "", ""), wantErr: ErrPasswordRequired},
		{name: "valid", user: NewUser("a@x.com", "a", "h", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewUserDefaults(t *testing.T) {
	u := NewUser("a@x.com", "a", "hash", "Alice")
	assert.True(t, u.IsActive)
	assert.False(t, u.IsSuperuser)
	assert.True(t, u.ID.IsZero())
}

func TestUserFieldValid(t *testing.T) {
	assert.True(t, FieldUsername.Valid())
	assert.True(t, FieldEmail.Valid())
	assert.False(t, UserField("hashed_password").Valid())
}

func TestUserJSONHidesPassword(t *testing.T) {
	u := NewUser("a@x.com", "a", "secret-hash", "")
	u.ID = SeqID(1)
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-hash")
	assert.Contains(t, string(data), `"id":1`)
}

func TestErrPoolExhaustedIsUnavailable(t *testing.T) {
	assert.ErrorIs(t, ErrPoolExhausted, ErrUnavailable)
}
