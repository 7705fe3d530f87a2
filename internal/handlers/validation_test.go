package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	validNonce := strings.Repeat("a", 64)

	tests := []struct {
		name    string
		req     any
		wantErr string
	}{
		{
			name: "valid authenticate",
			req:  AuthenticateRequest{Action: ActionAuthenticate, Login: "alice"},
		},
		{
			name:    "missing action",
			req:     AuthenticateRequest{},
			wantErr: "Action: this field is required",
		},
		{
			name:    "wrong action",
			req:     StatusRequest{Action: ActionAuthenticate},
			wantErr: "Action: must equal show_login_check_popup",
		},
		{
			name:    "login too long",
			req:     AuthenticateRequest{Action: ActionAuthenticate, Login: strings.Repeat("x", 256)},
			wantErr: "Login: must have a maximum of 255 characters",
		},
		{
			name:    "nonce not hex",
			req:     TwoFactorValidateRequest{AuthID: "1", Nonce: strings.Repeat("z", 64), Code: "123456"},
			wantErr: "Nonce: must be hexadecimal",
		},
		{
			name:    "nonce wrong length",
			req:     TwoFactorValidateRequest{AuthID: "1", Nonce: "abcd", Code: "123456"},
			wantErr: "Nonce: must be exactly 64 characters",
		},
		{
			name: "valid two-factor",
			req:  TwoFactorValidateRequest{AuthID: "1", Nonce: validNonce, Code: "123456"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
