package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "foodmarket/internal/errors"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		country string
		want    string
		wantErr bool
	}{
		{"congo local", "06 123 4567", "242", "242061234567", false},
		{"congo with plus", "+242 061234567", "242", "242061234567", false},
		{"default country", "061234567", "", "242061234567", false},
		{"congo too short", "0612345", "242", "", true},
		{"cameroon mobile", "677123456", "237", "237677123456", false},
		{"cameroon landline", "222123456", "237", "", true},
		{"ivory coast", "0701020304", "225", "2250701020304", false},
		{"drc", "+243 812345678", "243", "243812345678", false},
		{"drc wrong prefix", "712345678", "243", "", true},
		{"unknown country", "123456789012", "999", "999123456789012", false},
		{"letters", "06ABC4567", "242", "", true},
		{"local starting with country digits", "242123456", "242", "242242123456", false},
		{"international starting with country digits twice", "+242 242123456", "242", "242242123456", false},
		{"congo too long", "2420612345678", "242", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.country)
			if tt.wantErr {
				verr, ok := apperrors.IsValidationError(err)
				require.True(t, ok)
				assert.Equal(t, "phoneNumber", verr.Details[0].Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
