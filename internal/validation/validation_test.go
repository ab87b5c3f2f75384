package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidOrderID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "typical order id", id: "ORD-2025-0001", want: true},
		{name: "uuid style", id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", want: true},
		{name: "underscores", id: "ml_topup_86", want: true},
		{name: "too short", id: "ORD-1", want: false},
		{name: "empty", id: "", want: false},
		{name: "too long", id: strings.Repeat("a", 65), want: false},
		{name: "spaces", id: "ORD 2025 01", want: false},
		{name: "unicode", id: "заказ-0001", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidOrderID(tt.id))
		})
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{name: "simple", username: "member1", want: true},
		{name: "with underscore", username: "top_up_fan", want: true},
		{name: "too short", username: "ab", want: false},
		{name: "starts with digit", username: "1member", want: false},
		{name: "uppercase", username: "Member", want: false},
		{name: "too long", username: strings.Repeat("a", 33), want: false},
		{name: "dash not allowed", username: "member-one", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidUsername(tt.username))
		})
	}
}
