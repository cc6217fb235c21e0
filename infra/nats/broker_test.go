package nats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0m3kk/lunafold/infra/nats"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "luna_application", nats.StreamName("luna.application"))
	assert.Equal(t, "luna_offer", nats.StreamName("luna.offer"))
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name        string
		aggregateID string
		want        string
	}{
		{name: "plain", aggregateID: "myapp", want: "luna.application.myapp"},
		{name: "dotted", aggregateID: "my.app", want: "luna.application.my_app"},
		{name: "wildcards", aggregateID: "a*b>c", want: "luna.application.a_b_c"},
		{name: "spaces", aggregateID: "my app", want: "luna.application.my_app"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nats.Subject("luna.application", tt.aggregateID))
		})
	}
}
