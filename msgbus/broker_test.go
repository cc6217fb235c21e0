package msgbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0m3kk/lunafold/msgbus"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "luna.application", msgbus.TopicFor("application"))
	assert.Equal(t, "luna.offer", msgbus.TopicFor("offer"))
	assert.Equal(t, "", msgbus.TopicFor(""))
}
