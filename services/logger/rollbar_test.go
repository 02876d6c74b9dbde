package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/unilearn/lms/core"
	"github.com/unilearn/lms/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	usr := user.User{ID: "u1", Name: "Ada", Email: "ada@test.edu", Roles: []string{user.RoleStudent}}
	logger.Warn("attendance auto-submit skipped", errors.New("boom"), map[string]interface{}{"course_id": "c1"}, usr)

	out := buf.String()
	assert.Contains(t, out, "[WARN] attendance auto-submit skipped")
	assert.Contains(t, out, "error: boom")
	assert.Contains(t, out, "map[course_id:c1]")
	assert.Contains(t, out, "user: u1 <ada@test.edu> [student:]")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	err := errors.New("boom")
	extra := map[string]interface{}{"k": "v"}

	args := logger.prepare("msg", []interface{}{err, user.User{ID: "u1"}, extra, user.User{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", err, extra}, args)
}
