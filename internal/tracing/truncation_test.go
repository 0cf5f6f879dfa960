package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"空串", "", ""},
		{"单字符", "张", "*"},
		{"两字符姓名", "张三", "张*"},
		{"三字符姓名", "王小明", "王*明"},
		{"手机号", "13812345678", "13*******78"},
		{"邮箱", "myemail@example.com", "my***************om"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPII(tt.value))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))

	long := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	got := TruncateString(long, 20)
	assert.LessOrEqual(t, len([]rune(got)), 20)
	assert.Contains(t, got, "...")
	assert.True(t, strings.HasPrefix(got, "aaaa"))
	assert.True(t, strings.HasSuffix(got, "bbbb"))
}

func TestSafeAttributeValue(t *testing.T) {
	// 命中敏感关键字时掩码
	assert.Equal(t, "13*******78", SafeAttributeValue("candidate.phone", "13812345678", DefaultMaxLength))
	assert.Equal(t, "张*", SafeAttributeValue("姓名", "张三", DefaultMaxLength))

	// 非敏感字段只做截断
	long := strings.Repeat("x", 300)
	got := SafeAttributeValue("db.statement", long, DefaultMaxLength)
	assert.LessOrEqual(t, len([]rune(got)), DefaultMaxLength)
}

func TestSafeSQLAndRedisKey(t *testing.T) {
	sql := "SELECT * FROM screening_runs WHERE run_uuid = ?"
	assert.Equal(t, sql, SafeSQL(sql))

	longKey := strings.Repeat("k", 200)
	assert.LessOrEqual(t, len([]rune(SafeRedisKey(longKey))), MaxRedisLength)
}
