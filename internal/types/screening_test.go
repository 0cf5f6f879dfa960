package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSkills(t *testing.T) {
	tests := []struct {
		name   string
		skills []string
		want   []string
	}{
		{"空输入", nil, nil},
		{"小写化与去空白", []string{" Python ", "SQL"}, []string{"python", "sql"}},
		{"去重保持首次出现顺序", []string{"go", "Python", "GO", "python"}, []string{"go", "python"}},
		{"剔除空串", []string{"", "  ", "go"}, []string{"go"}},
		{"全为空串", []string{"", " "}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSkills(tt.skills)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEducationLevelRank(t *testing.T) {
	assert.True(t, EducationNone.Rank() < EducationHighSchool.Rank())
	assert.True(t, EducationHighSchool.Rank() < EducationBachelor.Rank())
	assert.True(t, EducationBachelor.Rank() < EducationMaster.Rank())
	assert.True(t, EducationMaster.Rank() < EducationPhD.Rank())

	// 大小写不敏感
	assert.Equal(t, EducationBachelor.Rank(), EducationLevel("Bachelor").Rank())

	// 未知枚举排在所有已知层级之下
	assert.Equal(t, -1, EducationLevel("diploma").Rank())
}

func TestEducationLevelIsValid(t *testing.T) {
	assert.True(t, EducationLevel("").IsValid(), "空串表示无学历要求")
	assert.True(t, EducationBachelor.IsValid())
	assert.True(t, EducationLevel("PhD").IsValid())
	assert.False(t, EducationLevel("diploma").IsValid())
}
