package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "Go", want: "go"},
		{raw: "  web   dev ", want: "web-dev"},
		{raw: "k8s-ops", want: "k8s-ops"},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
		{raw: "c++", want: "c++"},
		{raw: "C#", want: "c#"},
		{raw: ".NET core", want: ".net-core"},
		{raw: "Café", want: "café"},
		{raw: "Новости", want: "новости"},
		{raw: "Москва 2024", want: "москва-2024"},
		{raw: "東京", want: "東京"},
		{raw: "cafe\u0301", want: "cafe\u0301"},
		{raw: "a:b", wantErr: true},
		{raw: "no/slashes", wantErr: true},
		{raw: "tab\x00", wantErr: true},
		{raw: strings.Repeat("ж", MaxTagLength), want: strings.Repeat("ж", MaxTagLength)},
		{raw: strings.Repeat("ж", MaxTagLength+1), wantErr: true},
		{raw: strings.Repeat("a", MaxTagLength), want: strings.Repeat("a", MaxTagLength)},
		{raw: strings.Repeat("a", MaxTagLength+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeTag(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTagErrorNamesTheRune(t *testing.T) {
	_, err := NormalizeTag("блог:заметки")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `':'`)
}

func TestNormalizeTagsDeduplicatesAndSorts(t *testing.T) {
	tags, err := NormalizeTags([]string{"Zig", "go", "GO", "ada"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "go", "zig"}, tags)

	post := &Post{Tags: tags}
	assert.True(t, post.HasTag("go"))
	assert.False(t, post.HasTag("rust"))
}

func TestNormalizeTagsLimit(t *testing.T) {
	raw := make([]string, 0, MaxTags+1)
	for i := 0; i <= MaxTags; i++ {
		raw = append(raw, strings.Repeat("t", i+1))
	}
	_, err := NormalizeTags(raw)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateRequest(t *testing.T) {
	err := ValidateRequest(CreatePostRequest{Title: " ", Body: "ok", Tags: []string{"a", ""}})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{"title", "tags[1]"}, fieldNames(t, err))

	assert.NoError(t, ValidateRequest(ModerateCommentRequest{Decision: "takedown"}))
	assert.ErrorIs(t, ValidateRequest(ModerateCommentRequest{Decision: "delete"}), ErrValidation)
	assert.ErrorIs(t, ValidateRequest(VersionRequest{}), ErrValidation)
}
