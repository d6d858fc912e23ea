package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArticlePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    ArticlePayload
		wantErr bool
	}{
		{
			name: "valid payload",
			body: `{"url":"https://example.com/a","content":"hello world"}`,
			want: ArticlePayload{URL: "https://example.com/a", Content: "hello world"},
		},
		{
			name: "empty content is accepted",
			body: `{"url":"https://example.com/a","content":""}`,
			want: ArticlePayload{URL: "https://example.com/a", Content: ""},
		},
		{name: "missing content", body: `{"url":"https://example.com/a"}`, wantErr: true},
		{name: "missing url", body: `{"content":"x"}`, wantErr: true},
		{name: "empty url", body: `{"url":"  ","content":"x"}`, wantErr: true},
		{name: "null content", body: `{"url":"https://example.com/a","content":null}`, wantErr: true},
		{name: "numeric url", body: `{"url":42,"content":"x"}`, wantErr: true},
		{name: "not json", body: `hello`, wantErr: true},
		{name: "json array", body: `["a"]`, wantErr: true},
		{name: "json null", body: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeArticlePayload([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedPayload))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArticlePayload_Encode(t *testing.T) {
	body, err := ArticlePayload{URL: "https://example.com/a", Content: "hello world"}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com/a","content":"hello world"}`, string(body))

	_, err = ArticlePayload{Content: "orphan"}.Encode()
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMessageState_CanAdvanceTo(t *testing.T) {
	assert.True(t, StateReceived.CanAdvanceTo(StateSummarizing))
	assert.True(t, StateSummarizing.CanAdvanceTo(StatePersisting))
	assert.True(t, StatePersisting.CanAdvanceTo(StateAcknowledged))
	assert.True(t, StateReceived.CanAdvanceTo(StateDeadLettered))

	assert.False(t, StatePersisting.CanAdvanceTo(StateSummarizing))
	assert.False(t, StateAcknowledged.CanAdvanceTo(StateReceived))
	assert.False(t, StateAcknowledged.CanAdvanceTo(StateDeadLettered))
	assert.False(t, MessageState("bogus").CanAdvanceTo(StateAcknowledged))
}

func TestNewDeadLetter(t *testing.T) {
	dl := NewDeadLetter("articles", ReasonPersistExhausted, []byte(`{"url":"u"}`), 3, errors.New("db down"))

	assert.NotEmpty(t, dl.ID)
	assert.Equal(t, "articles", dl.Topic)
	assert.Equal(t, ReasonPersistExhausted, dl.Reason)
	assert.Equal(t, "db down", dl.Error)
	assert.Equal(t, `{"url":"u"}`, dl.Payload)
	assert.Equal(t, 3, dl.Attempts)
	assert.False(t, dl.FailedAt.IsZero())
}
