// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	replies []string
	prompts []string
}

func (s *scripted) Generate(_ context.Context, prompt string) string {
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return ""
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Angle
		ok    bool
	}{
		{
			name:  "plain markers",
			reply: "ANGLE: Learning outcomes of game-based LLM tutors\nQUERY: LLM tutoring",
			want:  Angle{Angle: "Learning outcomes of game-based LLM tutors", Query: "LLM tutoring"},
			ok:    true,
		},
		{
			name:  "markdown bold and quotes",
			reply: "Sure!\n**ANGLE:** Player modelling\n**QUERY:** \"player modelling\"\n",
			want:  Angle{Angle: "Player modelling", Query: "player modelling"},
			ok:    true,
		},
		{
			name:  "missing query",
			reply: "ANGLE: something",
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.reply)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGenerateFallsBackOnUnparsableReply(t *testing.T) {
	g := NewGenerator(&scripted{replies: []string{"I cannot help with that"}}, zerolog.Nop())
	got := g.Generate(context.Background(), "LLM serious games", nil)
	assert.Equal(t, Angle{Angle: "Academic analysis of LLM serious games", Query: "LLM serious games"}, got)
}

func TestGenerateFallsBackOnErrorText(t *testing.T) {
	g := NewGenerator(&scripted{replies: []string{"% ERROR: quota"}}, zerolog.Nop())
	got := g.Generate(context.Background(), "goal", []Angle{{Angle: "a", Query: "q"}})
	assert.Equal(t, Fallback("goal"), got)
}

func TestGenerateIncludesHistoryAndShortQueryRule(t *testing.T) {
	s := &scripted{replies: []string{"ANGLE: Ethics\nQUERY: AI ethics"}}
	g := NewGenerator(s, zerolog.Nop())
	history := []Angle{{Angle: "Learning outcomes", Query: "LLM tutoring"}}

	got := g.Generate(context.Background(), "LLM serious games", history)
	assert.Equal(t, "AI ethics", got.Query)
	require.Len(t, s.prompts, 1)
	assert.Contains(t, s.prompts[0], "- Learning outcomes (query: LLM tutoring)")
	assert.Contains(t, s.prompts[0], "at most two words")
	assert.NotContains(t, s.prompts[0], InvalidGoalMarker)
}

func TestInitialRejectsUnsuitableGoal(t *testing.T) {
	s := &scripted{replies: []string{InvalidGoalMarker}}
	g := NewGenerator(s, zerolog.Nop())

	_, err := g.Initial(context.Background(), "what should I cook tonight")
	assert.ErrorIs(t, err, ErrUnsuitableGoal)
	assert.True(t, strings.Contains(s.prompts[0], InvalidGoalMarker))
}

func TestInitialParsesReply(t *testing.T) {
	g := NewGenerator(&scripted{replies: []string{"ANGLE: Serious games with LLM agents\nQUERY: LLM serious games"}}, zerolog.Nop())
	got, err := g.Initial(context.Background(), "LLM serious games")
	require.NoError(t, err)
	assert.Equal(t, "LLM serious games", got.Query)
}
