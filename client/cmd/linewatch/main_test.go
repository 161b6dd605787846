package main

import (
	"testing"

	"github.com/linepulse/linepulse/pkg/types"
)

func TestPostCountFollowsHealthScores(t *testing.T) {
	snap := types.LineSnapshot{
		LineID: "line-1",
		HealthScores: []types.HealthScoreEntry{
			{PostID: "post-1", Score: 92},
			{PostID: "post-2", Score: 78},
		},
		// Only one post has produced anything yet.
		Production: []types.ProductionUpdate{{PostID: "post-1"}},
	}

	if got := postCount(snap); got != 2 {
		t.Errorf("postCount = %d, want 2", got)
	}
	if got := postCount(types.LineSnapshot{LineID: "line-1"}); got != 0 {
		t.Errorf("postCount of an empty snapshot = %d, want 0", got)
	}
}
