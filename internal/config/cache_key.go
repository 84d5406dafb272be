package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptSnapshotKey returns the cache key holding an in-progress attempt snapshot
func (r *CacheKeyStruct) AttemptSnapshotKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:snapshot", attemptID)
}

// QuestionSetKey returns the cache key for a question set payload
func (r *CacheKeyStruct) QuestionSetKey(questionSetID string) string {
	return fmt.Sprintf("question_set:%s:payload", questionSetID)
}

// AttemptResultKey returns the cache key holding a graded result until the worker persists it
func (r *CacheKeyStruct) AttemptResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:result", attemptID)
}

// AttemptTokenKey returns the cache key holding the active token JTI of an attempt
func (r *CacheKeyStruct) AttemptTokenKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:token", attemptID)
}

var CacheKey = NewCacheKeyStruct()
