package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ModulePayloadKey returns the cache key for a module's candidate payload (no answer key)
func (r *CacheKeyStruct) ModulePayloadKey(moduleID string) string {
	return fmt.Sprintf("module:%s:payload", moduleID)
}

// ModuleAnswerKey returns the cache key for a module's answer key hash
func (r *CacheKeyStruct) ModuleAnswerKey(moduleID string) string {
	return fmt.Sprintf("module:%s:key", moduleID)
}

// SessionLockKey returns the key guarding a candidate's live session on a module
func (r *CacheKeyStruct) SessionLockKey(userID, moduleID string) string {
	return fmt.Sprintf("candidate:%s:module:%s:session", userID, moduleID)
}

// ModuleMonitorChannel returns the Redis PubSub channel name for a module's proctor feed
func (r *CacheKeyStruct) ModuleMonitorChannel(moduleID string) string {
	return fmt.Sprintf("module:%s:monitor", moduleID)
}

var CacheKey = NewCacheKeyStruct()
