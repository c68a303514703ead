// Package cache keeps loaded objects (strategy charts, rule files) around
// for the life of the process, so that the shell and the status server do
// not parse the same files again for every command.
package cache

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/config"
)

type cache struct {
	sync.Mutex
	objects map[string]any
}

type LoadFunc func(cfg *config.Config, key string) (any, error)

// GlobalObjectCache is shared by everything in the process.
var GlobalObjectCache *cache

func (c *cache) get(cfg *config.Config, key string, loadFunc LoadFunc) (any, error) {
	c.Lock()
	defer c.Unlock()
	if obj, ok := c.objects[key]; ok {
		log.Debug().Str("key", key).Msg("getting obj from cache")
		return obj, nil
	}
	log.Debug().Str("key", key).Msg("loading into cache")
	obj, err := loadFunc(cfg, key)
	if err != nil {
		return nil, err
	}
	c.objects[key] = obj
	return obj, nil
}

func CreateGlobalObjectCache() {
	GlobalObjectCache = &cache{objects: make(map[string]any)}
}

// Load returns the object stored under key, calling loadFunc the first time.
func Load(cfg *config.Config, key string, loadFunc LoadFunc) (any, error) {
	if GlobalObjectCache == nil {
		CreateGlobalObjectCache()
	}
	return GlobalObjectCache.get(cfg, key, loadFunc)
}

// Keys lists what is cached, sorted.
func Keys() []string {
	if GlobalObjectCache == nil {
		return nil
	}
	GlobalObjectCache.Lock()
	defer GlobalObjectCache.Unlock()
	keys := make([]string, 0, len(GlobalObjectCache.objects))
	for k := range GlobalObjectCache.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear drops every cached object.
func Clear() {
	if GlobalObjectCache == nil {
		return
	}
	GlobalObjectCache.Lock()
	clear(GlobalObjectCache.objects)
	GlobalObjectCache.Unlock()
}
