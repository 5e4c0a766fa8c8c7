// Package cache holds the schedules fetched for each zone, keyed by normalized zone name.
//
// A Cache is owned by the refresh loop and is not safe for concurrent use.
package cache

import "github.com/thatsimonsguy/tado-setpoint-exporter/internal/model"

type Cache struct {
	schedules map[string]model.Schedule
}

func New() *Cache {
	return &Cache{schedules: make(map[string]model.Schedule)}
}

// ReplaceAll drops every entry and stores entries in their place.
func (c *Cache) ReplaceAll(entries map[string]model.Schedule) {
	c.Clear()
	for zone, s := range entries {
		c.schedules[zone] = s
	}
}

func (c *Cache) Clear() {
	c.schedules = make(map[string]model.Schedule)
}

// Get returns the cached schedule, or an empty schedule when the zone has none.
func (c *Cache) Get(zone string) model.Schedule {
	if s, ok := c.schedules[zone]; ok {
		return s
	}
	return model.Schedule{}
}

func (c *Cache) Len() int {
	return len(c.schedules)
}
