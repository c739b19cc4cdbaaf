package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.bryk.io/hive/internal/router"
	"go.bryk.io/hive/model"
)

func TestRouteDirect(t *testing.T) {
	assert.True(t, router.Route(model.ExchangeDirect, "q1", "q1"))
	assert.False(t, router.Route(model.ExchangeDirect, "q2", "q1"))
}

func TestRouteFanout(t *testing.T) {
	assert.True(t, router.Route(model.ExchangeFanout, "anything", "ignored"))
	assert.True(t, router.Route(model.ExchangeFanout, "", ""))
}

func TestRouteTopic(t *testing.T) {
	cases := []struct {
		binding string
		routing string
		match   bool
	}{
		{"queue1", "news.music.pop", false},
		{"news.music.#", "news.music.pop", true},
		{"aaa.#.ccc", "aaa.ccc", true},
		{"aaa.#.ccc", "aaa.bbb.ccc", true},
		{"aaa.#.ccc", "aaa.aaa.bbb.ccc", true},
		{"aaa.#.ccc", "aaa.bbb.ddd", false},
		{"news.*.pop", "news.music.pop", true},
		{"news.*.pop", "news.music.rock.pop", false},
		{"#", "anything.at.all", true},
	}
	for _, c := range cases {
		got := router.Route(model.ExchangeTopic, c.routing, c.binding)
		assert.Equalf(t, c.match, got, "binding=%q routing=%q", c.binding, c.routing)
	}
}

func TestRouteIdempotent(t *testing.T) {
	a := router.Route(model.ExchangeTopic, "news.music.pop", "news.*.#")
	b := router.Route(model.ExchangeTopic, "news.music.pop", "news.*.#")
	assert.Equal(t, a, b)
}

func TestIsLegalRoutingKey(t *testing.T) {
	assert.True(t, router.IsLegalRoutingKey("news.music.pop_1"))
	assert.False(t, router.IsLegalRoutingKey("news.music.*"))
	assert.False(t, router.IsLegalRoutingKey("bad key"))
}

func TestIsLegalBindingKey(t *testing.T) {
	assert.True(t, router.IsLegalBindingKey("news.*.pop"))
	assert.True(t, router.IsLegalBindingKey("news.#"))
	assert.True(t, router.IsLegalBindingKey("news.*.*"))
	assert.False(t, router.IsLegalBindingKey("news.a*b"))
	assert.False(t, router.IsLegalBindingKey("news.##"))
	assert.False(t, router.IsLegalBindingKey("news.#.*"))
	assert.False(t, router.IsLegalBindingKey("news.*.#"))
}
