package routes

import "net/http"

// Group organizes routes under a common prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		pattern := route.Method + " " + fullPrefix + route.Pattern
		mux.HandleFunc(pattern, route.Handler)
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, child)
	}
}

// Patterns returns the full "METHOD /path" pattern of every route in the
// given groups, in registration order.
func Patterns(groups ...Group) []string {
	patterns := make([]string, 0)
	for _, group := range groups {
		patterns = collect(patterns, "", group)
	}
	return patterns
}

func collect(patterns []string, parentPrefix string, group Group) []string {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		patterns = append(patterns, route.Method+" "+fullPrefix+route.Pattern)
	}
	for _, child := range group.Children {
		patterns = collect(patterns, fullPrefix, child)
	}
	return patterns
}
