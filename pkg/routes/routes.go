// Package routes declares HTTP endpoints as nested groups and registers them
// on a ServeMux using method-qualified patterns.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group organizes routes under a common prefix. Children inherit the prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Patterns flattens the groups into the mux patterns they register, in
// declaration order.
func Patterns(groups ...Group) []string {
	var out []string
	walk("", groups, func(pattern string, _ http.HandlerFunc) {
		out = append(out, pattern)
	})
	return out
}

// Register adds all routes from the given groups to the mux and returns the
// number of patterns registered.
func Register(mux *http.ServeMux, groups ...Group) int {
	n := 0
	walk("", groups, func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, h)
		n++
	})
	return n
}

func walk(parent string, groups []Group, fn func(string, http.HandlerFunc)) {
	for _, g := range groups {
		prefix := parent + g.Prefix
		for _, r := range g.Routes {
			fn(r.Method+" "+prefix+r.Pattern, r.Handler)
		}
		walk(prefix, g.Children, fn)
	}
}
