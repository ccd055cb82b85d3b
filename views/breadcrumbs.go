package views

import "strings"

// Console page patterns, in chi syntax.
const (
	PageLogin            = "/login"
	PageDashboard        = "/"
	PageRoutes           = "/routes"
	PageRoute            = "/routes/{id}"
	PageRouteEdit        = "/routes/{id}/edit"
	PageDestinationEdit  = "/routes/{routeId}/destinations/{destId}/edit"
	PageSettings         = "/settings"
	PageSystemPipelines  = "/system/pipelines"
	PageSystemNodes      = "/system/nodes"
	routeDetailsFallback = "Route Details"
)

// Crumb is one breadcrumb entry. The last entry of a trail has no Href.
type Crumb struct {
	Title string `json:"title"`
	Href  string `json:"href,omitempty"`
}

// Breadcrumbs returns the trail for a matched page pattern. params holds the
// URL parameters of the match. routeName and destName are the loaded names,
// empty while unknown.
func Breadcrumbs(pattern string, params map[string]string, routeName, destName string) []Crumb {
	home := Crumb{Title: "Home", Href: PageDashboard}
	routes := Crumb{Title: "Routes", Href: PageRoutes}
	routeCrumb := func(id string) Crumb {
		title := routeName
		if title == "" {
			title = routeDetailsFallback
		}
		return Crumb{Title: title, Href: "/routes/" + id}
	}

	switch pattern {
	case PageDashboard:
		return []Crumb{{Title: "Home"}}
	case PageRoutes:
		return []Crumb{home, {Title: "Routes"}}
	case PageRoute:
		title := routeName
		if title == "" {
			title = routeDetailsFallback
		}
		return []Crumb{home, routes, {Title: title}}
	case PageRouteEdit:
		id := params["id"]
		if id == string(NewID) {
			return []Crumb{home, routes, {Title: "New Route"}}
		}
		return []Crumb{home, routes, routeCrumb(id), {Title: "Edit Route"}}
	case PageDestinationEdit:
		last := "Edit Destination"
		switch {
		case params["destId"] == string(NewID):
			last = "New Destination"
		case destName != "":
			last = "Edit " + destName
		}
		return []Crumb{home, routes, routeCrumb(params["routeId"]), {Title: last}}
	case PageSettings:
		return []Crumb{home, {Title: "Settings"}}
	case PageSystemPipelines:
		return []Crumb{home, {Title: "System Pipelines"}}
	case PageSystemNodes:
		return []Crumb{home, {Title: "Nodes List"}}
	}
	if strings.HasPrefix(pattern, PageRoutes) {
		return []Crumb{home, {Title: "Routes"}}
	}
	return []Crumb{home}
}
