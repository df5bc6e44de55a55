package wireproto

import (
	"strings"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// routeList is an insertion-ordered stack of route identifiers. Push
// prepends to the front; Append adds to the end; DeleteLast removes
// the tail. All mutators require routing to have been explicitly
// enabled first.
type routeList struct {
	enabled bool
	routes  []string
}

// EnableRouting allows route mutators to be used on this message. It is
// idempotent.
func (m *Message) EnableRouting() {
	m.routes.enabled = true
}

func (m *Message) requireRouting() error {
	if !m.routes.enabled {
		return ferror.New(ferror.Proto, "routing not enabled on this message")
	}
	return nil
}

// RoutePush prepends id to the front of the route stack.
func (m *Message) RoutePush(id string) error {
	if err := m.requireRouting(); err != nil {
		return err
	}
	m.routes.routes = append([]string{id}, m.routes.routes...)
	m.syncRouteFlag()
	return nil
}

// RouteAppend adds id to the end of the route stack.
func (m *Message) RouteAppend(id string) error {
	if err := m.requireRouting(); err != nil {
		return err
	}
	m.routes.routes = append(m.routes.routes, id)
	m.syncRouteFlag()
	return nil
}

// RouteDeleteLast removes the tail entry of the route stack.
func (m *Message) RouteDeleteLast() error {
	if err := m.requireRouting(); err != nil {
		return err
	}
	n := len(m.routes.routes)
	if n == 0 {
		return ferror.New(ferror.Proto, "route stack is empty")
	}
	m.routes.routes = m.routes.routes[:n-1]
	m.syncRouteFlag()
	return nil
}

// RouteFirst returns the head of the route stack.
func (m *Message) RouteFirst() (string, bool) {
	if len(m.routes.routes) == 0 {
		return "", false
	}
	return m.routes.routes[0], true
}

// RouteLast returns the tail of the route stack.
func (m *Message) RouteLast() (string, bool) {
	n := len(m.routes.routes)
	if n == 0 {
		return "", false
	}
	return m.routes.routes[n-1], true
}

// RouteCount returns the number of entries on the route stack.
func (m *Message) RouteCount() int { return len(m.routes.routes) }

// RouteString renders the route stack head-to-tail, '!'-separated, in
// the conventional "sender!router" debug form.
func (m *Message) RouteString() string {
	return strings.Join(m.routes.routes, "!")
}

func (m *Message) syncRouteFlag() {
	if len(m.routes.routes) > 0 {
		m.flags = m.flags.set(FlagRoute)
	} else {
		m.flags = m.flags.clear(FlagRoute)
	}
}
