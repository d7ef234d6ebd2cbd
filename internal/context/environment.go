package context

import (
	"fmt"
	"strings"
)

// Environment is the deployment environment the process runs in.
type Environment int

const (
	Development Environment = iota
	Test
	Acceptance
	Live
)

var environmentNames = map[Environment]string{
	Development: "development",
	Test:        "test",
	Acceptance:  "acceptance",
	Live:        "live",
}

func (e Environment) String() string {
	if name, ok := environmentNames[e]; ok {
		return name
	}
	return fmt.Sprintf("environment(%d)", int(e))
}

// ParseEnvironment accepts the environment names case-insensitively.
// "production" is accepted as an alias of Live.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "acceptance":
		return Acceptance, nil
	case "live", "production":
		return Live, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

// IsProduction reports whether orders go to the PSP's production endpoint.
func (e Environment) IsProduction() bool {
	return e == Live || e == Acceptance
}

// UsesTestCredentials reports whether the test API key should be selected.
func (e Environment) UsesTestCredentials() bool {
	return e == Development || e == Test
}
