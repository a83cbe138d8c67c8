// Package env resolves the environment the process runs in.
package env

import (
	"flag"
	"os"
	"strings"
	"sync"
)

const (
	envVarName = "APP_ENV"

	Production  = "production"
	Staging     = "staging"
	Development = "development"
	Test        = "test"
)

var (
	mu         sync.RWMutex
	currentENV = ""
)

// CurrentENV returns the current environment of the application. APP_ENV
// wins, test binaries report Test, everything else is Development.
func CurrentENV() string {
	mu.RLock()
	cur := currentENV
	mu.RUnlock()

	if cur != "" {
		return cur
	}

	mu.Lock()
	defer mu.Unlock()

	currentENV = detect()
	return currentENV
}

func detect() string {
	if e := os.Getenv(envVarName); e != "" {
		return e
	}

	if strings.HasSuffix(os.Args[0], ".test") || strings.Contains(os.Args[0], "/_test/") {
		return Test
	}

	if flag.Lookup("test.v") != nil {
		return Test
	}

	return Development
}

// Set overrides the detected environment; an empty name re-runs detection.
func Set(name string) {
	mu.Lock()
	currentENV = name
	mu.Unlock()
}

// Is checks the current Environment against the current string
func Is(str string) bool {
	return CurrentENV() == str
}

func IsTest() bool        { return Is(Test) }
func IsProduction() bool  { return Is(Production) }
func IsDevelopment() bool { return Is(Development) }
func IsStaging() bool     { return Is(Staging) }

// IsDevelopmentOrTest returns true if we are development or test mode
// this is good for stubs
func IsDevelopmentOrTest() bool {
	return IsTest() || IsDevelopment()
}
