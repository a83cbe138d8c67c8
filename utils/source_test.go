package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCallerFrame(t *testing.T) {
	tests := []struct {
		name string
		file string
		want bool
	}{
		{"module source", moduleSourceDir + "gormdb/logger.go", false},
		{"module test", moduleSourceDir + "gormdb/pool_test.go", true},
		{"gorm internals", "/go/pkg/mod/gorm.io/gorm@v1.31.1/callbacks.go", false},
		{"application", "/srv/app/notes/handler.go", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCallerFrame(tt.file))
		})
	}
}

func TestFileWithLineNum(t *testing.T) {
	caller := func() string { return FileWithLineNum() }

	got := caller()
	assert.True(t, strings.Contains(got, "source_test.go:"), got)
}
