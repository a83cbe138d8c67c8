package utils

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

var moduleSourceDir string

func init() {
	_, file, _, _ := runtime.Caller(0)

	// utils/source.go sits one level below the module root
	moduleSourceDir = filepath.Dir(filepath.Dir(file)) + string(filepath.Separator)
}

// FileWithLineNum returns file:line of the first caller outside this module
// and gorm. Test files always count as callers.
func FileWithLineNum() string {
	// 0 is this function and 1 its direct caller, both inside the module
	for i := 2; i < 20; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if isCallerFrame(file) {
			return file + ":" + strconv.FormatInt(int64(line), 10)
		}
	}

	return ""
}

func isCallerFrame(file string) bool {
	if strings.HasSuffix(file, "_test.go") {
		return true
	}
	return !strings.HasPrefix(file, moduleSourceDir) && !strings.Contains(file, "gorm.io")
}
