package web

import (
	"reflect"
	"runtime"

	"github.com/cupogo/andvari/utils/zlog"
)

func nameOfFunction(f interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
}

func logger() zlog.Logger {
	return zlog.Get()
}
